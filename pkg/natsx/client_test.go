package natsx

import (
	"crypto/tls"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

func TestURL(t *testing.T) {
	t.Setenv("NATS_URL", "")

	tests := []struct {
		in   string
		want string
	}{
		{"", nats.DefaultURL},
		{"localhost:4222", "nats://localhost:4222"},
		{"tls://broker:4443", "tls://broker:4443"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, URL(tt.in))
		})
	}

	t.Run("env fallback", func(t *testing.T) {
		t.Setenv("NATS_URL", "nats://from-env:4222")
		assert.Equal(t, "nats://from-env:4222", URL(""))
	})
}

func TestOptions(t *testing.T) {
	assert.Len(t, Options("", nil), 2)
	assert.Len(t, Options("app", &tls.Config{MinVersion: tls.VersionTLS12}), 3)
	assert.Len(t, Options("app", nil, nats.NoEcho()), 3)
}
