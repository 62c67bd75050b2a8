package natsx

import (
	"crypto/tls"
	"os"
	"strings"

	"github.com/nats-io/nats.go"
)

// Connect creates a new connection to the NATS server at addr. An empty addr
// falls back to the NATS_URL environment variable, and a bare host:port is
// given the nats:// scheme. The connection is named and compressed, and is
// secured when tlsConfig is not nil.
//
// Returns:
//   - *nats.Conn: A pointer to the established NATS connection.
//   - error: An error if the connection could not be established.
func Connect(addr, name string, tlsConfig *tls.Config, opts ...nats.Option) (*nats.Conn, error) {
	return nats.Connect(URL(addr), Options(name, tlsConfig, opts...)...)
}

// URL normalizes addr into a NATS server URL.
func URL(addr string) string {
	if addr == "" {
		addr = os.Getenv("NATS_URL")
	}
	if addr == "" {
		return nats.DefaultURL
	}
	if !strings.Contains(addr, "://") {
		addr = "nats://" + addr
	}
	return addr
}

// Options returns the connection options used by Connect.
func Options(name string, tlsConfig *tls.Config, extra ...nats.Option) []nats.Option {
	if name == "" {
		name = "blip"
	}
	opts := []nats.Option{nats.Name(name), nats.Compression(true)}
	if tlsConfig != nil {
		opts = append(opts, nats.Secure(tlsConfig))
	}
	return append(opts, extra...)
}
