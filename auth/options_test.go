package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		in       string
		want     Options
		rendered string
	}{
		{"", Options{Mode: ModeNone}, ""},
		{"none", Options{Mode: ModeNone}, ""},
		{"user", Options{Mode: ModeUser}, "AuthenticationType=OS_LOGON"},
		{
			"app=blp:myapp",
			Options{Mode: ModeApp, AppName: "blp:myapp"},
			"AuthenticationMode=APPLICATION_ONLY;ApplicationAuthenticationType=APPNAME_AND_KEY;ApplicationName=blp:myapp",
		},
		{
			"userapp=blp:myapp",
			Options{Mode: ModeUserApp, AppName: "blp:myapp"},
			"AuthenticationMode=USER_AND_APPLICATION;AuthenticationType=OS_LOGON;ApplicationAuthenticationType=APPNAME_AND_KEY;ApplicationName=blp:myapp",
		},
		{
			"dir=mail",
			Options{Mode: ModeDirectory, Property: "mail"},
			"AuthenticationType=DIRECTORY_SERVICE;DirSvcPropertyName=mail",
		},
		{
			"manual=blp:myapp,10.0.0.5,jdoe",
			Options{Mode: ModeManual, AppName: "blp:myapp", Address: "10.0.0.5", User: "jdoe"},
			"AuthenticationMode=USER_AND_APPLICATION;AuthenticationType=MANUAL;ApplicationAuthenticationType=APPNAME_AND_KEY;ApplicationName=blp:myapp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOptions(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.rendered, got.String())

			again, err := ParseOptions(got.Flag())
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestParseOptions_Invalid(t *testing.T) {
	for _, in := range []string{
		"manual=app,ip",
		"manual=app,ip,user,extra",
		"manual=app,,user",
		"app=",
		"dir=",
		"password=hunter2",
		"bogus",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseOptions(in)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}

func TestOptions_Required(t *testing.T) {
	assert.False(t, Options{}.Required())
	assert.True(t, Options{Mode: ModeUser}.Required())
	assert.Equal(t, "manual", ModeManual.String())
}
