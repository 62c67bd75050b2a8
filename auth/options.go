package auth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidOptions is returned for an authentication option string that
// cannot be parsed.
var ErrInvalidOptions = errors.New("invalid authentication options")

// Mode selects how the caller proves its identity.
type Mode uint8

const (
	ModeNone Mode = iota
	ModeUser
	ModeApp
	ModeUserApp
	ModeDirectory
	ModeManual
)

var modeNames = [...]string{"none", "user", "app", "userapp", "dir", "manual"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

const (
	authUser        = "AuthenticationType=OS_LOGON"
	authAppPrefix   = "AuthenticationMode=APPLICATION_ONLY;ApplicationAuthenticationType=APPNAME_AND_KEY;ApplicationName="
	authUserApp     = "AuthenticationMode=USER_AND_APPLICATION;AuthenticationType=OS_LOGON;ApplicationAuthenticationType=APPNAME_AND_KEY;ApplicationName="
	authManual      = "AuthenticationMode=USER_AND_APPLICATION;AuthenticationType=MANUAL;ApplicationAuthenticationType=APPNAME_AND_KEY;ApplicationName="
	authDirPrefix   = "AuthenticationType=DIRECTORY_SERVICE;DirSvcPropertyName="
	manualFieldsLen = 3
)

// Options is a parsed authentication option.
type Options struct {
	Mode Mode
	// AppName is set for ModeApp, ModeUserApp and ModeManual.
	AppName string
	// Property is the directory attribute for ModeDirectory.
	Property string
	// Address and User identify the caller in ModeManual.
	Address string
	User    string
}

// ParseOptions parses the command line form of the authentication options:
//
//	none | user | app=<name> | userapp=<name> | dir=<property> | manual=<app>,<ip>,<user>
func ParseOptions(s string) (Options, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "none":
		return Options{Mode: ModeNone}, nil
	case "user":
		return Options{Mode: ModeUser}, nil
	}

	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return Options{}, fmt.Errorf("%w: %q", ErrInvalidOptions, s)
	}
	if value == "" {
		return Options{}, fmt.Errorf("%w: %s requires a value", ErrInvalidOptions, key)
	}

	switch key {
	case "app":
		return Options{Mode: ModeApp, AppName: value}, nil
	case "userapp":
		return Options{Mode: ModeUserApp, AppName: value}, nil
	case "dir":
		return Options{Mode: ModeDirectory, Property: value}, nil
	case "manual":
		fields := strings.Split(value, ",")
		if len(fields) != manualFieldsLen {
			return Options{}, fmt.Errorf("%w: manual expects <app>,<ip>,<user>, got %d fields", ErrInvalidOptions, len(fields))
		}
		for _, f := range fields {
			if strings.TrimSpace(f) == "" {
				return Options{}, fmt.Errorf("%w: manual fields must not be empty", ErrInvalidOptions)
			}
		}
		return Options{
			Mode:    ModeManual,
			AppName: strings.TrimSpace(fields[0]),
			Address: strings.TrimSpace(fields[1]),
			User:    strings.TrimSpace(fields[2]),
		}, nil
	default:
		return Options{}, fmt.Errorf("%w: unknown option %q", ErrInvalidOptions, key)
	}
}

// String renders the authentication string handed to the session.
func (o Options) String() string {
	switch o.Mode {
	case ModeUser:
		return authUser
	case ModeApp:
		return authAppPrefix + o.AppName
	case ModeUserApp:
		return authUserApp + o.AppName
	case ModeDirectory:
		return authDirPrefix + o.Property
	case ModeManual:
		return authManual + o.AppName
	default:
		return ""
	}
}

// Flag renders the options back into the form accepted by ParseOptions.
func (o Options) Flag() string {
	switch o.Mode {
	case ModeUser:
		return "user"
	case ModeApp:
		return "app=" + o.AppName
	case ModeUserApp:
		return "userapp=" + o.AppName
	case ModeDirectory:
		return "dir=" + o.Property
	case ModeManual:
		return "manual=" + strings.Join([]string{o.AppName, o.Address, o.User}, ",")
	default:
		return "none"
	}
}

// Required reports whether the options call for an authorization handshake.
func (o Options) Required() bool {
	return o.Mode != ModeNone
}
