package blip

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/casualjim/blip/auth"
	"github.com/casualjim/blip/transport"
	"github.com/fogfish/opts"
)

const (
	defaultQueueSize     = 256
	defaultRetryInterval = 250 * time.Millisecond
	defaultName          = "blip"
)

// Option configures a Session.
type Option = opts.Option[Session]

var (
	// WithStartAttempts bounds the dial attempts made by Start and by a restart.
	WithStartAttempts = opts.ForName[Session, int]("startAttempts")
	// WithQueueSize sets the capacity of the session's event buffer.
	WithQueueSize = opts.ForName[Session, int]("queueSize")
	// WithAutoRestart reconnects when the connection drops. Enabled by default.
	WithAutoRestart = opts.ForName[Session, bool]("autoRestart")
	// WithRetryInterval is the first pause between dial attempts; later pauses grow exponentially.
	WithRetryInterval = opts.ForName[Session, time.Duration]("retryInterval")
	// WithName identifies the client to the server.
	WithName   = opts.ForName[Session, string]("name")
	WithLogger = opts.ForName[Session, *slog.Logger]("logger")
	// WithLeasedLine dials the leased-line host on the given port. It needs complete TLS material.
	WithLeasedLine = opts.ForName[Session, LeasedLine]("leasedLine")
	WithTLS        = opts.ForName[Session, TLSOptions]("tlsOptions")
)

// WithEndpoints sets the candidate servers, tried in order.
func WithEndpoints(endpoints ...Endpoint) opts.Option[Session] {
	return opts.Type[Session](func(s *Session) error {
		s.endpoints = NewEndpointSet(endpoints...)
		return nil
	})
}

// WithAddresses parses "host[:port]" strings into the endpoint set.
func WithAddresses(addrs ...string) opts.Option[Session] {
	return opts.Type[Session](func(s *Session) error {
		eps := make([]Endpoint, 0, len(addrs))
		for _, a := range addrs {
			ep, err := ParseEndpoint(a, DefaultPort)
			if err != nil {
				return err
			}
			eps = append(eps, ep)
		}
		s.endpoints = NewEndpointSet(eps...)
		return nil
	})
}

// WithAuthOptions sets the session authentication sent on connect.
func WithAuthOptions(o auth.Options) opts.Option[Session] {
	return opts.Type[Session](func(s *Session) error {
		s.authOptions = o
		return nil
	})
}

// WithHandler switches the session to push mode: every event is handed to h
// on a session-owned goroutine and NextEvent must not be used.
func WithHandler(h Handler) opts.Option[Session] {
	return opts.Type[Session](func(s *Session) error {
		s.handler = h
		return nil
	})
}

// WithTransport replaces the in-process transport.
func WithTransport(b transport.Broker) opts.Option[Session] {
	return opts.Type[Session](func(s *Session) error {
		s.broker = b
		return nil
	})
}

// New validates the configuration and returns an unstarted session.
// Every configuration problem is reported at once in a *ConfigError.
func New(options ...opts.Option[Session]) (*Session, error) {
	s := &Session{
		queueSize:     defaultQueueSize,
		retryInterval: defaultRetryInterval,
		autoRestart:   true,
		name:          defaultName,
		endpoints:     NewEndpointSet(Endpoint{Host: DefaultHost, Port: DefaultPort}),
	}
	if err := opts.Apply(s, options); err != nil {
		return nil, &ConfigError{Problems: []string{err.Error()}}
	}

	cfgErr := &ConfigError{}
	if s.leasedLine != LeasedLineOff {
		if _, err := ParseLeasedLine(int(s.leasedLine)); err != nil {
			cfgErr.add("%s", err)
		} else {
			attempts := s.startAttempts
			s.endpoints = s.leasedLine.endpoints()
			s.endpoints.StartAttempts = attempts
		}
		if !s.tlsOptions.Complete() {
			cfgErr.add("leased line requires client credentials, password and trust material")
		}
	}
	if s.startAttempts < 0 {
		cfgErr.add("start attempts must not be negative, got %d", s.startAttempts)
	} else {
		s.endpoints.StartAttempts = s.startAttempts
	}
	s.endpoints.validate(cfgErr)
	s.tlsOptions.validate(cfgErr)
	if s.queueSize <= 0 {
		cfgErr.add("queue size must be positive, got %d", s.queueSize)
	}
	if s.retryInterval < 0 {
		cfgErr.add("retry interval must not be negative, got %s", s.retryInterval)
	}
	if s.authOptions.Mode == auth.ModeManual && (s.authOptions.User == "" || s.authOptions.Address == "") {
		cfgErr.add("manual authentication needs an application, an address and a user")
	}
	if err := cfgErr.orNil(); err != nil {
		return nil, err
	}

	if s.tlsOptions.Complete() {
		cfg, err := s.tlsOptions.Config()
		if err != nil {
			return nil, &ConfigError{Problems: []string{err.Error()}}
		}
		s.tlsConfig = cfg
	}
	if s.broker == nil {
		s.broker = transport.Local()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.init()
	return s, nil
}

func (s *Session) dialOptions() transport.DialOptions {
	return transport.DialOptions{
		Name: s.name,
		Auth: s.authOptions.String(),
		TLS:  s.tlsConfig,
	}
}

// TLSConfig is the client TLS configuration, nil without TLS material.
func (s *Session) TLSConfig() *tls.Config {
	return s.tlsConfig
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%d endpoints)", s.id, s.endpoints.Len())
}
