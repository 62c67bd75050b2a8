// Package config loads blip settings from a YAML file.
//
// Unknown keys are rejected. Values of the form ${NAME} are expanded from the
// environment before decoding, which keeps secrets such as the TLS password out
// of the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/casualjim/blip"
	"github.com/casualjim/blip/auth"
	"github.com/casualjim/blip/events"
	"gopkg.in/yaml.v3"
)

const (
	TransportLocal = "local"
	TransportNATS  = "nats"
)

// File is the on-disk configuration.
type File struct {
	Name          string    `yaml:"name,omitempty" json:"name,omitempty" jsonschema:"description=Client name sent on connect"`
	Endpoints     []string  `yaml:"endpoints,omitempty" json:"endpoints,omitempty" jsonschema:"description=Candidate servers as host[:port]; tried in order"`
	StartAttempts int       `yaml:"startAttempts,omitempty" json:"startAttempts,omitempty" jsonschema:"minimum=0,description=Dial attempts per start; defaults to the number of endpoints"`
	AutoRestart   *bool     `yaml:"autoRestart,omitempty" json:"autoRestart,omitempty" jsonschema:"description=Reconnect when the connection drops"`
	RetryInterval Duration  `yaml:"retryInterval,omitempty" json:"retryInterval,omitempty" jsonschema:"description=First pause between dial attempts"`
	QueueSize     int       `yaml:"queueSize,omitempty" json:"queueSize,omitempty" jsonschema:"minimum=0,description=Capacity of the session event buffer"`
	LeasedLine    int       `yaml:"leasedLine,omitempty" json:"leasedLine,omitempty" jsonschema:"enum=0,enum=8194,enum=8196,description=Leased line port; replaces endpoints when set"`
	Auth          Auth      `yaml:"auth,omitempty" json:"auth,omitempty"`
	TLS           TLS       `yaml:"tls,omitempty" json:"tls,omitempty"`
	Transport     Transport `yaml:"transport,omitempty" json:"transport,omitempty"`
	Publish       Publish   `yaml:"publish,omitempty" json:"publish,omitempty"`
}

type Auth struct {
	Options string   `yaml:"options,omitempty" json:"options,omitempty" jsonschema:"description=none | user | app=<name> | userapp=<name> | dir=<property> | manual=<app>\\,<ip>\\,<user>"`
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"description=Deadline of the authorization handshake"`
}

type TLS struct {
	ClientCredentials string `yaml:"clientCredentials,omitempty" json:"clientCredentials,omitempty" jsonschema:"description=PKCS#12 file with the client certificate and key"`
	Password          string `yaml:"password,omitempty" json:"password,omitempty"`
	TrustMaterial     string `yaml:"trustMaterial,omitempty" json:"trustMaterial,omitempty" jsonschema:"description=PEM or DER file with the trusted CA certificates"`
}

type Transport struct {
	Kind    string `yaml:"kind,omitempty" json:"kind,omitempty" jsonschema:"enum=local,enum=nats"`
	Subject string `yaml:"subject,omitempty" json:"subject,omitempty" jsonschema:"description=NATS subject operations are published on"`
}

type Publish struct {
	Service string   `yaml:"service,omitempty" json:"service,omitempty" jsonschema:"description=Service topics are created on"`
	Period  Duration `yaml:"period,omitempty" json:"period,omitempty"`
}

// Default returns the settings used when no file is given.
func Default() File {
	return File{
		Name:      "blip",
		Endpoints: []string{"localhost:8194"},
		Transport: Transport{Kind: TransportNATS},
		Publish:   Publish{Service: events.ServiceViper, Period: Duration(time.Second)},
	}
}

// Load reads and validates a YAML file.
func Load(path string) (*File, error) {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	f, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Decode parses a single YAML document on top of Default.
func Decode(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = []byte(os.ExpandEnv(string(data)))

	f := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("config contains multiple documents or trailing content")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every field and reports all problems at once.
func (f *File) Validate() error {
	var errs []error
	if len(f.Endpoints) == 0 && f.LeasedLine == 0 {
		errs = append(errs, errors.New("endpoints: at least one endpoint is required"))
	}
	for _, addr := range f.Endpoints {
		if _, err := blip.ParseEndpoint(addr, blip.DefaultPort); err != nil {
			errs = append(errs, fmt.Errorf("endpoints: %w", err))
		}
	}
	if f.StartAttempts < 0 {
		errs = append(errs, fmt.Errorf("startAttempts: must not be negative, got %d", f.StartAttempts))
	}
	if f.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("queueSize: must not be negative, got %d", f.QueueSize))
	}
	if f.RetryInterval < 0 {
		errs = append(errs, fmt.Errorf("retryInterval: must not be negative, got %s", f.RetryInterval))
	}
	if _, err := blip.ParseLeasedLine(f.LeasedLine); err != nil {
		errs = append(errs, fmt.Errorf("leasedLine: %w", err))
	}
	if _, err := auth.ParseOptions(f.Auth.Options); err != nil {
		errs = append(errs, fmt.Errorf("auth.options: %w", err))
	}
	if f.Auth.Timeout < 0 {
		errs = append(errs, fmt.Errorf("auth.timeout: must not be negative, got %s", f.Auth.Timeout))
	}
	switch f.Transport.Kind {
	case "", TransportLocal, TransportNATS:
	default:
		errs = append(errs, fmt.Errorf("transport.kind: unknown transport %q", f.Transport.Kind))
	}
	if f.Publish.Service != "" {
		if _, _, ok := events.SplitTopic(f.Publish.Service); !ok {
			errs = append(errs, fmt.Errorf("publish.service: %q is not a service name", f.Publish.Service))
		}
	}
	if f.Publish.Period < 0 {
		errs = append(errs, fmt.Errorf("publish.period: must not be negative, got %s", f.Publish.Period))
	}
	return errors.Join(errs...)
}

// AuthOptions parses the authentication option string.
func (f *File) AuthOptions() (auth.Options, error) {
	return auth.ParseOptions(f.Auth.Options)
}

// SessionOptions turns the file into session options. The transport is not
// included: it depends on what the caller runs in.
func (f *File) SessionOptions() ([]blip.Option, error) {
	ao, err := f.AuthOptions()
	if err != nil {
		return nil, err
	}
	ll, err := blip.ParseLeasedLine(f.LeasedLine)
	if err != nil {
		return nil, err
	}

	options := []blip.Option{
		blip.WithAuthOptions(ao),
		blip.WithLeasedLine(ll),
	}
	if len(f.Endpoints) > 0 {
		options = append(options, blip.WithAddresses(f.Endpoints...))
	}
	if f.Name != "" {
		options = append(options, blip.WithName(f.Name))
	}
	if f.StartAttempts > 0 {
		options = append(options, blip.WithStartAttempts(f.StartAttempts))
	}
	if f.AutoRestart != nil {
		options = append(options, blip.WithAutoRestart(*f.AutoRestart))
	}
	if f.RetryInterval > 0 {
		options = append(options, blip.WithRetryInterval(f.RetryInterval.Duration()))
	}
	if f.QueueSize > 0 {
		options = append(options, blip.WithQueueSize(f.QueueSize))
	}
	if tlsOpts := blip.TLSFromFiles(f.TLS.ClientCredentials, f.TLS.Password, f.TLS.TrustMaterial); !tlsOpts.IsZero() {
		options = append(options, blip.WithTLS(tlsOpts))
	}
	return options, nil
}
