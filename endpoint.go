package blip

import (
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
)

const (
	DefaultHost = "localhost"
	DefaultPort = 8194
)

// LeasedLineHost is the address dialed in leased-line mode.
var LeasedLineHost = "zfp.leased.line"

// Endpoint is one candidate server.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ParseEndpoint parses "host", "host:port" or "[v6]:port". A missing port
// defaults to defaultPort.
func ParseEndpoint(s string, defaultPort int) (Endpoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Endpoint{}, fmt.Errorf("empty endpoint")
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		if strings.Contains(err.Error(), "missing port") {
			return Endpoint{Host: strings.Trim(s, "[]"), Port: defaultPort}, nil
		}
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("invalid port in endpoint %q", s)
	}
	if host == "" {
		host = DefaultHost
	}
	return Endpoint{Host: host, Port: port}, nil
}

// EndpointSet is the ordered list of candidate servers tried by Start.
type EndpointSet struct {
	endpoints []Endpoint
	// StartAttempts is the number of dial attempts before giving up. Zero
	// means one attempt per endpoint.
	StartAttempts int
}

func NewEndpointSet(endpoints ...Endpoint) EndpointSet {
	return EndpointSet{endpoints: slices.Clone(endpoints)}
}

func (s EndpointSet) Len() int {
	return len(s.endpoints)
}

// At returns the endpoint for the i-th attempt, cycling through the set.
func (s EndpointSet) At(i int) Endpoint {
	return s.endpoints[i%len(s.endpoints)]
}

func (s EndpointSet) Endpoints() []Endpoint {
	return slices.Clone(s.endpoints)
}

// Attempts is the effective attempt budget.
func (s EndpointSet) Attempts() int {
	if s.StartAttempts > 0 {
		return s.StartAttempts
	}
	return len(s.endpoints)
}

func (s EndpointSet) validate(e *ConfigError) {
	if len(s.endpoints) == 0 {
		e.add("at least one endpoint is required")
	}
	for _, ep := range s.endpoints {
		if ep.Host == "" {
			e.add("endpoint %q has no host", ep)
		}
		if ep.Port <= 0 || ep.Port > 65535 {
			e.add("endpoint %q has an invalid port", ep)
		}
	}
	if s.StartAttempts < 0 {
		e.add("start attempts must not be negative, got %d", s.StartAttempts)
	}
}

// LeasedLine selects the port of a leased-line connection.
type LeasedLine int

const (
	LeasedLineOff  LeasedLine = 0
	LeasedLine8194 LeasedLine = 8194
	LeasedLine8196 LeasedLine = 8196
)

// ParseLeasedLine parses the remote port of a leased line.
func ParseLeasedLine(port int) (LeasedLine, error) {
	switch LeasedLine(port) {
	case LeasedLineOff, LeasedLine8194, LeasedLine8196:
		return LeasedLine(port), nil
	default:
		return LeasedLineOff, fmt.Errorf("leased line port must be 8194 or 8196, got %d", port)
	}
}

func (l LeasedLine) endpoints() EndpointSet {
	return NewEndpointSet(Endpoint{Host: LeasedLineHost, Port: int(l)})
}
