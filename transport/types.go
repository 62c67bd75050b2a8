package transport

import (
	"context"
	"crypto/tls"
	"errors"

	"github.com/casualjim/blip/events"
)

var (
	// ErrUnreachable is returned by Dial when nothing serves the address.
	ErrUnreachable = errors.New("transport: endpoint unreachable")
	// ErrClosed is returned when using a connection after it ended.
	ErrClosed = errors.New("transport: connection closed")
	// ErrSlowConsumer is returned by Deliver when the client does not keep up.
	ErrSlowConsumer = errors.New("transport: slow consumer")
	// ErrAddressInUse is returned by Serve when the address is already served.
	ErrAddressInUse = errors.New("transport: address in use")
)

type Broker interface {
	Dial(ctx context.Context, addr string, opts DialOptions) (Conn, error)
	Serve(ctx context.Context, addr string, handler Handler) (Listener, error)
}

type DialOptions struct {
	// Name identifies the client to the server.
	Name string
	// Auth is the session authentication string sent with the connect request.
	Auth string
	// TLS enables an encrypted connection when the broker supports it.
	TLS *tls.Config
}

type Conn interface {
	ID() string
	Send(context.Context, events.Operation) error
	Events() <-chan events.Event
	Done() <-chan struct{}
	Close() error
}

type Listener interface {
	Addr() string
	Close() error
}

// Handler is the server side of a connection. ServeOperation is called
// sequentially per peer in the order the client sent the operations.
type Handler interface {
	ServeOperation(ctx context.Context, peer Peer, op events.Operation)
	Disconnected(peer Peer)
}

// Peer is the server's view of one client connection.
type Peer interface {
	ID() string
	Name() string
	Deliver(context.Context, events.Event) error
	Close() error
}
