package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/blip/events"
	"github.com/casualjim/blip/pkg/slogx"
	"github.com/casualjim/blip/pkg/uuidx"
)

const (
	defaultSlowConsumerTimeout = 100 * time.Millisecond
	eventBufferSize            = 256
	opBufferSize               = 64
)

type localBroker struct {
	listeners           *haxmap.Map[string, *localListener]
	slowConsumerTimeout time.Duration
}

// Local returns an in-process broker. Addresses are plain names; nothing
// touches the network.
func Local() *localBroker {
	return &localBroker{
		listeners:           haxmap.New[string, *localListener](),
		slowConsumerTimeout: defaultSlowConsumerTimeout,
	}
}

// WithSlowConsumerTimeout configures how long Deliver waits on a full client buffer.
func (b *localBroker) WithSlowConsumerTimeout(timeout time.Duration) *localBroker {
	b.slowConsumerTimeout = timeout
	return b
}

func (b *localBroker) Serve(ctx context.Context, addr string, handler Handler) (Listener, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	lis := &localListener{
		addr:    addr,
		broker:  b,
		handler: handler,
		conns:   haxmap.New[string, *localConn](),
		ctx:     context.WithoutCancel(ctx),
	}
	if _, loaded := b.listeners.GetOrSet(addr, lis); loaded {
		return nil, fmt.Errorf("serve %s: %w", addr, ErrAddressInUse)
	}
	return lis, nil
}

func (b *localBroker) Dial(ctx context.Context, addr string, opts DialOptions) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lis, ok := b.listeners.Get(addr)
	if !ok {
		return nil, fmt.Errorf("dial %s: %w", addr, ErrUnreachable)
	}
	conn, err := lis.accept(ctx, opts)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type localListener struct {
	addr    string
	broker  *localBroker
	handler Handler
	conns   *haxmap.Map[string, *localConn]
	ctx     context.Context
	once    sync.Once
}

func (l *localListener) Addr() string {
	return l.addr
}

// Close stops serving the address and ends every open connection.
func (l *localListener) Close() error {
	l.once.Do(func() {
		l.broker.listeners.Del(l.addr)
		l.conns.ForEach(func(_ string, c *localConn) bool {
			c.shutdown()
			return true
		})
	})
	return nil
}

func (l *localListener) accept(ctx context.Context, opts DialOptions) (*localConn, error) {
	c := &localConn{
		id:       uuidx.NewString(),
		name:     opts.Name,
		listener: l,
		events:   make(chan events.Event, eventBufferSize),
		ops:      make(chan events.Operation, opBufferSize),
		done:     make(chan struct{}),
	}
	l.conns.Set(c.id, c)
	go c.serve()

	if err := c.Send(ctx, events.Operation{Kind: events.OpConnect, Session: c.id, Client: opts.Name, AuthOptions: opts.Auth}); err != nil {
		c.shutdown()
		return nil, err
	}
	return c, nil
}

// localConn is both ends of an in-process connection: the client uses it as
// a Conn, the handler sees it as a Peer.
type localConn struct {
	id       string
	name     string
	listener *localListener
	events   chan events.Event
	ops      chan events.Operation
	done     chan struct{}
	once     sync.Once
}

func (c *localConn) ID() string                  { return c.id }
func (c *localConn) Name() string                { return c.name }
func (c *localConn) Events() <-chan events.Event { return c.events }
func (c *localConn) Done() <-chan struct{}       { return c.done }

func (c *localConn) Send(ctx context.Context, op events.Operation) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	case c.ops <- op:
		return nil
	}
}

func (c *localConn) Deliver(ctx context.Context, ev events.Event) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	case c.events <- ev:
		return nil
	case <-time.After(c.listener.broker.slowConsumerTimeout):
		slog.Warn("slow consumer", slog.String("conn", c.id), slog.String("event", ev.String()))
		return ErrSlowConsumer
	}
}

// Close ends the connection from either side.
func (c *localConn) Close() error {
	c.shutdown()
	return nil
}

func (c *localConn) shutdown() {
	c.once.Do(func() {
		c.listener.conns.Del(c.id)
		close(c.done)
	})
}

func (c *localConn) serve() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panicked", slog.String("conn", c.id), slogx.Error(fmt.Errorf("%v", r)))
			c.shutdown()
		}
		c.listener.handler.Disconnected(c)
	}()

	for {
		select {
		case op := <-c.ops:
			c.listener.handler.ServeOperation(c.listener.ctx, c, op)
		case <-c.done:
			return
		}
	}
}
