package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/blip/events"
	"github.com/casualjim/blip/pkg/natsx"
	"github.com/casualjim/blip/pkg/slogx"
	"github.com/casualjim/blip/pkg/uuidx"
	"github.com/nats-io/nats.go"
)

const (
	// DefaultOpsSubject is where clients publish operations.
	DefaultOpsSubject = "blip.ops"
	serverQueue       = "blip-servers"
	inboxPrefix       = "blip.session."
	closedSuffix      = ".closed"
)

type natsBroker struct {
	subject string
	options []nats.Option
}

// NATS returns a broker routing connections through the NATS server found at
// the dialed or served address.
func NATS(opts ...nats.Option) *natsBroker {
	return &natsBroker{
		subject: DefaultOpsSubject,
		options: opts,
	}
}

// WithSubject sets the subject operations are published on.
func (b *natsBroker) WithSubject(subject string) *natsBroker {
	b.subject = subject
	return b
}

func (b *natsBroker) Dial(ctx context.Context, addr string, opts DialOptions) (Conn, error) {
	nc, err := natsx.Connect(addr, opts.Name, opts.TLS, b.options...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w: %w", addr, ErrUnreachable, err)
	}

	id := uuidx.NewString()
	c := &natsConn{
		id:      id,
		nc:      nc,
		subject: b.subject,
		inbox:   inboxPrefix + id,
		events:  make(chan events.Event, eventBufferSize),
		done:    make(chan struct{}),
	}
	nc.SetClosedHandler(func(*nats.Conn) { c.shutdown() })

	if _, err := nc.Subscribe(c.inbox, c.onEvent); err != nil {
		nc.Close()
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if _, err := nc.Subscribe(c.inbox+closedSuffix, func(*nats.Msg) { nc.Close() }); err != nil {
		nc.Close()
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	hello, err := events.EncodeOperation(events.Operation{Kind: events.OpConnect, Session: id, Client: opts.Name, AuthOptions: opts.Auth})
	if err != nil {
		nc.Close()
		return nil, err
	}
	if _, err := nc.RequestWithContext(ctx, b.subject, hello); err != nil {
		nc.Close()
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, fmt.Errorf("dial %s: %w", addr, ErrUnreachable)
		}
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return c, nil
}

type natsConn struct {
	id      string
	nc      *nats.Conn
	subject string
	inbox   string
	events  chan events.Event
	done    chan struct{}
	once    sync.Once
}

func (c *natsConn) ID() string                  { return c.id }
func (c *natsConn) Events() <-chan events.Event { return c.events }
func (c *natsConn) Done() <-chan struct{}       { return c.done }

func (c *natsConn) onEvent(msg *nats.Msg) {
	ev, err := events.FromJSON(msg.Data)
	if err != nil {
		slog.Error("failed to unmarshal event", slogx.Error(err), slog.String("conn", c.id))
		return
	}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *natsConn) Send(ctx context.Context, op events.Operation) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	op.Session = c.id
	data, err := events.EncodeOperation(op)
	if err != nil {
		return err
	}
	if err := c.nc.Publish(c.subject, data); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

func (c *natsConn) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	if bye, err := events.EncodeOperation(events.Operation{Kind: events.OpDisconnect, Session: c.id}); err == nil {
		if err := c.nc.Publish(c.subject, bye); err == nil {
			_ = c.nc.Flush()
		}
	}
	c.nc.Close()
	c.shutdown()
	return nil
}

func (c *natsConn) shutdown() {
	c.once.Do(func() { close(c.done) })
}

func (b *natsBroker) Serve(ctx context.Context, addr string, handler Handler) (Listener, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	nc, err := natsx.Connect(addr, "blip-server", nil, b.options...)
	if err != nil {
		return nil, fmt.Errorf("serve %s: %w", addr, err)
	}

	l := &natsListener{
		addr:    addr,
		nc:      nc,
		handler: handler,
		peers:   haxmap.New[string, *natsPeer](),
		ctx:     context.WithoutCancel(ctx),
	}
	sub, err := nc.QueueSubscribe(b.subject, serverQueue, l.onOperation)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("serve %s: %w", addr, err)
	}
	l.sub = sub
	return l, nil
}

type natsListener struct {
	addr    string
	nc      *nats.Conn
	sub     *nats.Subscription
	handler Handler
	peers   *haxmap.Map[string, *natsPeer]
	ctx     context.Context
	once    sync.Once
}

func (l *natsListener) Addr() string {
	return l.addr
}

func (l *natsListener) onOperation(msg *nats.Msg) {
	op, err := events.DecodeOperation(msg.Data)
	if err != nil {
		slog.Error("failed to decode operation", slogx.Error(err))
		return
	}

	switch op.Kind {
	case events.OpConnect:
		peer := &natsPeer{id: op.Session, name: op.Client, inbox: inboxPrefix + op.Session, listener: l}
		l.peers.Set(peer.id, peer)
		l.handler.ServeOperation(l.ctx, peer, op)
		if err := msg.Respond([]byte("ok")); err != nil {
			slog.Error("failed to acknowledge connect", slogx.Error(err), slog.String("conn", op.Session))
		}
	case events.OpDisconnect:
		if peer, ok := l.peers.Get(op.Session); ok {
			_ = peer.end(false)
		}
	default:
		peer, ok := l.peers.Get(op.Session)
		if !ok {
			slog.Warn("operation from unknown session", slog.String("conn", op.Session), slog.String("kind", string(op.Kind)))
			return
		}
		l.handler.ServeOperation(l.ctx, peer, op)
	}
}

func (l *natsListener) Close() error {
	var err error
	l.once.Do(func() {
		l.peers.ForEach(func(_ string, p *natsPeer) bool {
			_ = p.Close()
			return true
		})
		if uerr := l.sub.Unsubscribe(); uerr != nil {
			err = uerr
		}
		l.nc.Close()
	})
	return err
}

type natsPeer struct {
	id       string
	name     string
	inbox    string
	listener *natsListener
	once     sync.Once
}

func (p *natsPeer) ID() string   { return p.id }
func (p *natsPeer) Name() string { return p.name }

func (p *natsPeer) Deliver(ctx context.Context, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := events.ToJSON(ev)
	if err != nil {
		return err
	}
	if err := p.listener.nc.Publish(p.inbox, data); err != nil {
		if errors.Is(err, nats.ErrSlowConsumer) {
			return ErrSlowConsumer
		}
		if errors.Is(err, nats.ErrConnectionClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Close tells the client its connection ended.
func (p *natsPeer) Close() error {
	return p.end(true)
}

func (p *natsPeer) end(notify bool) error {
	var err error
	p.once.Do(func() {
		p.listener.peers.Del(p.id)
		if notify {
			err = p.listener.nc.Publish(p.inbox+closedSuffix, nil)
		}
		p.listener.handler.Disconnected(p)
	})
	return err
}
