package blip

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casualjim/blip/auth"
	"github.com/casualjim/blip/events"
	"github.com/casualjim/blip/internal/future"
	"github.com/casualjim/blip/internal/metrics"
	"github.com/casualjim/blip/internal/registry"
	"github.com/casualjim/blip/pkg/slogx"
	"github.com/casualjim/blip/pkg/uuidx"
	"github.com/casualjim/blip/transport"
	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/sjson"
)

type sessionState uint8

const (
	stateIdle sessionState = iota
	stateStarting
	stateStarted
	stateStopping
	stateTerminated
)

// Session is a connection to one server of an endpoint set. Events produced
// by the session are consumed either by pulling them with NextEvent or by a
// Handler installed with WithHandler, never both.
type Session struct {
	id            string
	name          string
	endpoints     EndpointSet
	startAttempts int
	leasedLine    LeasedLine
	tlsOptions    TLSOptions
	tlsConfig     *tls.Config
	authOptions   auth.Options
	broker        transport.Broker
	handler       Handler
	queueSize     int
	autoRestart   bool
	retryInterval time.Duration
	logger        *slog.Logger

	mu       sync.Mutex
	state    sessionState
	conn     transport.Conn
	endpoint Endpoint
	ctx      context.Context
	cancel   context.CancelFunc

	events            chan events.Event
	backlog           *backlog
	deliverStop       chan struct{}
	deliverDone       chan struct{}
	terminal          chan struct{}
	terminalOnce      sync.Once
	terminalEvent     events.Event
	terminalDelivered atomic.Bool
	handlerDone       chan struct{}
	readerDone        chan struct{}

	nextCID       atomic.Uint64
	services      registry.Registry[*Service]
	queues        registry.Registry[*events.Queue]
	pending       registry.Registry[future.CompletableFuture[events.Event]]
	topics        registry.Registry[*Topic]
	identities    registry.Registry[*Identity]
	subscriptions registry.Registry[events.SubscriptionEntry]
}

type handlerKey struct{}

func (s *Session) init() {
	s.id = uuidx.NewString()
	s.logger = s.logger.With(slogx.Session(s.id))
	s.events = make(chan events.Event, s.queueSize)
	s.backlog = newBacklog()
	s.deliverStop = make(chan struct{})
	s.deliverDone = make(chan struct{})
	s.terminal = make(chan struct{})
	s.handlerDone = make(chan struct{})
	s.readerDone = make(chan struct{})
	s.services = registry.New[*Service]()
	s.queues = registry.New[*events.Queue]()
	s.pending = registry.New[future.CompletableFuture[events.Event]]()
	s.topics = registry.New[*Topic]()
	s.identities = registry.New[*Identity]()
	s.subscriptions = registry.New[events.SubscriptionEntry]()
}

func (s *Session) ID() string {
	return s.id
}

// Endpoints returns the endpoint set. It does not change after New.
func (s *Session) Endpoints() EndpointSet {
	return s.endpoints
}

// Endpoint is the server the session is currently connected to.
func (s *Session) Endpoint() (Endpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint, s.conn != nil
}

// Start connects to the first reachable endpoint. Endpoints are tried in
// order, cycling through the set, until the attempt budget is spent.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = stateStarting
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	dialCtx, cancel := context.WithCancel(ctx)
	stopDial := context.AfterFunc(s.ctx, cancel)
	conn, ep, err := s.connect(dialCtx)
	stopDial()
	cancel()

	s.mu.Lock()
	stopped := s.state != stateStarting
	if err != nil || stopped {
		s.state = stateTerminated
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		s.cancel()
		close(s.readerDone)
		close(s.handlerDone)
		close(s.deliverDone)
		if stopped {
			s.terminate(statusEvent(events.SessionTerminated, "session stopped"))
			s.logger.InfoContext(ctx, "session stopped while starting")
			return ErrSessionTerminated
		}
		s.terminate(statusEvent(events.SessionStartupFailure, err.Error()))
		s.logger.ErrorContext(ctx, "session failed to start", slogx.Error(err))
		return fmt.Errorf("%w: %w", ErrNoEndpoint, err)
	}
	s.conn = conn
	s.endpoint = ep
	s.state = stateStarted
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "session started", slogx.Endpoint(ep.String()))
	go s.deliver()
	go s.read(conn, ep)
	if s.handler != nil {
		go s.work()
	} else {
		close(s.handlerDone)
	}
	return nil
}

func (s *Session) connect(ctx context.Context) (transport.Conn, Endpoint, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInterval
	b.MaxElapsedTime = 0

	var (
		conn    transport.Conn
		ep      Endpoint
		attempt int
	)
	dial := func() error {
		candidate := s.endpoints.At(attempt)
		attempt++
		c, err := s.broker.Dial(ctx, candidate.String(), s.dialOptions())
		metrics.RecordConnectAttempt(err == nil)
		if err != nil {
			s.logger.WarnContext(ctx, "connect attempt failed", slogx.Endpoint(candidate.String()), slog.Int("attempt", attempt), slogx.Error(err))
			return err
		}
		conn, ep = c, candidate
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.endpoints.Attempts()-1)), ctx)
	if err := backoff.Retry(dial, policy); err != nil {
		return nil, Endpoint{}, err
	}
	return conn, ep, nil
}

// Stop ends the session. Exactly one SessionTerminated event is produced and
// blocked waiters return promptly.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case stateIdle:
		s.state = stateTerminated
		s.mu.Unlock()
		close(s.readerDone)
		close(s.handlerDone)
		close(s.deliverDone)
		s.terminate(statusEvent(events.SessionTerminated, "session stopped"))
		return nil
	case stateStopping, stateTerminated:
		s.mu.Unlock()
		return s.wait(ctx)
	}
	s.state = stateStopping
	s.mu.Unlock()

	s.cancel()
	return s.wait(ctx)
}

func (s *Session) wait(ctx context.Context) error {
	select {
	case <-s.readerDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	if ctx.Value(handlerKey{}) == s {
		return nil
	}
	select {
	case <-s.handlerDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the session stopped producing events.
func (s *Session) Done() <-chan struct{} {
	return s.terminal
}

// NextEvent blocks until an event is available. After the terminal event
// was returned it fails with ErrSessionTerminated; a deadline on ctx turns
// into ErrTimeout.
func (s *Session) NextEvent(ctx context.Context) (events.Event, error) {
	if s.isIdle() {
		return events.Event{}, ErrNotStarted
	}
	if ev, ok := s.TryNextEvent(); ok {
		return ev, nil
	}

	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.terminal:
		if ev, ok := s.TryNextEvent(); ok {
			return ev, nil
		}
		return events.Event{}, ErrSessionTerminated
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return events.Event{}, timeoutError(ctx)
		}
		return events.Event{}, ctx.Err()
	}
}

// TryNextEvent returns an event when one is ready without blocking.
func (s *Session) TryNextEvent() (events.Event, bool) {
	select {
	case ev := <-s.events:
		return ev, true
	default:
	}
	select {
	case <-s.terminal:
		select {
		case ev := <-s.events:
			return ev, true
		default:
		}
		if ev, ok := s.backlog.pop(); ok {
			return ev, true
		}
		if s.terminalDelivered.CompareAndSwap(false, true) {
			return s.terminalEvent, true
		}
	default:
	}
	return events.Event{}, false
}

func (s *Session) isIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateIdle
}

func (s *Session) connection() (transport.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateIdle, stateStarting:
		return nil, ErrNotStarted
	case stateStarted:
		if s.conn == nil {
			return nil, transport.ErrClosed
		}
		return s.conn, nil
	default:
		return nil, ErrSessionTerminated
	}
}

func (s *Session) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state >= stateStopping
}

// read owns the connection: it routes inbound events, notices the
// connection going away, and restarts or terminates the session.
func (s *Session) read(conn transport.Conn, ep Endpoint) {
	defer close(s.readerDone)
	ctx := s.ctx

	s.emit(withServer(statusEvent(events.SessionConnectionUp, ""), ep))
	s.emit(withServer(statusEvent(events.SessionStarted, ""), ep))

	for {
		select {
		case ev := <-conn.Events():
			s.route(ctx, ev)

		case <-conn.Done():
			s.drain(ctx, conn)
			if s.stopping() {
				s.finish(statusEvent(events.SessionTerminated, "session stopped"))
				return
			}
			s.logger.WarnContext(ctx, "connection lost", slogx.Endpoint(ep.String()))
			s.emit(withServer(statusEvent(events.SessionConnectionDown, "connection lost"), ep))
			if !s.autoRestart {
				s.finish(statusEvent(events.SessionTerminated, "connection lost"))
				return
			}
			next, nextEp, err := s.restart(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "failed to restart session", slogx.Error(err))
				s.finish(statusEvent(events.SessionTerminated, err.Error()))
				return
			}
			conn, ep = next, nextEp
			s.emit(withServer(statusEvent(events.SessionConnectionUp, ""), ep))
			s.restore(ctx, conn)

		case <-ctx.Done():
			_ = conn.Close()
			s.drain(ctx, conn)
			s.finish(statusEvent(events.SessionTerminated, "session stopped"))
			return
		}
	}
}

func (s *Session) drain(ctx context.Context, conn transport.Conn) {
	for {
		select {
		case ev := <-conn.Events():
			s.route(ctx, ev)
		default:
			return
		}
	}
}

func (s *Session) restart(ctx context.Context) (transport.Conn, Endpoint, error) {
	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()

	conn, ep, err := s.connect(ctx)
	if err != nil {
		return nil, Endpoint{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateStarted {
		_ = conn.Close()
		return nil, Endpoint{}, ErrSessionTerminated
	}
	s.conn = conn
	s.endpoint = ep
	metrics.Restarts.Inc()
	s.logger.InfoContext(ctx, "session restarted", slogx.Endpoint(ep.String()))
	return conn, ep, nil
}

// restore recreates server-side state lost with the previous connection.
func (s *Session) restore(ctx context.Context, conn transport.Conn) {
	var topics []events.TopicEntry
	for _, t := range s.topics.All() {
		if t.IsDeleted() {
			continue
		}
		t.active.Store(false)
		topics = append(topics, events.TopicEntry{Topic: t.name, Ref: t.ref, CorrelationID: t.cid})
	}
	if len(topics) > 0 {
		if err := conn.Send(ctx, events.Operation{Kind: events.OpCreateTopics, Topics: topics}); err != nil {
			s.logger.WarnContext(ctx, "failed to recreate topics", slogx.Error(err))
		}
	}

	var subs []events.SubscriptionEntry
	for _, e := range s.subscriptions.All() {
		subs = append(subs, e)
	}
	if len(subs) > 0 {
		if err := conn.Send(ctx, events.Operation{Kind: events.OpSubscribe, Subscriptions: subs}); err != nil {
			s.logger.WarnContext(ctx, "failed to resubscribe", slogx.Error(err))
		}
	}
}

// route applies an inbound event to the session's bookkeeping and queues it
// for the consumer unless it belongs to a dedicated event queue.
func (s *Session) route(ctx context.Context, ev events.Event) {
	metrics.RecordEvent(ev.Type.String())

	if ev.RequestID != "" {
		if f, ok := s.pending.Take(ev.RequestID); ok {
			f.Complete(ev)
		}
	}

	switch ev.Type {
	case events.TokenStatus:
		for _, msg := range ev.Messages {
			if q, ok := s.queues.Take(msg.CorrelationID.Key()); ok {
				if err := q.Push(ctx, ev); err != nil {
					s.logger.WarnContext(ctx, "dropped token event", slogx.Stringer("cid", msg.CorrelationID), slogx.Error(err))
				}
				return
			}
		}
	case events.Response, events.PartialResponse, events.RequestStatus, events.Admin:
		s.trackAuthorization(ev)
	case events.TopicStatus:
		s.trackTopics(ev)
	}

	s.emit(ev)
}

func (s *Session) trackAuthorization(ev events.Event) {
	for _, msg := range ev.Messages {
		id, ok := s.identities.Get(msg.CorrelationID.Key())
		if !ok {
			continue
		}
		switch msg.Type {
		case events.AuthorizationSuccess:
			id.authorized.Store(true)
		case events.AuthorizationFailure, events.AuthorizationRevoked:
			id.authorized.Store(false)
			s.identities.Del(msg.CorrelationID.Key())
		}
	}
}

func (s *Session) trackTopics(ev events.Event) {
	for _, msg := range ev.Messages {
		body, ok := msg.Body().(events.TopicStatusBody)
		if !ok {
			continue
		}
		t, ok := s.topics.Get(msg.Topic)
		if !ok {
			continue
		}
		switch body.Kind {
		case events.TopicActivated:
			t.active.Store(true)
		case events.TopicDeactivated:
			t.active.Store(false)
		case events.TopicDeleted:
			t.active.Store(false)
			t.deleted.Store(true)
		}
	}
}

// emit queues ev for the consumer without blocking the reader.
func (s *Session) emit(ev events.Event) {
	s.backlog.push(ev)
}

// deliver moves events from the backlog into the consumer buffer in order.
// Once the session terminates whatever is left stays in the backlog and is
// read from there ahead of the terminal event.
func (s *Session) deliver() {
	defer close(s.deliverDone)
	for {
		ev, ok := s.backlog.pop()
		if !ok {
			select {
			case <-s.backlog.wake:
				continue
			case <-s.deliverStop:
				return
			}
		}
		select {
		case s.events <- ev:
		case <-s.deliverStop:
			s.backlog.unpop(ev)
			return
		}
	}
}

func (s *Session) finish(ev events.Event) {
	s.mu.Lock()
	s.state = stateTerminated
	s.conn = nil
	s.mu.Unlock()
	s.cancel()
	s.terminate(ev)
	s.logger.Info("session terminated", slog.String("event", ev.String()))
}

// terminate records the terminal event and wakes everyone waiting on the
// session. Only the first call has an effect.
func (s *Session) terminate(ev events.Event) {
	s.terminalOnce.Do(func() {
		close(s.deliverStop)
		<-s.deliverDone
		s.terminalEvent = ev
		var keys []string
		for key := range s.queues.All() {
			keys = append(keys, key)
		}
		for _, key := range keys {
			if q, ok := s.queues.Take(key); ok {
				q.Close()
			}
		}
		keys = keys[:0]
		for key := range s.pending.All() {
			keys = append(keys, key)
		}
		for _, key := range keys {
			if f, ok := s.pending.Take(key); ok {
				f.Error(ErrSessionTerminated)
			}
		}
		close(s.terminal)
	})
}

// work is the push-mode dispatcher: one goroutine handing events to the
// handler in the order they were produced.
func (s *Session) work() {
	defer close(s.handlerDone)
	ctx := context.WithValue(context.Background(), handlerKey{}, s)
	for {
		ev, err := s.NextEvent(ctx)
		if err != nil {
			return
		}
		s.handler.HandleEvent(ctx, ev, s)
	}
}

func (s *Session) correlationID(cid events.CorrelationID) events.CorrelationID {
	if cid.IsSet() {
		return cid
	}
	return events.AutoID(s.nextCID.Add(1))
}

func (s *Session) send(ctx context.Context, op events.Operation) error {
	conn, err := s.connection()
	if err != nil {
		return err
	}
	if err := conn.Send(ctx, op); err != nil {
		return fmt.Errorf("send %s: %w", op.Kind, err)
	}
	return nil
}

// call sends op and waits for the event answering it.
func (s *Session) call(ctx context.Context, op events.Operation) (events.Event, error) {
	op.RequestID = uuidx.NewString()
	f := future.New[events.Event]()
	s.pending.Add(op.RequestID, f)
	defer s.pending.Del(op.RequestID)

	select {
	case <-s.terminal:
		return events.Event{}, ErrSessionTerminated
	default:
	}

	if err := s.send(ctx, op); err != nil {
		return events.Event{}, err
	}
	ev, err := f.Get(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return events.Event{}, timeoutError(ctx)
		}
		return events.Event{}, err
	}
	return ev, nil
}

func statusEvent(name events.Name, reason string) events.Event {
	payload := "{}"
	if reason != "" {
		payload, _ = sjson.Set(`{"reason":{"source":"blip","category":"SESSION"}}`, "reason.description", reason)
	}
	return events.New(events.SessionStatus, events.NewMessage(name, events.CorrelationID{}, payload))
}

func withServer(ev events.Event, ep Endpoint) events.Event {
	msg := ev.Messages[0]
	doc, err := sjson.Set(msg.Raw(), "server", ep.String())
	if err != nil {
		return ev
	}
	ev.Messages = []events.Message{events.NewMessage(msg.Type, msg.CorrelationID, doc)}
	return ev
}
