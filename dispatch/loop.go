package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/casualjim/blip/events"
	"github.com/casualjim/blip/pkg/slogx"
	"github.com/fogfish/opts"
)

var (
	// ErrTerminated is reported by a loop that stopped on a terminal session status.
	ErrTerminated = errors.New("dispatch: session terminated")
	// ErrMaxEvents is reported by a loop that stopped after its data event budget.
	ErrMaxEvents = errors.New("dispatch: max events reached")
)

// Source is anything events can be pulled from, a session in particular.
type Source interface {
	NextEvent(ctx context.Context) (events.Event, error)
}

// Loop routes events to a hook until the stream ends.
type Loop struct {
	hook      events.Hook
	terminal  []events.Name
	maxEvents int64
	logger    *slog.Logger

	dataEvents atomic.Int64
	done       chan struct{}
	once       sync.Once
	mu         sync.Mutex
	err        error
	last       events.Message
}

type Option = opts.Option[Loop]

var (
	// WithMaxEvents stops the loop after n data events. Zero means no limit.
	WithMaxEvents = opts.ForName[Loop, int64]("maxEvents")
	WithLogger    = opts.ForName[Loop, *slog.Logger]("logger")
)

// WithTerminal replaces the session status names that end the loop.
func WithTerminal(names ...events.Name) Option {
	return opts.Type[Loop](func(l *Loop) error {
		if len(names) == 0 {
			return errors.New("at least one terminal name is required")
		}
		l.terminal = slices.Clone(names)
		return nil
	})
}

func New(hook events.Hook, options ...Option) (*Loop, error) {
	if hook == nil {
		return nil, errors.New("hook is required")
	}
	l := &Loop{
		hook:     hook,
		terminal: slices.Clone(events.TerminalNames),
		done:     make(chan struct{}),
	}
	if err := opts.Apply(l, options); err != nil {
		return nil, err
	}
	if l.maxEvents < 0 {
		return nil, fmt.Errorf("max events must not be negative, got %d", l.maxEvents)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l, nil
}

// Handle routes one event and reports whether the loop wants more. Once it
// returned false, later events are ignored.
func (l *Loop) Handle(ctx context.Context, ev events.Event) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	if !events.Route(ctx, l.hook, ev) {
		l.logger.WarnContext(ctx, "unknown event type", slog.String("event", ev.String()))
		return true
	}

	switch ev.Type {
	case events.SessionStatus:
		for _, msg := range ev.Messages {
			if slices.Contains(l.terminal, msg.Type) {
				l.finish(msg, fmt.Errorf("%w: %s", ErrTerminated, msg.Type))
				return false
			}
		}
	case events.SubscriptionData:
		n := l.dataEvents.Add(1)
		if l.maxEvents > 0 && n >= l.maxEvents {
			l.finish(ev.Messages[len(ev.Messages)-1], ErrMaxEvents)
			return false
		}
	}
	return true
}

// Run pulls events from src until the loop is done, src fails or ctx ends.
// A loop that ended on its own terms returns nil.
func (l *Loop) Run(ctx context.Context, src Source) error {
	for {
		ev, err := src.NextEvent(ctx)
		if err != nil {
			l.logger.DebugContext(ctx, "event source failed", slogx.Error(err))
			return err
		}
		if !l.Handle(ctx, ev) {
			return nil
		}
	}
}

// Done is closed when the loop saw a terminal status or reached its budget.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Err explains why the loop is done: ErrTerminated or ErrMaxEvents.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Last is the message that ended the loop.
func (l *Loop) Last() events.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// DataEvents is the number of data events routed so far.
func (l *Loop) DataEvents() int64 {
	return l.dataEvents.Load()
}

func (l *Loop) finish(msg events.Message, err error) {
	l.once.Do(func() {
		l.mu.Lock()
		l.err, l.last = err, msg
		l.mu.Unlock()
		close(l.done)
	})
}
