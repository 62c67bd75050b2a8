package publish

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/casualjim/blip"
	"github.com/casualjim/blip/events"
	"github.com/casualjim/blip/internal/metrics"
	"github.com/casualjim/blip/pkg/arena"
	"github.com/casualjim/blip/pkg/slogx"
	"github.com/fogfish/opts"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const defaultPeriod = time.Second

var errNotCreated = errors.New("topic not created")

// Session is the part of a blip.Session the scheduler needs.
type Session interface {
	CreateTopics(ctx context.Context, list *blip.TopicList, mode blip.ResolveMode, identity *blip.Identity) error
	Topic(msg events.Message) (*blip.Topic, error)
	Service(name string) (*blip.Service, error)
	Publish(ctx context.Context, ev events.Event) error
	Done() <-chan struct{}
}

// Stream pairs a caller chosen id with the topic it publishes on.
type Stream struct {
	ID    string
	Topic *blip.Topic

	active bool
}

// Active reports whether the stream takes part in publish cycles.
func (s Stream) Active() bool {
	return s.active && s.Topic != nil && !s.Topic.IsDeleted()
}

// FieldSource supplies the field values of one stream for one cycle. Fields
// are set on the message in iteration order.
type FieldSource interface {
	Fields(ctx context.Context, stream Stream, tick int64) (*orderedmap.OrderedMap[string, any], error)
}

type FieldSourceFunc func(ctx context.Context, stream Stream, tick int64) (*orderedmap.OrderedMap[string, any], error)

func (f FieldSourceFunc) Fields(ctx context.Context, stream Stream, tick int64) (*orderedmap.OrderedMap[string, any], error) {
	return f(ctx, stream, tick)
}

// Scheduler publishes on every active stream once per period.
type Scheduler struct {
	session Session
	service string
	source  FieldSource

	period         time.Duration
	onPublishError func(error)
	logger         *slog.Logger

	streams *arena.Arena[Stream]
	ticks   atomic.Int64
}

type Option = opts.Option[Scheduler]

var (
	WithPeriod = opts.ForName[Scheduler, time.Duration]("period")
	WithLogger = opts.ForName[Scheduler, *slog.Logger]("logger")
	// WithOnPublishError is called with the error of every failed cycle.
	WithOnPublishError = opts.ForName[Scheduler, func(error)]("onPublishError")
)

// New creates a scheduler publishing on topics of service.
func New(session Session, service string, source FieldSource, options ...Option) (*Scheduler, error) {
	if session == nil {
		return nil, errors.New("session is required")
	}
	if source == nil {
		return nil, errors.New("field source is required")
	}
	if _, _, ok := events.SplitTopic(service); !ok {
		return nil, fmt.Errorf("%w: service %q", blip.ErrInvalidTopic, service)
	}
	s := &Scheduler{
		session: session,
		service: service,
		source:  source,
		period:  defaultPeriod,
		streams: arena.New[Stream](),
	}
	if err := opts.Apply(s, options); err != nil {
		return nil, err
	}
	if s.period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %s", s.period)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With(slog.String("service", service))
	return s, nil
}

// Resolve creates a topic for every id and adds the created ones to the active
// set. Ids whose topic could not be created are returned with the reason; they
// never take part in a publish cycle. The error is for the batch as a whole.
func (s *Scheduler) Resolve(ctx context.Context, identity *blip.Identity, ids ...string) (map[string]error, error) {
	list := blip.NewTopicList()
	handles := make([]arena.Handle, len(ids))
	for i, id := range ids {
		handles[i] = s.streams.Insert(Stream{ID: id})
		list.Add(events.QualifyTopic(s.service, id), events.HandleID(uint64(handles[i])))
	}

	if err := s.session.CreateTopics(ctx, list, blip.RegisterServices, identity); err != nil {
		for _, h := range handles {
			s.streams.Remove(h)
		}
		return nil, fmt.Errorf("resolve streams: %w", err)
	}

	failed := make(map[string]error)
	for i, h := range handles {
		topic, err := s.topicAt(list, i)
		if err != nil {
			s.streams.Remove(h)
			failed[ids[i]] = err
			s.logger.WarnContext(ctx, "stream not resolved", slog.String("stream", ids[i]), slogx.Error(err))
			continue
		}
		s.streams.Update(h, func(st *Stream) {
			st.Topic = topic
			st.active = true
		})
	}
	s.report()
	return failed, nil
}

func (s *Scheduler) topicAt(list *blip.TopicList, i int) (*blip.Topic, error) {
	msg, ok := list.MessageAt(i)
	if !ok {
		if err := list.ErrAt(i); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", list.NameAt(i), errNotCreated)
	}
	return s.session.Topic(msg)
}

// Streams returns a snapshot of every resolved stream, active or not.
func (s *Scheduler) Streams() []Stream {
	var out []Stream
	for _, st := range s.streams.All() {
		if st.Topic != nil {
			out = append(out, st)
		}
	}
	return out
}

// Active is the number of streams in the active set.
func (s *Scheduler) Active() int {
	var n int
	for range s.active() {
		n++
	}
	return n
}

func (s *Scheduler) active() iter.Seq2[arena.Handle, Stream] {
	return func(yield func(arena.Handle, Stream) bool) {
		for h, st := range s.streams.All() {
			if !st.Active() {
				continue
			}
			if !yield(h, st) {
				return
			}
		}
	}
}

// Run publishes every period until the active set is empty, the session
// terminates or ctx is done. Failed cycles are reported and not retried.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		if s.Active() == 0 {
			s.logger.InfoContext(ctx, "no active streams left")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.session.Done():
			s.logger.InfoContext(ctx, "session terminated, publishing stopped")
			return nil
		case <-ticker.C:
			_ = s.Tick(ctx)
		}
	}
}

// Tick runs a single publish cycle: one event with one message per active
// stream, sent with one Publish.
func (s *Scheduler) Tick(ctx context.Context) error {
	tick := s.ticks.Add(1)

	svc, err := s.session.Service(s.service)
	if err != nil {
		return s.failed(ctx, err)
	}
	ev := svc.CreatePublishEvent()
	for _, st := range s.active() {
		fields, err := s.source.Fields(ctx, st, tick)
		if err != nil {
			return s.failed(ctx, fmt.Errorf("fields of %s: %w", st.ID, err))
		}
		ev.AppendMessage(events.MarketData, st.Topic.Ref()).SetElements(fields)
	}
	if ev.Len() == 0 {
		return nil
	}

	batch, err := ev.Event()
	if err != nil {
		return s.failed(ctx, err)
	}
	if err := s.session.Publish(ctx, batch); err != nil {
		return s.failed(ctx, err)
	}
	metrics.RecordPublish(true)
	s.logger.DebugContext(ctx, "published", slog.Int64("tick", tick), slog.Int("messages", len(batch.Messages)))
	return nil
}

func (s *Scheduler) failed(ctx context.Context, err error) error {
	metrics.RecordPublish(false)
	s.logger.WarnContext(ctx, "publish cycle failed", slogx.Error(err))
	if s.onPublishError != nil {
		s.onPublishError(err)
	}
	return err
}

// Observe applies every topic status message of ev.
func (s *Scheduler) Observe(ev events.Event) {
	if ev.Type != events.TopicStatus {
		return
	}
	for _, msg := range ev.Messages {
		s.OnTopicStatus(context.Background(), msg)
	}
}

// OnTopicStatus updates the stream a topic status message refers to.
// Deactivated streams leave the active set until they are activated again,
// deleted streams are dropped.
func (s *Scheduler) OnTopicStatus(_ context.Context, msg events.Message) {
	cid := msg.CorrelationID
	if cid.Kind() != events.KindHandle {
		return
	}
	h := arena.Handle(cid.Value())

	switch msg.Type {
	case events.TopicActivated, events.TopicSubscribed, events.TopicResubscribed, events.TopicRecap:
		s.streams.Update(h, func(st *Stream) { st.active = st.Topic != nil })
	case events.TopicDeactivated:
		s.streams.Update(h, func(st *Stream) { st.active = false })
	case events.TopicDeleted, events.TopicCreateFailure:
		s.streams.Remove(h)
	default:
		return
	}
	s.report()
}

func (s *Scheduler) report() {
	metrics.ActiveStreams.Set(float64(s.Active()))
}
