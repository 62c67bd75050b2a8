package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/casualjim/blip/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHook struct {
	mu    sync.Mutex
	calls []string
}

func (h *recordingHook) record(kind string, msg events.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, kind+":"+msg.Type.String())
}

func (h *recordingHook) OnSessionStatus(_ context.Context, m events.Message)  { h.record("session", m) }
func (h *recordingHook) OnServiceStatus(_ context.Context, m events.Message)  { h.record("service", m) }
func (h *recordingHook) OnTokenStatus(_ context.Context, m events.Message)    { h.record("token", m) }
func (h *recordingHook) OnAdmin(_ context.Context, m events.Message)          { h.record("admin", m) }
func (h *recordingHook) OnTopicStatus(_ context.Context, m events.Message)    { h.record("topic", m) }
func (h *recordingHook) OnResponse(_ context.Context, m events.Message)       { h.record("response", m) }
func (h *recordingHook) OnRequestStatus(_ context.Context, m events.Message)  { h.record("request", m) }
func (h *recordingHook) OnSubscriptionData(_ context.Context, m events.Message) {
	h.record("data", m)
}
func (h *recordingHook) OnSubscriptionStatus(_ context.Context, m events.Message) {
	h.record("subscription", m)
}
func (h *recordingHook) OnPartialResponse(_ context.Context, m events.Message) {
	h.record("partial", m)
}

// scripted replays events, then fails like a drained session.
type scripted struct {
	events []events.Event
}

var errDrained = errors.New("drained")

func (s *scripted) NextEvent(context.Context) (events.Event, error) {
	if len(s.events) == 0 {
		return events.Event{}, errDrained
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func msg(name events.Name) events.Message {
	return events.NewMessage(name, events.IntID(1), "")
}

func TestLoop_RoutesInOrderAndStopsOnTerminal(t *testing.T) {
	hook := &recordingHook{}
	loop, err := New(hook)
	require.NoError(t, err)

	src := &scripted{events: []events.Event{
		events.New(events.SessionStatus, msg(events.SessionConnectionUp), msg(events.SessionStarted)),
		events.New(events.ServiceStatus, msg(events.ServiceOpened)),
		events.New(events.SubscriptionStatus, msg(events.SubscriptionStarted)),
		events.New(events.SubscriptionData, msg(events.MarketData), msg(events.MarketData)),
		events.New(events.TopicStatus, msg(events.TopicActivated)),
		events.New(events.Admin, msg(events.SlowConsumerWarning)),
		events.New(events.TokenStatus, msg(events.TokenGenerationSuccess)),
		events.New(events.PartialResponse, msg(events.ReferenceDataResponse)),
		events.New(events.Response, msg(events.ReferenceDataResponse)),
		events.New(events.RequestStatus, msg(events.RequestFailure)),
		events.New(events.SessionStatus, msg(events.SessionTerminated)),
		events.New(events.SubscriptionData, msg(events.MarketData)),
	}}

	require.NoError(t, loop.Run(context.Background(), src))
	assert.Equal(t, []string{
		"session:SessionConnectionUp",
		"session:SessionStarted",
		"service:ServiceOpened",
		"subscription:SubscriptionStarted",
		"data:MarketData",
		"data:MarketData",
		"topic:TopicActivated",
		"admin:SlowConsumerWarning",
		"token:TokenGenerationSuccess",
		"partial:ReferenceDataResponse",
		"response:ReferenceDataResponse",
		"request:RequestFailure",
		"session:SessionTerminated",
	}, hook.calls)
	assert.Len(t, src.events, 1, "nothing is pulled after the terminal event")
	assert.ErrorIs(t, loop.Err(), ErrTerminated)
	assert.Equal(t, events.SessionTerminated, loop.Last().Type)
	assert.Equal(t, int64(1), loop.DataEvents())

	select {
	case <-loop.Done():
	default:
		t.Fatal("done is not closed")
	}
	assert.False(t, loop.Handle(context.Background(), events.New(events.SubscriptionData, msg(events.MarketData))))
}

func TestLoop_StartupFailureIsTerminalByDefault(t *testing.T) {
	loop, err := New(&recordingHook{})
	require.NoError(t, err)
	assert.False(t, loop.Handle(context.Background(), events.New(events.SessionStatus, msg(events.SessionStartupFailure))))
	assert.ErrorIs(t, loop.Err(), ErrTerminated)
}

func TestLoop_ConfigurableTerminalNames(t *testing.T) {
	loop, err := New(&recordingHook{}, WithTerminal(events.SessionTerminated))
	require.NoError(t, err)
	ctx := context.Background()

	assert.True(t, loop.Handle(ctx, events.New(events.SessionStatus, msg(events.SessionStartupFailure))))
	assert.True(t, loop.Handle(ctx, events.New(events.SessionStatus, msg(events.SessionConnectionDown))))
	assert.False(t, loop.Handle(ctx, events.New(events.SessionStatus, msg(events.SessionTerminated))))

	_, err = New(&recordingHook{}, WithTerminal())
	assert.Error(t, err)
}

func TestLoop_MaxEvents(t *testing.T) {
	loop, err := New(&recordingHook{}, WithMaxEvents(2))
	require.NoError(t, err)
	ctx := context.Background()

	assert.True(t, loop.Handle(ctx, events.New(events.SubscriptionStatus, msg(events.SubscriptionStarted))))
	assert.True(t, loop.Handle(ctx, events.New(events.SubscriptionData, msg(events.MarketData), msg(events.MarketData))))
	assert.False(t, loop.Handle(ctx, events.New(events.SubscriptionData, msg(events.MarketData))))
	assert.ErrorIs(t, loop.Err(), ErrMaxEvents)
	assert.Equal(t, int64(2), loop.DataEvents())

	_, err = New(&recordingHook{}, WithMaxEvents(-1))
	assert.Error(t, err)
}

func TestLoop_RunReturnsSourceError(t *testing.T) {
	loop, err := New(&recordingHook{})
	require.NoError(t, err)
	err = loop.Run(context.Background(), &scripted{})
	assert.ErrorIs(t, err, errDrained)
	assert.NoError(t, loop.Err())
}

func TestLoop_UnknownEventTypeIsSkipped(t *testing.T) {
	hook := &recordingHook{}
	loop, err := New(hook)
	require.NoError(t, err)
	assert.True(t, loop.Handle(context.Background(), events.New(events.Unknown, msg("Mystery"))))
	assert.Empty(t, hook.calls)
}
