package simulator

import (
	"context"
	"sync"
	"testing"

	"github.com/casualjim/blip/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/sjson"
)

type fakePeer struct {
	id     string
	mu     sync.Mutex
	events []events.Event
	closed bool
}

func (p *fakePeer) ID() string   { return p.id }
func (p *fakePeer) Name() string { return "test-" + p.id }

func (p *fakePeer) Deliver(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) last(t *testing.T) events.Event {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.events)
	return p.events[len(p.events)-1]
}

func (p *fakePeer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func newSim(t *testing.T, options ...Option) *Simulator {
	t.Helper()
	sim, err := New(options...)
	require.NoError(t, err)
	return sim
}

func connect(sim *Simulator, id string) *fakePeer {
	p := &fakePeer{id: id}
	sim.ServeOperation(context.Background(), p, events.Operation{Kind: events.OpConnect, Session: id})
	return p
}

func TestSimulator_OpenService(t *testing.T) {
	sim := newSim(t, WithServices("//acme/prices"))
	p := connect(sim, "a")
	assert.Equal(t, 1, sim.Peers())

	tests := []struct {
		kind    events.OperationKind
		service string
		want    events.Name
	}{
		{events.OpOpenService, events.ServiceRefData, events.ServiceOpened},
		{events.OpOpenService, "//acme/prices", events.ServiceOpened},
		{events.OpOpenService, "//nope/svc", events.ServiceOpenFailure},
		{events.OpRegister, events.ServiceViper, events.ServiceRegistered},
		{events.OpRegister, "//nope/svc", events.ServiceRegisterFailure},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind)+" "+tt.service, func(t *testing.T) {
			sim.ServeOperation(context.Background(), p, events.Operation{Kind: tt.kind, RequestID: "r1", Service: tt.service, CorrelationID: events.IntID(1)})
			ev := p.last(t)
			assert.Equal(t, events.ServiceStatus, ev.Type)
			assert.Equal(t, "r1", ev.RequestID)
			assert.Equal(t, tt.want, ev.Messages[0].Type)
			body := ev.Messages[0].Body().(events.ServiceStatusBody)
			assert.Equal(t, tt.service, body.ServiceName)
		})
	}
}

func TestSimulator_TokenAndAuthorization(t *testing.T) {
	ctx := context.Background()

	t.Run("issued token authorizes", func(t *testing.T) {
		sim := newSim(t)
		p := connect(sim, "a")
		sim.ServeOperation(ctx, p, events.Operation{Kind: events.OpGenerateToken, CorrelationID: events.AutoID(1)})
		body := p.last(t).Messages[0].Body().(events.TokenBody)
		require.True(t, body.Success())

		payload, _ := sjson.Set(`{}`, events.ElementToken, body.Token)
		sim.ServeOperation(ctx, p, events.Operation{Kind: events.OpAuthorize, CorrelationID: events.IntID(2), Payload: []byte(payload)})
		ev := p.last(t)
		assert.Equal(t, events.Response, ev.Type)
		assert.Equal(t, events.AuthorizationSuccess, ev.Messages[0].Type)
		assert.Equal(t, events.IntID(2), ev.Messages[0].CorrelationID)
	})

	t.Run("unknown token is refused", func(t *testing.T) {
		sim := newSim(t)
		p := connect(sim, "a")
		sim.ServeOperation(ctx, p, events.Operation{Kind: events.OpAuthorize, CorrelationID: events.IntID(2), Payload: []byte(`{"token":"forged"}`)})
		msg := p.last(t).Messages[0]
		assert.Equal(t, events.AuthorizationFailure, msg.Type)
		assert.Equal(t, "BAD_ARGS", msg.Reason().Category)
	})

	t.Run("token failure", func(t *testing.T) {
		sim := newSim(t, WithTokenFailure(true))
		p := connect(sim, "a")
		sim.ServeOperation(ctx, p, events.Operation{Kind: events.OpGenerateToken, CorrelationID: events.AutoID(1)})
		body := p.last(t).Messages[0].Body().(events.TokenBody)
		assert.False(t, body.Success())
		assert.Equal(t, events.TokenGenerationFailure, body.Kind)
	})
}

func TestSimulator_TopicLifecycle(t *testing.T) {
	ctx := context.Background()
	sim := newSim(t)
	pub := connect(sim, "pub")
	sub := connect(sim, "sub")
	topic := events.ServiceViper + "/ticker/IBM Equity"

	sim.ServeOperation(ctx, pub, events.Operation{
		Kind:      events.OpCreateTopics,
		RequestID: "create",
		Topics: []events.TopicEntry{
			{Topic: topic, CorrelationID: events.IntID(1)},
			{Topic: "//nope/svc/x", CorrelationID: events.IntID(2)},
		},
	})
	created := pub.last(t)
	require.Equal(t, "create", created.RequestID)
	require.Len(t, created.Messages, 2)
	assert.Equal(t, events.TopicCreated, created.Messages[0].Type)
	assert.Equal(t, events.TopicCreateFailure, created.Messages[1].Type)
	ref := created.Messages[0].Topic
	require.NotEmpty(t, ref)

	sim.ServeOperation(ctx, sub, events.Operation{Kind: events.OpSubscribe, Subscriptions: []events.SubscriptionEntry{{Topic: topic, CorrelationID: events.IntID(9)}}})
	assert.Equal(t, events.SubscriptionStarted, sub.last(t).Messages[0].Type)
	activated := pub.last(t)
	assert.True(t, activated.Has(events.TopicSubscribed))
	assert.True(t, activated.Has(events.TopicActivated))

	data := events.New(events.SubscriptionData, events.NewMessage(events.MarketData, events.CorrelationID{}, `{"BID":1.5}`).WithTopic(ref))
	sim.ServeOperation(ctx, pub, events.Operation{Kind: events.OpPublish, Event: &data})
	got := sub.last(t)
	require.Equal(t, events.SubscriptionData, got.Type)
	assert.Equal(t, events.IntID(9), got.Messages[0].CorrelationID)
	assert.Equal(t, topic, got.Messages[0].Topic)
	assert.InDelta(t, 1.5, got.Messages[0].Get("BID").Float(), 0.0001)

	sim.ServeOperation(ctx, sub, events.Operation{Kind: events.OpUnsubscribe, Subscriptions: []events.SubscriptionEntry{{Topic: topic, CorrelationID: events.IntID(9)}}})
	assert.Equal(t, events.SubscriptionTerminated, sub.last(t).Messages[0].Type)
	assert.True(t, pub.last(t).Has(events.TopicDeactivated))

	sim.ServeOperation(ctx, pub, events.Operation{Kind: events.OpDeleteTopics, Topics: []events.TopicEntry{{Topic: topic, Ref: ref}}})
	assert.True(t, pub.last(t).Has(events.TopicDeleted))

	before := sub.count()
	sim.ServeOperation(ctx, pub, events.Operation{Kind: events.OpPublish, Event: &data})
	assert.Equal(t, before, sub.count(), "deleted topics are not forwarded")
}

func TestSimulator_DisconnectedForgetsOwnedTopics(t *testing.T) {
	ctx := context.Background()
	sim := newSim(t)
	pub := connect(sim, "pub")
	topic := events.ServiceViper + "/ticker/IBM Equity"
	sim.ServeOperation(ctx, pub, events.Operation{Kind: events.OpCreateTopics, Topics: []events.TopicEntry{{Topic: topic, CorrelationID: events.IntID(1)}}})

	sim.Disconnected(pub)
	assert.Equal(t, 0, sim.Peers())

	other := connect(sim, "other")
	sim.ServeOperation(ctx, other, events.Operation{Kind: events.OpCreateTopics, Topics: []events.TopicEntry{{Topic: topic, CorrelationID: events.IntID(1)}}})
	assert.Equal(t, events.TopicCreated, other.last(t).Messages[0].Type)
}

func TestSimulator_TickFeedsUnprovidedMarketData(t *testing.T) {
	ctx := context.Background()
	sim := newSim(t)
	sub := connect(sim, "sub")
	sim.ServeOperation(ctx, sub, events.Operation{Kind: events.OpSubscribe, Subscriptions: []events.SubscriptionEntry{
		{Topic: "IBM US Equity", Fields: []string{"LAST_PRICE"}, CorrelationID: events.IntID(1)},
		{Topic: "/ticker/MSFT US Equity", CorrelationID: events.IntID(2)},
	}})

	require.NoError(t, sim.Tick(ctx))
	ev := sub.last(t)
	require.Equal(t, events.SubscriptionData, ev.Type)
	require.Len(t, ev.Messages, 2)
	for _, msg := range ev.Messages {
		switch msg.CorrelationID {
		case events.IntID(1):
			assert.Equal(t, events.ServiceMktData+"/ticker/IBM US Equity", msg.Topic)
			assert.True(t, msg.HasElement("LAST_PRICE"))
			assert.False(t, msg.HasElement("BID"))
		case events.IntID(2):
			assert.True(t, msg.HasElement("BID"))
			assert.True(t, msg.HasElement("ASK"))
		default:
			t.Fatalf("unexpected cid %s", msg.CorrelationID)
		}
	}
}

func TestDefaultReferenceData(t *testing.T) {
	v, ok, err := DefaultReferenceData("IBM US Equity", "px_last")
	require.NoError(t, err)
	assert.True(t, ok)
	again, _, _ := DefaultReferenceData("IBM US Equity", "PX_LAST")
	assert.Equal(t, v, again, "values are stable")

	name, ok, err := DefaultReferenceData("IBM US Equity", "NAME")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "IBM", name)

	_, ok, err = DefaultReferenceData("IBM US Equity", "NOPE")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = DefaultReferenceData("IBM", "PX_LAST")
	assert.Error(t, err)
}
