package dispatch

import (
	"context"
	"testing"

	"github.com/casualjim/blip/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitResponse(t *testing.T) {
	mine := events.IntID(5)
	theirs := events.IntID(6)
	resp := func(typ events.EventType, cid events.CorrelationID, payload string) events.Event {
		return events.New(typ, events.NewMessage(events.ReferenceDataResponse, cid, payload))
	}

	t.Run("partials then response", func(t *testing.T) {
		src := &scripted{events: []events.Event{
			resp(events.PartialResponse, mine, `{"n":1}`),
			events.New(events.SubscriptionData, events.NewMessage(events.MarketData, theirs, "")),
			resp(events.Response, theirs, `{"n":99}`),
			resp(events.Response, mine, `{"n":2}`),
			resp(events.Response, mine, `{"n":3}`),
		}}
		var got []int64
		var others int
		err := AwaitResponse(context.Background(), src, mine, func(m events.Message) {
			got = append(got, m.Get("n").Int())
		}, func(events.Event) { others++ })
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, got)
		assert.Equal(t, 2, others)
		assert.Len(t, src.events, 1)
	})

	t.Run("request status fails without ending the session", func(t *testing.T) {
		src := &scripted{events: []events.Event{
			events.New(events.RequestStatus, events.NewMessage(events.RequestFailure, mine,
				`{"reason":{"source":"test","category":"TIMEOUT","description":"too slow"}}`)),
		}}
		err := AwaitResponse(context.Background(), src, mine, nil, nil)
		require.Error(t, err)
		assert.True(t, IsRequestFailure(err))

		var rf *RequestFailedError
		require.ErrorAs(t, err, &rf)
		assert.Equal(t, mine, rf.CorrelationID)
		assert.Equal(t, "TIMEOUT", rf.Reason.Category)
		assert.Contains(t, err.Error(), "too slow")
	})

	t.Run("terminal status ends the wait", func(t *testing.T) {
		src := &scripted{events: []events.Event{
			events.New(events.SessionStatus, events.NewMessage(events.SessionTerminated, events.CorrelationID{}, "")),
		}}
		err := AwaitResponse(context.Background(), src, mine, nil, nil)
		assert.ErrorIs(t, err, ErrTerminated)
		assert.False(t, IsRequestFailure(err))
	})

	t.Run("source error", func(t *testing.T) {
		err := AwaitResponse(context.Background(), &scripted{}, mine, nil, nil)
		assert.ErrorIs(t, err, errDrained)
	})
}
