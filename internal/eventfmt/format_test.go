package eventfmt

import (
	"bytes"
	"context"
	"testing"

	"github.com/casualjim/blip/events"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestConsole(t *testing.T) {
	color.NoColor = true
	ctx := context.Background()

	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	events.Route(ctx, c, events.New(events.SubscriptionData,
		events.NewMessage(events.MarketData, events.IntID(3), `{"LAST_PRICE":101.5}`).WithTopic("//blp/mktdata/ticker/IBM Equity")))
	events.Route(ctx, c, events.New(events.SessionStatus,
		events.NewMessage(events.SessionTerminated, events.CorrelationID{}, "")))

	out := buf.String()
	assert.Contains(t, out, "SUBSCRIPTION_DATA")
	assert.Contains(t, out, "MarketData cid=int:3 //blp/mktdata/ticker/IBM Equity {\"LAST_PRICE\":101.5}")
	assert.Contains(t, out, "SessionTerminated")
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestConsole_SecurityErrors(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	c := NewConsole(&buf, false)
	c.OnResponse(context.Background(), events.NewMessage(events.ReferenceDataResponse, events.IntID(1), `{
		"securityData": [
			{"security": "BAD", "securityError": {"source": "sim", "category": "BAD_SEC", "message": "unknown security"}},
			{"security": "IBM US Equity", "fieldData": {"PX_LAST": 1}, "fieldExceptions": [
				{"fieldId": "NOPE", "errorInfo": {"source": "sim", "category": "BAD_FLD", "message": "unknown field"}}
			]}
		]
	}`))

	out := buf.String()
	assert.Contains(t, out, "securityError BAD")
	assert.Contains(t, out, "fieldException IBM US Equity NOPE")
}

func TestConsole_Pretty(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	c := NewConsole(&buf, true)
	c.OnSubscriptionData(context.Background(), events.NewMessage(events.MarketData, events.IntID(3), `{"BID":1.25}`))
	assert.Contains(t, buf.String(), "BID")
	assert.NotContains(t, buf.String(), `{"BID":1.25}`)
}
