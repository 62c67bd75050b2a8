package blip_test

import (
	"context"
	"testing"

	"github.com/casualjim/blip"
	"github.com/casualjim/blip/dispatch"
	"github.com/casualjim/blip/events"
	"github.com/casualjim/blip/sessiontest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_Builder(t *testing.T) {
	srv := sessiontest.NewServer(t)
	sess := srv.StartPulling(t)
	require.NoError(t, sess.OpenService(context.Background(), events.ServiceRefData))
	svc, err := sess.Service(events.ServiceRefData)
	require.NoError(t, err)

	req, err := svc.CreateRequest(events.ReferenceDataRequest)
	require.NoError(t, err)
	req.Append(events.ElementSecurities, "IBM US Equity", "MSFT US Equity").
		Append(events.ElementFields, "PX_LAST").
		Append("overrides", map[string]string{"fieldId": "END_DATE_OVERRIDE"})

	require.NoError(t, req.Err())
	assert.Equal(t, events.ServiceRefData, req.Service())
	assert.Equal(t, events.ReferenceDataRequest, req.Operation())
	assert.Equal(t, int64(2), req.Get("securities.#").Int())
	assert.Equal(t, "PX_LAST", req.Get("fields.0").String())
	assert.JSONEq(t, `{"securities":["IBM US Equity","MSFT US Equity"],"fields":["PX_LAST"],"overrides":[{"fieldId":"END_DATE_OVERRIDE"}]}`, req.String())

	_, err = svc.CreateRequest("")
	assert.Error(t, err)
}

func TestSendRequest_ReferenceData(t *testing.T) {
	srv := sessiontest.NewServer(t)
	sess := srv.StartPulling(t)
	ctx := context.Background()
	require.NoError(t, sess.OpenService(ctx, events.ServiceRefData))
	sessiontest.Expect(t, sess, events.ServiceStatus, events.ServiceOpened)
	svc, err := sess.Service(events.ServiceRefData)
	require.NoError(t, err)

	req, err := svc.CreateRequest(events.ReferenceDataRequest)
	require.NoError(t, err)
	req.Append(events.ElementSecurities, "IBM US Equity", "BOGUS").Append(events.ElementFields, "PX_LAST", "NOT_A_FIELD")

	cid, err := sess.SendRequest(ctx, req, nil, events.IntID(5))
	require.NoError(t, err)
	assert.Equal(t, events.IntID(5), cid)

	partial := sessiontest.Next(t, sess)
	require.Equal(t, events.PartialResponse, partial.Type)
	require.True(t, partial.Correlates(cid))
	results := events.SecurityResults(partial.Messages[0])
	require.Len(t, results, 1)
	assert.Equal(t, "IBM US Equity", results[0].Security)
	assert.Nil(t, results[0].Error)
	assert.True(t, results[0].FieldData.Get("PX_LAST").Exists())
	require.Len(t, results[0].FieldExceptions, 1)
	assert.Equal(t, "NOT_A_FIELD", results[0].FieldExceptions[0].FieldID)
	assert.Equal(t, "BAD_FLD", results[0].FieldExceptions[0].Info.Category)

	final := sessiontest.Next(t, sess)
	require.Equal(t, events.Response, final.Type)
	results = events.SecurityResults(final.Messages[0])
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Error)
	assert.Equal(t, "BAD_SEC", results[0].Error.Category)
}

func TestSendRequest_Failures(t *testing.T) {
	srv := sessiontest.NewServer(t)
	sess := srv.StartPulling(t)
	ctx := context.Background()

	require.NoError(t, sess.OpenService(ctx, events.ServiceMktData))
	sessiontest.Expect(t, sess, events.ServiceStatus, events.ServiceOpened)
	svc, err := sess.Service(events.ServiceMktData)
	require.NoError(t, err)

	req, err := svc.CreateRequest(events.ReferenceDataRequest)
	require.NoError(t, err)
	cid, err := sess.SendRequest(ctx, req, nil, events.CorrelationID{})
	require.NoError(t, err)
	assert.Equal(t, events.KindAuto, cid.Kind())

	status := sessiontest.Next(t, sess)
	require.Equal(t, events.RequestStatus, status.Type)
	body, ok := status.Messages[0].Body().(events.RequestFailureBody)
	require.True(t, ok)
	assert.Equal(t, "BAD_ARGS", body.Reason.Category)

	other, err := blip.New()
	require.NoError(t, err)
	_, err = other.SendRequest(ctx, req, nil, events.IntID(1))
	assert.ErrorIs(t, err, blip.ErrUnknownService)
}

func TestSendRequest_HistoricalData(t *testing.T) {
	srv := sessiontest.NewServer(t)
	sess := srv.StartPulling(t)
	ctx := context.Background()
	require.NoError(t, sess.OpenService(ctx, events.ServiceRefData))
	svc, err := sess.Service(events.ServiceRefData)
	require.NoError(t, err)

	req, err := svc.CreateRequest(events.HistoricalDataRequest)
	require.NoError(t, err)
	req.Append(events.ElementSecurities, "IBM US Equity", "MSFT US Equity", "BOGUS").
		Append(events.ElementFields, "PX_LAST", "OPEN", "NOT_A_FIELD").
		Set(events.ElementPeriodicitySelection, "MONTHLY").
		Set(events.ElementStartDate, "20060101").
		Set(events.ElementEndDate, "20061231").
		Set(events.ElementMaxDataPoints, 6)
	require.NoError(t, req.Err())

	cid, err := sess.SendRequest(ctx, req, nil, events.IntID(11))
	require.NoError(t, err)

	var (
		msgs   []events.Message
		others []events.Event
	)
	actx, cancel := context.WithTimeout(ctx, sessiontest.DefaultTimeout)
	defer cancel()
	err = dispatch.AwaitResponse(actx, sess, cid,
		func(msg events.Message) { msgs = append(msgs, msg) },
		func(ev events.Event) { others = append(others, ev) },
	)
	require.NoError(t, err)
	require.Len(t, msgs, 3, "one message per security")
	require.NotEmpty(t, others)
	assert.True(t, others[0].Has(events.ServiceOpened))

	for i, sec := range []string{"IBM US Equity", "MSFT US Equity"} {
		assert.Equal(t, events.HistoricalDataResponse, msgs[i].Type)
		results := events.SecurityResults(msgs[i])
		require.Len(t, results, 1)
		assert.Equal(t, sec, results[0].Security)
		assert.Nil(t, results[0].Error)

		points := results[0].FieldData.Array()
		require.Len(t, points, 6)
		assert.Equal(t, "2006-07-01", points[0].Get(events.ElementDate).String())
		assert.Equal(t, "2006-12-01", points[5].Get(events.ElementDate).String())
		for _, p := range points {
			assert.Positive(t, p.Get("PX_LAST").Float())
			assert.Positive(t, p.Get("OPEN").Float())
			assert.False(t, p.Get("NOT_A_FIELD").Exists())
		}
		require.Len(t, results[0].FieldExceptions, 1)
		assert.Equal(t, "NOT_A_FIELD", results[0].FieldExceptions[0].FieldID)
	}

	bogus := events.SecurityResults(msgs[2])
	require.Len(t, bogus, 1)
	require.NotNil(t, bogus[0].Error)
	assert.Equal(t, "BAD_SEC", bogus[0].Error.Category)
}

func TestSendRequest_HistoricalDataBadArguments(t *testing.T) {
	srv := sessiontest.NewServer(t)
	sess := srv.StartPulling(t)
	ctx := context.Background()
	require.NoError(t, sess.OpenService(ctx, events.ServiceRefData))
	sessiontest.Expect(t, sess, events.ServiceStatus, events.ServiceOpened)
	svc, err := sess.Service(events.ServiceRefData)
	require.NoError(t, err)

	tests := []struct {
		name  string
		build func(*blip.Request)
		want  string
	}{
		{name: "no start date", build: func(r *blip.Request) {}, want: "startDate is required"},
		{name: "bad start date", build: func(r *blip.Request) { r.Set(events.ElementStartDate, "2006-01-01") }, want: "invalid startDate"},
		{name: "end before start", build: func(r *blip.Request) {
			r.Set(events.ElementStartDate, "20060201").Set(events.ElementEndDate, "20060101")
		}, want: "endDate is before startDate"},
		{name: "unknown periodicity", build: func(r *blip.Request) {
			r.Set(events.ElementStartDate, "20060101").Set(events.ElementPeriodicitySelection, "HOURLY")
		}, want: "unsupported periodicitySelection"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := svc.CreateRequest(events.HistoricalDataRequest)
			require.NoError(t, err)
			req.Append(events.ElementSecurities, "IBM US Equity").Append(events.ElementFields, "PX_LAST")
			tt.build(req)

			cid, err := sess.SendRequest(ctx, req, nil, events.IntID(uint64(100+i)))
			require.NoError(t, err)

			ev := sessiontest.Next(t, sess)
			require.Equal(t, events.Response, ev.Type)
			require.True(t, ev.Correlates(cid))
			info, ok := events.ResponseError(ev.Messages[0])
			require.True(t, ok)
			assert.Equal(t, "BAD_ARGS", info.Category)
			assert.Contains(t, info.Error(), tt.want)
		})
	}
}
