package blip_test

import (
	"context"
	"testing"
	"time"

	"github.com/casualjim/blip"
	"github.com/casualjim/blip/auth"
	"github.com/casualjim/blip/events"
	"github.com/casualjim/blip/internal/simulator"
	"github.com/casualjim/blip/sessiontest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken_RoutesToQueue(t *testing.T) {
	srv := sessiontest.NewServer(t)
	sess := srv.StartPulling(t)
	ctx := context.Background()

	queue := events.NewQueue()
	require.NoError(t, sess.GenerateToken(ctx, events.CorrelationID{}, queue))

	qctx, cancel := context.WithTimeout(ctx, sessiontest.DefaultTimeout)
	defer cancel()
	ev, err := queue.NextEvent(qctx)
	require.NoError(t, err)
	require.Equal(t, events.TokenStatus, ev.Type)

	body, ok := ev.Messages[0].Body().(events.TokenBody)
	require.True(t, ok)
	assert.True(t, body.Success())
	assert.Equal(t, events.KindAuto, ev.Messages[0].CorrelationID.Kind())

	wctx, wcancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer wcancel()
	_, err = sess.NextEvent(wctx)
	assert.ErrorIs(t, err, blip.ErrTimeout, "token events routed to a queue never reach the session stream")
}

func TestGenerateManualToken_RequiresCredentials(t *testing.T) {
	srv := sessiontest.NewServer(t)
	sess := srv.StartPulling(t)
	err := sess.GenerateManualToken(context.Background(), events.IntID(1), "", "10.0.0.1", nil)
	assert.Error(t, err)
}

func TestGenerateToken_AfterStop(t *testing.T) {
	srv := sessiontest.NewServer(t)
	sess := srv.StartPulling(t)

	queue := events.NewQueue()
	ctx := context.Background()
	require.NoError(t, sess.Stop(ctx))
	assert.ErrorIs(t, sess.GenerateToken(ctx, events.IntID(1), queue), blip.ErrSessionTerminated)
}

func TestAuthorize_PullShape(t *testing.T) {
	tests := []struct {
		name    string
		sim     []simulator.Option
		manual  bool
		want    auth.Outcome
		wantErr error
	}{
		{name: "authorized", want: auth.OutcomeAuthorized},
		{name: "manual authorized", manual: true, want: auth.OutcomeAuthorized},
		{name: "token refused", sim: []simulator.Option{simulator.WithTokenFailure(true)}, want: auth.OutcomeFailed, wantErr: auth.ErrTokenFailure},
		{name: "authorization refused", sim: []simulator.Option{simulator.WithAuthorizationFailure(true)}, want: auth.OutcomeFailed, wantErr: auth.ErrAuthorizationFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := sessiontest.NewServer(t, tt.sim...)
			sess := srv.StartPulling(t)

			var passed []events.Event
			authOpts := []auth.Option{auth.WithPassThrough(func(_ context.Context, ev events.Event) {
				passed = append(passed, ev)
			})}
			if tt.manual {
				authOpts = append(authOpts, auth.WithManual("jdoe", "10.0.0.1"))
			}
			authorizer, err := auth.NewAuthorizer(sess, authOpts...)
			require.NoError(t, err)

			identity := sess.CreateIdentity()
			outcome, err := authorizer.Authorize(context.Background(), identity, events.IntID(42))
			assert.Equal(t, tt.want, outcome)
			assert.Equal(t, tt.want.Authorized(), identity.IsAuthorized())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			require.NotEmpty(t, passed, "service status events are passed through")
			assert.True(t, passed[0].Has(events.ServiceOpened))
		})
	}
}

func TestAuthorize_PullShapeWithFullEventBuffer(t *testing.T) {
	srv := sessiontest.NewServer(t)
	sess := srv.Start(t, blip.WithQueueSize(1))

	authorizer, err := auth.NewAuthorizer(sess, auth.WithTimeout(2*time.Second))
	require.NoError(t, err)

	identity := sess.CreateIdentity()
	outcome, err := authorizer.Authorize(context.Background(), identity, events.IntID(77))
	require.NoError(t, err)
	assert.Equal(t, auth.OutcomeAuthorized, outcome)
	assert.True(t, identity.IsAuthorized())
}

func TestAuthorize_PushShape(t *testing.T) {
	srv := sessiontest.NewServer(t)
	registry := auth.NewRegistry()
	handler := blip.HandlerFunc(func(_ context.Context, ev events.Event, _ *blip.Session) {
		registry.Observe(ev)
	})
	sess := srv.Start(t, blip.WithHandler(handler))

	authorizer, err := auth.NewAuthorizer(sess, auth.WithRegistry(registry))
	require.NoError(t, err)

	identity := sess.CreateIdentity()
	outcome, err := authorizer.Authorize(context.Background(), identity, events.IntID(9))
	require.NoError(t, err)
	assert.Equal(t, auth.OutcomeAuthorized, outcome)

	status, ok := registry.Status(events.IntID(9))
	require.True(t, ok)
	assert.Equal(t, auth.Authorized, status)
}

func TestAuthorize_TimesOut(t *testing.T) {
	srv := sessiontest.NewServer(t)
	sess := srv.StartPulling(t)

	// nothing ever observes the registry, so the answer never settles it
	authorizer, err := auth.NewAuthorizer(sess, auth.WithRegistry(auth.NewRegistry()), auth.WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	outcome, err := authorizer.Authorize(context.Background(), sess.CreateIdentity(), events.IntID(3))
	assert.Equal(t, auth.OutcomeTimedOut, outcome)
	assert.False(t, outcome.Authorized())
	assert.Error(t, err)
}

func TestAuthorize_ForeignIdentity(t *testing.T) {
	srv := sessiontest.NewServer(t)
	a := srv.StartPulling(t)
	b := srv.StartPulling(t)

	authorizer, err := auth.NewAuthorizer(a)
	require.NoError(t, err)
	outcome, err := authorizer.Authorize(context.Background(), b.CreateIdentity(), events.IntID(1))
	assert.Equal(t, auth.OutcomeFailed, outcome)
	assert.ErrorIs(t, err, blip.ErrForeignIdentity)

	subs := blip.NewSubscriptionList().Add("IBM US Equity", nil, nil, events.CorrelationID{})
	assert.ErrorIs(t, a.Subscribe(context.Background(), subs, b.CreateIdentity()), blip.ErrForeignIdentity)
}
