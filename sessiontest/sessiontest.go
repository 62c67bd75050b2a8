// Package sessiontest runs sessions against an in-process simulator for
// tests.
package sessiontest

import (
	"context"
	"testing"
	"time"

	"github.com/casualjim/blip"
	"github.com/casualjim/blip/events"
	"github.com/casualjim/blip/internal/simulator"
	"github.com/casualjim/blip/pkg/uuidx"
	"github.com/casualjim/blip/transport"
	"github.com/fogfish/opts"
	"github.com/stretchr/testify/require"
)

// DefaultTimeout bounds every wait of the helpers in this package.
const DefaultTimeout = 2 * time.Second

// Server is a simulator served on an in-process transport.
type Server struct {
	Broker    transport.Broker
	Simulator *simulator.Simulator
	endpoint  blip.Endpoint
	listener  transport.Listener
}

// NewServer starts a simulator on a fresh in-process transport. It is closed
// when the test ends.
func NewServer(t testing.TB, options ...opts.Option[simulator.Simulator]) *Server {
	t.Helper()
	return NewServerAt(t, transport.Local(), blip.Endpoint{Host: "sim-" + uuidx.NewString(), Port: blip.DefaultPort}, options...)
}

// NewServerAt starts a simulator at ep on broker, so several servers can
// share one transport.
func NewServerAt(t testing.TB, broker transport.Broker, ep blip.Endpoint, options ...opts.Option[simulator.Simulator]) *Server {
	t.Helper()
	sim, err := simulator.New(options...)
	require.NoError(t, err)

	lis, err := sim.Serve(context.Background(), broker, ep.String())
	require.NoError(t, err)

	srv := &Server{Broker: broker, Simulator: sim, endpoint: ep, listener: lis}
	t.Cleanup(srv.Close)
	return srv
}

func (s *Server) Endpoint() blip.Endpoint {
	return s.endpoint
}

// Close stops serving and drops every connected session.
func (s *Server) Close() {
	_ = s.listener.Close()
}

// Options configures a session to reach this server.
func (s *Server) Options(extra ...opts.Option[blip.Session]) []opts.Option[blip.Session] {
	return append([]opts.Option[blip.Session]{
		blip.WithTransport(s.Broker),
		blip.WithEndpoints(s.endpoint),
		blip.WithRetryInterval(time.Millisecond),
	}, extra...)
}

// Start creates and starts a session connected to the server and consumes
// its startup events. The session is stopped when the test ends.
func (s *Server) Start(t testing.TB, extra ...opts.Option[blip.Session]) *blip.Session {
	t.Helper()
	sess, err := blip.New(s.Options(extra...)...)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	require.NoError(t, sess.Start(ctx))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
		defer cancel()
		_ = sess.Stop(ctx)
	})
	return sess
}

// StartPulling is Start followed by consuming the SessionConnectionUp and
// SessionStarted events.
func (s *Server) StartPulling(t testing.TB, extra ...opts.Option[blip.Session]) *blip.Session {
	t.Helper()
	sess := s.Start(t, extra...)
	Expect(t, sess, events.SessionStatus, events.SessionConnectionUp)
	Expect(t, sess, events.SessionStatus, events.SessionStarted)
	return sess
}

// Next pulls the next event or fails the test.
func Next(t testing.TB, sess *blip.Session) events.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	ev, err := sess.NextEvent(ctx)
	require.NoError(t, err)
	return ev
}

// Expect pulls events until one of type typ carrying name arrives. Events of
// other kinds are skipped.
func Expect(t testing.TB, sess *blip.Session, typ events.EventType, name events.Name) events.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	for {
		ev, err := sess.NextEvent(ctx)
		require.NoError(t, err, "waiting for %s %s", typ, name)
		if ev.Type == typ && ev.Has(name) {
			return ev
		}
	}
}

// Drain pulls events until the session reports termination and returns
// everything it pulled, the terminal event included.
func Drain(t testing.TB, sess *blip.Session) []events.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	var out []events.Event
	for {
		ev, err := sess.NextEvent(ctx)
		if err != nil {
			require.ErrorIs(t, err, blip.ErrSessionTerminated)
			return out
		}
		out = append(out, ev)
	}
}

// Recorder is a Handler that keeps every event it is given.
type Recorder struct {
	ch chan events.Event
}

func NewRecorder() *Recorder {
	return &Recorder{ch: make(chan events.Event, 1024)}
}

func (r *Recorder) HandleEvent(_ context.Context, ev events.Event, _ *blip.Session) {
	r.ch <- ev
}

// Expect waits for an event of type typ carrying name.
func (r *Recorder) Expect(t testing.TB, typ events.EventType, name events.Name) events.Event {
	t.Helper()
	timeout := time.After(DefaultTimeout)
	for {
		select {
		case ev := <-r.ch:
			if ev.Type == typ && ev.Has(name) {
				return ev
			}
		case <-timeout:
			require.FailNow(t, "timed out waiting for event", "%s %s", typ, name)
			return events.Event{}
		}
	}
}
