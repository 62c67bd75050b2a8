package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/blip/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func answer(typ events.EventType, name events.Name, cid events.CorrelationID) events.Event {
	return events.New(typ, events.NewMessage(name, cid, ""))
}

func TestRegistry(t *testing.T) {
	t.Run("starts waiting", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(events.IntID(1)))
		st, ok := r.Status(events.IntID(1))
		require.True(t, ok)
		assert.Equal(t, Waiting, st)

		_, ok = r.Status(events.IntID(2))
		assert.False(t, ok)
	})

	t.Run("duplicate register", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(events.IntID(1)))
		assert.ErrorIs(t, r.Register(events.IntID(1)), ErrAlreadyRegistered)
	})

	t.Run("transitions exactly once", func(t *testing.T) {
		r := NewRegistry()
		cid := events.IntID(1)
		require.NoError(t, r.Register(cid))

		assert.False(t, r.Set(cid, Waiting))
		assert.True(t, r.Set(cid, Authorized))
		assert.False(t, r.Set(cid, Failed))

		r.Observe(answer(events.RequestStatus, events.RequestFailure, cid))
		st, _ := r.Status(cid)
		assert.Equal(t, Authorized, st)
	})

	t.Run("observe", func(t *testing.T) {
		tests := []struct {
			name string
			ev   events.Event
			want Status
		}{
			{"success response", answer(events.Response, events.AuthorizationSuccess, events.IntID(1)), Authorized},
			{"failure response", answer(events.Response, events.AuthorizationFailure, events.IntID(1)), Failed},
			{"request failure", answer(events.RequestStatus, events.RequestFailure, events.IntID(1)), Failed},
			{"partial response", answer(events.PartialResponse, events.AuthorizationSuccess, events.IntID(1)), Authorized},
			{"other cid", answer(events.Response, events.AuthorizationSuccess, events.IntID(2)), Waiting},
			{"non answering event", answer(events.SubscriptionData, events.AuthorizationSuccess, events.IntID(1)), Waiting},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				r := NewRegistry()
				require.NoError(t, r.Register(events.IntID(1)))
				r.Observe(tt.ev)
				st, _ := r.Status(events.IntID(1))
				assert.Equal(t, tt.want, st)
			})
		}
	})

	t.Run("terminated fails all waiters", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(events.IntID(1)))
		require.NoError(t, r.Register(events.IntID(2)))
		r.Set(events.IntID(2), Authorized)

		var wg sync.WaitGroup
		wg.Add(1)
		var got Status
		go func() {
			defer wg.Done()
			got, _ = r.Wait(context.Background(), events.IntID(1))
		}()

		r.Observe(answer(events.SessionStatus, events.SessionTerminated, events.CorrelationID{}))
		wg.Wait()

		assert.Equal(t, Failed, got)
		st, _ := r.Status(events.IntID(2))
		assert.Equal(t, Authorized, st, "settled entries keep their status")

		require.NoError(t, r.Register(events.IntID(3)))
		st, _ = r.Status(events.IntID(3))
		assert.Equal(t, Failed, st, "registrations after termination fail")
	})

	t.Run("wait deadline", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(events.IntID(1)))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		st, err := r.Wait(ctx, events.IntID(1))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, Waiting, st)
	})

	t.Run("wait unknown", func(t *testing.T) {
		_, err := NewRegistry().Wait(context.Background(), events.IntID(9))
		assert.Error(t, err)
	})

	t.Run("forget", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(events.IntID(1)))
		r.Forget(events.IntID(1))
		assert.Equal(t, 0, r.Len())
		assert.NoError(t, r.Register(events.IntID(1)))
	})
}

func TestRegistry_ConcurrentWritersAndReaders(t *testing.T) {
	const ids = 32
	r := NewRegistry()
	for i := range ids {
		require.NoError(t, r.Register(events.IntID(uint64(i))))
	}

	var (
		writers sync.WaitGroup
		readers sync.WaitGroup
		mu      sync.Mutex
		bad     []string
	)
	report := func(format string, args ...any) {
		mu.Lock()
		bad = append(bad, fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	waited := make([]Status, ids)
	for i := range ids {
		cid := events.IntID(uint64(i))

		readers.Add(2)
		go func() {
			defer readers.Done()
			last := Waiting
			for range 200 {
				st, ok := r.Status(cid)
				if !ok {
					report("%s disappeared", cid)
					return
				}
				if st != Waiting && st != Authorized && st != Failed {
					report("%s torn status %d", cid, st)
				}
				if last != Waiting && st != last {
					report("%s moved from %s to %s", cid, last, st)
				}
				last = st
			}
		}()
		go func() {
			defer readers.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			st, err := r.Wait(ctx, cid)
			if err != nil {
				report("%s wait: %v", cid, err)
				return
			}
			waited[i] = st
		}()

		writers.Add(2)
		go func() {
			defer writers.Done()
			name := events.AuthorizationSuccess
			if i%2 == 1 {
				name = events.AuthorizationFailure
			}
			r.Observe(answer(events.Response, name, cid))
		}()
		go func() {
			defer writers.Done()
			r.Set(cid, Failed)
		}()
	}
	writers.Wait()
	readers.Wait()

	require.Empty(t, bad)
	for i := range ids {
		st, ok := r.Status(events.IntID(uint64(i)))
		require.True(t, ok)
		assert.NotEqual(t, Waiting, st)
		assert.Equal(t, st, waited[i], "waiter saw the settled status")
	}
}
