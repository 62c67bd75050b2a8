package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/casualjim/blip/events"
)

// ErrAlreadyRegistered is returned when a correlation id is registered twice.
var ErrAlreadyRegistered = errors.New("correlation id already registered")

// Status is the authorization state of one correlation id.
type Status uint8

const (
	Waiting Status = iota
	Authorized
	Failed
)

func (s Status) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Authorized:
		return "authorized"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

type entry struct {
	status  Status
	settled chan struct{}
}

// Registry tracks authorization requests in flight for one session.
// Every entry starts Waiting and moves to Authorized or Failed exactly once.
type Registry struct {
	mu         sync.Mutex
	entries    map[events.CorrelationID]*entry
	terminated bool
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[events.CorrelationID]*entry)}
}

// Register records cid as Waiting. After the session terminated the entry
// is created Failed.
func (r *Registry) Register(cid events.CorrelationID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[cid]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, cid)
	}
	e := &entry{status: Waiting, settled: make(chan struct{})}
	if r.terminated {
		e.status = Failed
		close(e.settled)
	}
	r.entries[cid] = e
	return nil
}

func (r *Registry) Status(cid events.CorrelationID) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[cid]
	if !ok {
		return Waiting, false
	}
	return e.status, true
}

// Set moves cid out of Waiting. It reports false when cid is unknown or
// already settled.
func (r *Registry) Set(cid events.CorrelationID, status Status) bool {
	if status == Waiting {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settle(cid, status)
}

func (r *Registry) settle(cid events.CorrelationID, status Status) bool {
	e, ok := r.entries[cid]
	if !ok || e.status != Waiting {
		return false
	}
	e.status = status
	close(e.settled)
	return true
}

// Observe applies an event from the session's stream. Answering messages
// settle their correlation id; SessionTerminated fails every waiter.
func (r *Registry) Observe(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case events.SessionStatus:
		if ev.Has(events.SessionTerminated) {
			r.terminated = true
			for cid := range r.entries {
				r.settle(cid, Failed)
			}
		}
	case events.Response, events.PartialResponse, events.RequestStatus:
		for _, msg := range ev.Messages {
			if msg.Type == events.AuthorizationSuccess {
				r.settle(msg.CorrelationID, Authorized)
			} else {
				r.settle(msg.CorrelationID, Failed)
			}
		}
	}
}

// Wait blocks until cid is settled or ctx is done. On ctx expiry the status
// is still Waiting and the context error is returned.
func (r *Registry) Wait(ctx context.Context, cid events.CorrelationID) (Status, error) {
	r.mu.Lock()
	e, ok := r.entries[cid]
	r.mu.Unlock()
	if !ok {
		return Waiting, fmt.Errorf("correlation id %s is not registered", cid)
	}

	select {
	case <-e.settled:
		r.mu.Lock()
		defer r.mu.Unlock()
		return e.status, nil
	case <-ctx.Done():
		return Waiting, ctx.Err()
	}
}

// Forget drops cid. A later Register may reuse it.
func (r *Registry) Forget(cid events.CorrelationID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, cid)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
