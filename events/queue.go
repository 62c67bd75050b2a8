package events

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned once a closed queue has been drained.
var ErrQueueClosed = errors.New("event queue closed")

const defaultQueueSize = 16

// Queue receives the events answering one operation instead of the
// session's main stream, for example the result of a token request.
type Queue struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func NewQueue() *Queue {
	return NewQueueSize(defaultQueueSize)
}

func NewQueueSize(size int) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Queue{
		ch:   make(chan Event, size),
		done: make(chan struct{}),
	}
}

// Push appends ev, blocking while the queue is full.
func (q *Queue) Push(ctx context.Context, ev Event) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.ch <- ev:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextEvent blocks until an event is available, the queue is closed and
// drained, or ctx is done.
func (q *Queue) NextEvent(ctx context.Context) (Event, error) {
	select {
	case ev := <-q.ch:
		return ev, nil
	default:
	}

	select {
	case ev := <-q.ch:
		return ev, nil
	case <-q.done:
		if ev, ok := q.TryNextEvent(); ok {
			return ev, nil
		}
		return Event{}, ErrQueueClosed
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (q *Queue) TryNextEvent() (Event, bool) {
	select {
	case ev := <-q.ch:
		return ev, true
	default:
		return Event{}, false
	}
}

// Close wakes every waiter. Events already queued can still be read.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}
