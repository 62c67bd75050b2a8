package blip

import (
	"sync"

	"github.com/casualjim/blip/events"
)

// backlog is the FIFO between the reader and the consumer buffer. Appending
// never blocks, so the reader keeps routing answers while the consumer is
// busy elsewhere.
type backlog struct {
	mu    sync.Mutex
	items []events.Event
	wake  chan struct{} // signaled when items are appended
}

func newBacklog() *backlog {
	return &backlog{wake: make(chan struct{}, 1)}
}

func (b *backlog) push(ev events.Event) {
	b.mu.Lock()
	b.items = append(b.items, ev)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *backlog) pop() (events.Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return events.Event{}, false
	}
	ev := b.items[0]
	b.items[0] = events.Event{}
	b.items = b.items[1:]
	return ev, true
}

// unpop puts ev back at the head.
func (b *backlog) unpop(ev events.Event) {
	b.mu.Lock()
	b.items = append([]events.Event{ev}, b.items...)
	b.mu.Unlock()
}
