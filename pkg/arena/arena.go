// Package arena stores values behind generation-checked handles.
//
// A Handle is a plain integer that can travel inside a correlation id and
// come back on an answering message. Looking up a handle whose slot has been
// released (or reused) fails instead of returning the wrong value.
package arena

import (
	"fmt"
	"iter"
	"sync"
)

// Handle refers to a slot in an Arena. The zero Handle is never valid.
type Handle uint64

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index))
}

func (h Handle) index() uint32      { return uint32(h) }
func (h Handle) generation() uint32 { return uint32(h >> 32) }

func (h Handle) IsZero() bool { return h == 0 }

func (h Handle) String() string {
	return fmt.Sprintf("%d@%d", h.index(), h.generation())
}

type slot[T any] struct {
	gen   uint32
	used  bool
	value T
}

// Arena is safe for concurrent use.
type Arena[T any] struct {
	mu    sync.RWMutex
	slots []slot[T]
	free  []uint32
	live  int
}

func New[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Insert stores v and returns its handle.
func (a *Arena[T]) Insert(v T) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot[T]{})
	}

	s := &a.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.used = true
	s.value = v
	a.live++
	return makeHandle(idx, s.gen)
}

func (a *Arena[T]) lookup(h Handle) (*slot[T], bool) {
	idx := h.index()
	if h.IsZero() || int(idx) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[idx]
	if !s.used || s.gen != h.generation() {
		return nil, false
	}
	return s, true
}

// Get returns the value for h, or false when h is stale.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s, ok := a.lookup(h)
	if !ok {
		var zero T
		return zero, false
	}
	return s.value, true
}

// Update applies fn to the value for h in place.
func (a *Arena[T]) Update(h Handle, fn func(*T)) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.lookup(h)
	if !ok {
		return false
	}
	fn(&s.value)
	return true
}

// Remove releases h. Later lookups with h fail even when the slot is reused.
func (a *Arena[T]) Remove(h Handle) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var zero T
	s, ok := a.lookup(h)
	if !ok {
		return zero, false
	}
	v := s.value
	s.value = zero
	s.used = false
	a.free = append(a.free, h.index())
	a.live--
	return v, true
}

// Len is the number of live values.
func (a *Arena[T]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.live
}

// All iterates a snapshot of the live values in slot order.
func (a *Arena[T]) All() iter.Seq2[Handle, T] {
	a.mu.RLock()
	type entry struct {
		h Handle
		v T
	}
	snapshot := make([]entry, 0, a.live)
	for i := range a.slots {
		if s := &a.slots[i]; s.used {
			snapshot = append(snapshot, entry{makeHandle(uint32(i), s.gen), s.value})
		}
	}
	a.mu.RUnlock()

	return func(yield func(Handle, T) bool) {
		for _, e := range snapshot {
			if !yield(e.h, e.v) {
				return
			}
		}
	}
}
