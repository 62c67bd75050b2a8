// Package future provides a one-shot completion slot shared between the
// goroutine that reads server answers and the caller waiting for them.
package future

import (
	"context"
	"sync"

	"github.com/casualjim/blip/pkg/stdx"
)

type CompletableFuture[T any] interface {
	Future[T]
	Promise[T]
}

type Promise[T any] interface {
	Complete(T)
	Error(error)
}

type Future[T any] interface {
	Get(context.Context) (T, error)
	Done() <-chan struct{}
}

type future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func New[T any]() CompletableFuture[T] {
	return &future[T]{done: make(chan struct{})}
}

// Get blocks until the future is completed or ctx is done.
func (f *future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}

	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return stdx.Zero[T](), ctx.Err()
	}
}

func (f *future[T]) Done() <-chan struct{} {
	return f.done
}

func (f *future[T]) Complete(value T) {
	f.once.Do(func() {
		f.value = value
		close(f.done)
	})
}

func (f *future[T]) Error(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}
