// Package registry is a concurrent string-keyed table used by sessions to
// track services, event queues, topics and in-flight operations.
package registry

import (
	"iter"

	"github.com/alphadose/haxmap"
)

type Registry[T any] interface {
	Get(key string) (T, bool)
	Add(key string, value T)
	GetOrAdd(key string, value func() T) (T, bool)
	Del(key string)
	Take(key string) (T, bool)
	Len() int
	All() iter.Seq2[string, T]
}

type registry[T any] struct {
	values *haxmap.Map[string, T]
}

func New[T any]() Registry[T] {
	return &registry[T]{
		values: haxmap.New[string, T](),
	}
}

func (r *registry[T]) Get(key string) (T, bool) {
	return r.values.Get(key)
}

func (r *registry[T]) Add(key string, value T) {
	r.values.Set(key, value)
}

func (r *registry[T]) GetOrAdd(key string, valueFn func() T) (T, bool) {
	return r.values.GetOrCompute(key, valueFn)
}

func (r *registry[T]) Del(key string) {
	r.values.Del(key)
}

// Take removes key and returns the value it held.
func (r *registry[T]) Take(key string) (T, bool) {
	return r.values.GetAndDel(key)
}

func (r *registry[T]) Len() int {
	return int(r.values.Len())
}

// All iterates the entries in no particular order.
func (r *registry[T]) All() iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		r.values.ForEach(func(k string, v T) bool {
			return yield(k, v)
		})
	}
}
