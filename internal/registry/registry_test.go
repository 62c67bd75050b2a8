package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("add get del", func(t *testing.T) {
		r := New[int]()
		r.Add("a", 1)

		v, ok := r.Get("a")
		require.True(t, ok)
		assert.Equal(t, 1, v)

		r.Del("a")
		_, ok = r.Get("a")
		assert.False(t, ok)
	})

	t.Run("get or add computes once", func(t *testing.T) {
		r := New[string]()
		calls := 0
		mk := func() string { calls++; return "v" }

		v, loaded := r.GetOrAdd("k", mk)
		assert.Equal(t, "v", v)
		assert.False(t, loaded)

		v, loaded = r.GetOrAdd("k", mk)
		assert.Equal(t, "v", v)
		assert.True(t, loaded)
		assert.Equal(t, 1, calls)
	})

	t.Run("take", func(t *testing.T) {
		r := New[int]()
		r.Add("x", 5)
		v, ok := r.Take("x")
		require.True(t, ok)
		assert.Equal(t, 5, v)
		_, ok = r.Take("x")
		assert.False(t, ok)
	})

	t.Run("concurrent take hands the value out once", func(t *testing.T) {
		for range 100 {
			r := New[int]()
			r.Add("x", 7)

			var (
				wg    sync.WaitGroup
				mu    sync.Mutex
				taken int
			)
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, ok := r.Take("x"); ok {
						mu.Lock()
						taken++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			require.Equal(t, 1, taken)
			assert.Zero(t, r.Len())
		}
	})

	t.Run("len and all", func(t *testing.T) {
		r := New[int]()
		var wg sync.WaitGroup
		for i, k := range []string{"a", "b", "c"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.Add(k, i)
			}()
		}
		wg.Wait()

		assert.Equal(t, 3, r.Len())
		seen := map[string]int{}
		for k, v := range r.All() {
			seen[k] = v
		}
		assert.Equal(t, map[string]int{"a": 0, "b": 1, "c": 2}, seen)
	})
}
