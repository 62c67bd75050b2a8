package future

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture(t *testing.T) {
	t.Run("complete", func(t *testing.T) {
		f := New[string]()
		go f.Complete("done")

		v, err := f.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "done", v)
	})

	t.Run("error", func(t *testing.T) {
		f := New[int]()
		boom := errors.New("boom")
		f.Error(boom)

		v, err := f.Get(context.Background())
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, v)
	})

	t.Run("first completion wins", func(t *testing.T) {
		f := New[int]()
		f.Complete(1)
		f.Complete(2)
		f.Error(errors.New("late"))

		v, err := f.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, v)
	})

	t.Run("context deadline", func(t *testing.T) {
		f := New[int]()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := f.Get(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		f.Complete(3)
		v, err := f.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, v)
	})

	t.Run("many waiters", func(t *testing.T) {
		f := New[string]()
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := f.Get(context.Background())
				assert.NoError(t, err)
				assert.Equal(t, "x", v)
			}()
		}
		f.Complete("x")
		wg.Wait()

		select {
		case <-f.Done():
		default:
			t.Fatal("done channel should be closed")
		}
	})
}
