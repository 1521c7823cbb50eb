package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue(t *testing.T) {
	t.Run("preserves fifo order", func(t *testing.T) {
		q := New[int]()
		for i := range 200 {
			require.NoError(t, q.Put(i))
		}
		for i := range 200 {
			v, err := q.Take()
			require.NoError(t, err)
			assert.Equal(t, i, v)
		}
		assert.Equal(t, 0, q.Len())
	})

	t.Run("take blocks until put", func(t *testing.T) {
		q := New[string]()
		got := make(chan string, 1)
		go func() {
			v, err := q.Take()
			if err == nil {
				got <- v
			}
		}()

		select {
		case <-got:
			t.Fatal("take returned before anything was queued")
		case <-time.After(20 * time.Millisecond):
		}

		require.NoError(t, q.Put("hello"))
		select {
		case v := <-got:
			assert.Equal(t, "hello", v)
		case <-time.After(time.Second):
			t.Fatal("take did not wake up")
		}
	})

	t.Run("close wakes waiters and rejects puts", func(t *testing.T) {
		q := New[int]()
		var wg sync.WaitGroup
		errs := make(chan error, 2)
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := q.Take()
				errs <- err
			}()
		}
		time.Sleep(10 * time.Millisecond)
		q.Close()
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.ErrorIs(t, err, ErrClosed)
		}
		assert.ErrorIs(t, q.Put(1), ErrClosed)
	})

	t.Run("drain returns remaining items", func(t *testing.T) {
		q := New[int]()
		_ = q.Put(1)
		_ = q.Put(2)
		_, _ = q.Take()
		_ = q.Put(3)
		assert.Equal(t, []int{2, 3}, q.Drain())
		assert.Empty(t, q.Drain())
	})
}
