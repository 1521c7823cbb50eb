// Package queue provides the unbounded FIFO used to feed the executor's worker.
//
// Put never blocks. Take blocks on a condition variable while the queue is empty,
// so an idle worker does not poll.
package queue

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Put and Take once the queue has been closed.
var ErrClosed = errors.New("queue closed")

type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	closed bool
}

func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends item to the tail of the queue.
func (q *Queue[T]) Put(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, item)
	q.cond.Signal()
	return nil
}

// Take removes and returns the head of the queue, waiting for one to arrive if
// necessary. Items still queued when the queue is closed are not returned; use
// Drain to collect them.
func (q *Queue[T]) Take() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		var zero T
		return zero, ErrClosed
	}
	return q.pop(), nil
}

// Drain removes every queued item without waiting.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, 0, q.len())
	for q.len() > 0 {
		out = append(out, q.pop())
	}
	return out
}

// Close wakes every waiter. Further Put and Take calls fail with ErrClosed.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Len is a racy snapshot of the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len()
}

func (q *Queue[T]) len() int {
	return len(q.items) - q.head
}

func (q *Queue[T]) pop() T {
	var zero T
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item
}
