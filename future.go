package polyscript

import (
	"context"
	"errors"
	"strconv"
	"sync"
)

var errNilFailure = errors.New("failed without an error")

// State is the lifecycle position of a Future.
type State int32

const (
	Pending State = iota
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

type continuation[T any] struct {
	fn func(context.Context, T, error)
}

// Future is the read side of an asynchronous result.
//
// Get and Await block the calling goroutine. Continuations registered with OnValue,
// OnFailure and OnAlways never run on the goroutine that resolves the future or
// registers them: they are enqueued on the executor and run on its worker, after
// the tasks already queued. Registering on an already resolved future enqueues the
// continuation right away.
//
// A future is observed once Get or Await is called on it, or once OnFailure or
// OnAlways is registered. When a future fails and is still unobserved after the
// tasks queued at that moment have run, the failure goes to the executor's
// unhandled failure handler, which logs it by default.
type Future[T any] struct {
	exec *Executor
	done chan struct{}

	mu       sync.Mutex
	state    State
	value    T
	err      error
	conts    []continuation[T]
	observed bool
}

func newFuture[T any](e *Executor) *Future[T] {
	return &Future[T]{exec: e, done: make(chan struct{})}
}

// Get waits for the future to resolve.
func (f *Future[T]) Get() (T, error) {
	f.observe()
	<-f.done
	return f.value, f.err
}

// Await waits for the future to resolve or ctx to be done, whichever is first.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	f.observe()
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) observe() {
	f.mu.Lock()
	f.observed = true
	f.mu.Unlock()
}

func (f *Future[T]) isObserved() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.observed
}

// Done is closed once the future resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

func (f *Future[T]) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// OnValue runs fn on the worker with the value once the future completed.
func (f *Future[T]) OnValue(fn func(context.Context, T)) *Future[T] {
	f.register(false, func(ctx context.Context, v T, err error) {
		if err == nil {
			fn(ctx, v)
		}
	})
	return f
}

// OnFailure runs fn on the worker with the error once the future failed.
func (f *Future[T]) OnFailure(fn func(context.Context, error)) *Future[T] {
	f.register(true, func(ctx context.Context, _ T, err error) {
		if err != nil {
			fn(ctx, err)
		}
	})
	return f
}

// OnAlways runs fn on the worker once the future resolved either way.
func (f *Future[T]) OnAlways(fn func(context.Context, T, error)) *Future[T] {
	f.register(true, fn)
	return f
}

func (f *Future[T]) register(observesFailure bool, fn func(context.Context, T, error)) {
	f.mu.Lock()
	if observesFailure {
		f.observed = true
	}
	if f.state == Pending {
		f.conts = append(f.conts, continuation[T]{fn: fn})
		f.mu.Unlock()
		return
	}
	value, err := f.value, f.err
	f.mu.Unlock()

	f.exec.dispatch(func(ctx context.Context) { fn(ctx, value, err) })
}

func (f *Future[T]) resolve(value T, err error) error {
	f.mu.Lock()
	if f.state != Pending {
		f.mu.Unlock()
		return ErrIllegalTransition
	}
	f.value, f.err = value, err
	if err != nil {
		f.state = Failed
	} else {
		f.state = Completed
	}
	conts := f.conts
	f.conts = nil
	f.mu.Unlock()

	// queued before done closes, so a waiter that returns finds them ahead of its next task
	for _, c := range conts {
		fn := c.fn
		f.exec.dispatch(func(ctx context.Context) { fn(ctx, value, err) })
	}
	if err != nil {
		f.exec.unhandledFailure(err, f.isObserved)
	}
	close(f.done)
	return nil
}

// Then returns a future for fn applied to the value of f. fn runs on the worker;
// a failure of f skips fn and fails the returned future with the same error.
func Then[T, U any](f *Future[T], fn func(context.Context, T) (U, error)) *Future[U] {
	next := NewPromise[U](f.exec)
	f.OnAlways(func(ctx context.Context, v T, err error) {
		defer func() {
			if r := recover(); r != nil {
				_ = next.Fail(panicError("", r))
			}
		}()
		if err != nil {
			_ = next.Fail(err)
			return
		}
		u, err := fn(ctx, v)
		if err != nil {
			_ = next.Fail(err)
			return
		}
		_ = next.Complete(u)
	})
	return next.Future()
}
