package polyscript

// Promise is the completion side of a Future. A promise resolves exactly once:
// the second Complete or Fail returns ErrIllegalTransition and changes nothing.
type Promise[T any] struct {
	future *Future[T]
}

// NewPromise creates an unresolved promise whose future dispatches its
// continuations through e.
func NewPromise[T any](e *Executor) *Promise[T] {
	return &Promise[T]{future: newFuture[T](e)}
}

func (p *Promise[T]) Complete(value T) error {
	return p.future.resolve(value, nil)
}

// Fail resolves the future with err. A nil err is replaced by a generic failure so
// a failed future always carries an error.
func (p *Promise[T]) Fail(err error) error {
	if err == nil {
		err = errNilFailure
	}
	var zero T
	return p.future.resolve(zero, err)
}

func (p *Promise[T]) Future() *Future[T] {
	return p.future
}
