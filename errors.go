package polyscript

import (
	"errors"
	"fmt"

	"github.com/casualjim/polyscript/engine"
)

// Errors shared with the engine package, re-exported so callers only need one import.
var (
	ErrEvaluation    = engine.ErrEvaluation
	ErrInterrupted   = engine.ErrInterrupted
	ErrUnknownEngine = engine.ErrUnknownEngine
	ErrNotSupported  = engine.ErrNotSupported
	ErrEngineExists  = engine.ErrEngineExists
)

var (
	// ErrSupervisorRestart fails every task that was queued when the worker loop
	// faulted and had to be restarted.
	ErrSupervisorRestart = errors.New("executor restarted after a supervisor fault")

	// ErrIllegalTransition is returned when completing or failing a promise that
	// was already resolved.
	ErrIllegalTransition = errors.New("future already resolved")

	// ErrClosed is returned for work submitted to, or still queued in, a closed executor.
	ErrClosed = errors.New("executor closed")

	// ErrUndefined is returned by GetVariable for names the namespace does not hold.
	ErrUndefined = errors.New("undefined variable")
)

// EvaluationError is raised when a script runtime threw, or a task panicked.
type EvaluationError = engine.EvaluationError

// SupervisorFault describes a fault in the worker loop itself, outside of any task.
// It is logged and published, never attached to a future.
type SupervisorFault struct {
	Cause error
	Stack string
}

func (f *SupervisorFault) Error() string {
	return fmt.Sprintf("supervisor fault: %v", f.Cause)
}

func (f *SupervisorFault) Unwrap() error {
	return f.Cause
}

// panicError reports a recovered task panic the same way a script failure is reported.
func panicError(kind string, v any) *EvaluationError {
	return &EvaluationError{Engine: kind, Message: fmt.Sprintf("panic: %v", v), Err: recoveredError(v)}
}

func recoveredError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return fmt.Errorf("%v", v)
}
