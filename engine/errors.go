package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrEvaluation matches every EvaluationError.
	ErrEvaluation = errors.New("evaluation failed")

	// ErrInterrupted is wrapped by an EvaluationError when a running script observed
	// an interruption request.
	ErrInterrupted = errors.New("evaluation interrupted")

	// ErrNotSupported is returned when a value cannot be viewed the requested way,
	// for example asking for the properties of a number.
	ErrNotSupported = errors.New("not supported")

	// ErrUnknownEngine is returned when a kind was never registered.
	ErrUnknownEngine = errors.New("unknown engine")

	// ErrEngineExists is returned when registering a kind twice.
	ErrEngineExists = errors.New("engine already registered")

	// ErrInvalidName is returned for names that cannot be used as a script identifier.
	ErrInvalidName = errors.New("invalid identifier")
)

// EvaluationError is raised when the script runtime threw while evaluating.
type EvaluationError struct {
	// Engine is the kind of the engine that failed.
	Engine string

	// Message is the runtime's description of the failure.
	Message string

	// Line and Column are 1-based; zero means unknown.
	Line   int
	Column int

	// Err is the underlying error, if any.
	Err error
}

func (e *EvaluationError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Line > 0 {
		msg = fmt.Sprintf("%s (line %d, col %d)", msg, e.Line, e.Column)
	}
	if e.Engine != "" {
		return e.Engine + ": " + msg
	}
	return msg
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// Is makes every EvaluationError match ErrEvaluation.
func (e *EvaluationError) Is(target error) bool {
	return target == ErrEvaluation
}

// Interrupted builds the error backends return when they stopped because their
// context was cancelled.
func Interrupted(kind string, cause error) *EvaluationError {
	return &EvaluationError{
		Engine:  kind,
		Message: ErrInterrupted.Error(),
		Err:     errors.Join(ErrInterrupted, cause),
	}
}
