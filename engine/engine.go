package engine

import (
	"context"
	"io"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Output is the console of one evaluation. Backends bind their print facilities to
// it for the duration of the call. Nil writers discard.
type Output struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Out returns the standard output writer, never nil.
func (o Output) Out() io.Writer {
	if o.Stdout == nil {
		return io.Discard
	}
	return o.Stdout
}

// Err returns the error output writer, never nil.
func (o Output) Err() io.Writer {
	if o.Stderr == nil {
		return io.Discard
	}
	return o.Stderr
}

// HostFunc is a Go function exposed to scripts. Arguments arrive as Values and the
// result is converted back into the runtime; a returned error is thrown as a
// script exception.
type HostFunc func(args []Value) (any, error)

// Factory creates a fresh engine instance.
type Factory func() (Engine, error)

// Engine is the normalized contract over one scripting runtime.
//
// Implementations are not safe for concurrent use: callers serialize every call,
// the only exception being cancellation of the context passed to an evaluation.
type Engine interface {
	// Kind is the registered name of the backend, e.g. "javascript".
	Kind() string

	// ID uniquely identifies this instance; native Values carry it as their origin.
	ID() string

	// Eval runs source and returns the value of its last expression. Cancelling ctx
	// asks the runtime to stop; whether a running native call yields depends on
	// the runtime.
	Eval(ctx context.Context, source string, out Output) (Value, error)

	// IsIterable reports whether IterateObject can walk v.
	IsIterable(v Value) bool

	// IterateObject calls each for every element of an iterable value until it returns false.
	IterateObject(v Value, each func(Value) bool) error

	Get(name string) (Value, bool)

	// Set binds name in the global scope. value may be a Value produced by any engine
	// or a plain Go value.
	Set(name string, value any) error

	// Delete removes a global binding. Deleting an unbound name is not an error.
	Delete(name string) error

	// Globals lists the names the scripts defined, excluding the runtime's own
	// builtins and functions installed with DefineFunction.
	Globals() []string

	// AsPropertyMap returns the properties of an object in the runtime's order, or
	// ErrNotSupported when v has no properties.
	AsPropertyMap(v Value) (*orderedmap.OrderedMap[string, Value], error)

	// IsScriptObject reports whether v is an object owned by this runtime.
	IsScriptObject(v Value) bool

	DefineFunction(name string, fn HostFunc) error

	// EvalMethodCall calls the global function name with args.
	EvalMethodCall(ctx context.Context, name string, out Output, args ...any) (Value, error)

	// EvalWithCallbackFunctions runs source with a recording shim installed for every
	// name and returns the calls the script made to them, in invocation order.
	EvalWithCallbackFunctions(ctx context.Context, source string, names []string, out Output) ([]CapturedCall, error)

	Close() error
}
