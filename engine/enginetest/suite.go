// Package enginetest holds the behavior every engine.Engine implementation shares.
// Backends run it from their own tests with the snippets of their language.
package enginetest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/casualjim/polyscript/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Dialect is the handful of language snippets the suite needs.
type Dialect struct {
	// Assign returns a statement binding a global.
	Assign func(name, expr string) string
	// Remove returns a statement that unbinds a global assigned with Assign.
	Remove func(name string) string
	// Object is an expression for an object with a=1 and b=2, in that order.
	Object string
	// List is an expression for the sequence 1, 2, 3.
	List string
	// Function defines a global function add(a, b) returning a + b.
	Function string
	// Print writes "hello" and a newline to standard output.
	Print string
	// Warn writes "oops" and a newline to error output.
	Warn string
	// Capture calls rect with a=1,b=2 and then line with a=3.
	Capture string
	// SyntaxError does not parse.
	SyntaxError string
	// Throw raises a runtime error.
	Throw string
	// Loop never terminates.
	Loop string
}

// Run exercises the engine contract against engines created by factory.
func Run(t *testing.T, factory engine.Factory, d Dialect) {
	t.Helper()

	newEngine := func(t *testing.T) engine.Engine {
		t.Helper()
		e, err := factory()
		require.NoError(t, err)
		t.Cleanup(func() { _ = e.Close() })
		return e
	}
	ctx := context.Background()

	t.Run("evaluates expressions", func(t *testing.T) {
		e := newEngine(t)
		v, err := e.Eval(ctx, "1+1", engine.Output{})
		require.NoError(t, err)
		assert.Equal(t, engine.Primitive, v.Kind())
		assert.Equal(t, int64(2), v.Interface())

		v, err = e.Eval(ctx, "7/2", engine.Output{})
		require.NoError(t, err)
		assert.InDelta(t, 3.5, v.Interface(), 0.0001)
	})

	t.Run("set and get round trip", func(t *testing.T) {
		e := newEngine(t)
		require.NoError(t, e.Set("answer", 42))
		require.NoError(t, e.Set("greeting", "hi"))
		require.NoError(t, e.Set("flag", true))

		v, ok := e.Get("answer")
		require.True(t, ok)
		assert.Equal(t, int64(42), v.Interface())

		v, ok = e.Get("greeting")
		require.True(t, ok)
		assert.Equal(t, "hi", v.Interface())

		v, ok = e.Get("flag")
		require.True(t, ok)
		assert.Equal(t, true, v.Interface())

		_, ok = e.Get("missing")
		assert.False(t, ok)
	})

	t.Run("globals lists script definitions only", func(t *testing.T) {
		e := newEngine(t)
		assert.Empty(t, e.Globals())

		_, err := e.Eval(ctx, d.Assign("counter", "3"), engine.Output{})
		require.NoError(t, err)
		require.NoError(t, e.DefineFunction("hostOnly", func([]engine.Value) (any, error) { return nil, nil }))

		assert.Equal(t, []string{"counter"}, e.Globals())
	})

	t.Run("removed globals stay removed", func(t *testing.T) {
		e := newEngine(t)
		_, err := e.Eval(ctx, d.Assign("doomed", "1"), engine.Output{})
		require.NoError(t, err)
		_, err = e.Eval(ctx, d.Assign("kept", "2"), engine.Output{})
		require.NoError(t, err)
		require.Equal(t, []string{"doomed", "kept"}, e.Globals())

		_, err = e.Eval(ctx, d.Remove("doomed"), engine.Output{})
		require.NoError(t, err)
		assert.Equal(t, []string{"kept"}, e.Globals())
		_, ok := e.Get("doomed")
		assert.False(t, ok)

		require.NoError(t, e.Delete("kept"))
		require.NoError(t, e.Delete("never-bound"))
		assert.Empty(t, e.Globals())
		_, ok = e.Get("kept")
		assert.False(t, ok)

		require.NoError(t, e.Set("kept", 3))
		v, ok := e.Get("kept")
		require.True(t, ok, "a deleted name can be bound again")
		assert.Equal(t, int64(3), v.Interface())
	})

	t.Run("print goes to output", func(t *testing.T) {
		e := newEngine(t)
		var stdout, stderr bytes.Buffer
		_, err := e.Eval(ctx, d.Print, engine.Output{Stdout: &stdout, Stderr: &stderr})
		require.NoError(t, err)
		_, err = e.Eval(ctx, d.Warn, engine.Output{Stdout: &stdout, Stderr: &stderr})
		require.NoError(t, err)

		assert.Equal(t, "hello\n", stdout.String())
		assert.Equal(t, "oops\n", stderr.String())
	})

	t.Run("print without output is discarded", func(t *testing.T) {
		e := newEngine(t)
		_, err := e.Eval(ctx, d.Print, engine.Output{})
		require.NoError(t, err)
	})

	t.Run("syntax error does not poison the engine", func(t *testing.T) {
		e := newEngine(t)
		_, err := e.Eval(ctx, d.SyntaxError, engine.Output{})
		require.Error(t, err)
		assert.ErrorIs(t, err, engine.ErrEvaluation)

		var evalErr *engine.EvaluationError
		require.ErrorAs(t, err, &evalErr)
		assert.Equal(t, e.Kind(), evalErr.Engine)
		assert.NotEmpty(t, evalErr.Message)

		v, err := e.Eval(ctx, "1+1", engine.Output{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), v.Interface())
	})

	t.Run("runtime error", func(t *testing.T) {
		e := newEngine(t)
		_, err := e.Eval(ctx, d.Throw, engine.Output{})
		require.Error(t, err)
		assert.ErrorIs(t, err, engine.ErrEvaluation)
		assert.NotErrorIs(t, err, engine.ErrInterrupted)
	})

	t.Run("property map keeps script order", func(t *testing.T) {
		e := newEngine(t)
		obj, err := e.Eval(ctx, d.Object, engine.Output{})
		require.NoError(t, err)
		assert.Equal(t, engine.Native, obj.Kind())
		assert.True(t, e.IsScriptObject(obj))

		props, err := e.AsPropertyMap(obj)
		require.NoError(t, err)
		var keys []string
		for pair := props.Oldest(); pair != nil; pair = pair.Next() {
			keys = append(keys, pair.Key)
		}
		assert.Equal(t, []string{"a", "b"}, keys)
		b, _ := props.Get("b")
		assert.Equal(t, int64(2), b.Interface())

		_, err = e.AsPropertyMap(engine.FromHost(12))
		assert.ErrorIs(t, err, engine.ErrNotSupported)
		assert.False(t, e.IsScriptObject(engine.FromHost(12)))
	})

	t.Run("host maps have properties", func(t *testing.T) {
		e := newEngine(t)
		props, err := e.AsPropertyMap(engine.FromHost(map[string]any{"z": 1, "y": 2}))
		require.NoError(t, err)
		assert.Equal(t, 2, props.Len())
	})

	t.Run("iterates sequences", func(t *testing.T) {
		e := newEngine(t)
		list, err := e.Eval(ctx, d.List, engine.Output{})
		require.NoError(t, err)
		require.True(t, e.IsIterable(list))

		var got []any
		require.NoError(t, e.IterateObject(list, func(v engine.Value) bool {
			got = append(got, v.Interface())
			return true
		}))
		assert.Equal(t, []any{int64(1), int64(2), int64(3)}, got)

		got = got[:0]
		require.NoError(t, e.IterateObject(list, func(v engine.Value) bool {
			got = append(got, v.Interface())
			return false
		}))
		assert.Len(t, got, 1)

		assert.False(t, e.IsIterable(engine.FromHost(1)))
		assert.ErrorIs(t, e.IterateObject(engine.FromHost(1), func(engine.Value) bool { return true }), engine.ErrNotSupported)
	})

	t.Run("host functions", func(t *testing.T) {
		e := newEngine(t)
		require.NoError(t, e.DefineFunction("twice", func(args []engine.Value) (any, error) {
			require.Len(t, args, 1)
			n, _ := args[0].Interface().(int64)
			return n * 2, nil
		}))
		v, err := e.Eval(ctx, "twice(21)", engine.Output{})
		require.NoError(t, err)
		assert.Equal(t, int64(42), v.Interface())

		assert.ErrorIs(t, e.DefineFunction("not valid", func([]engine.Value) (any, error) { return nil, nil }), engine.ErrInvalidName)
	})

	t.Run("method calls", func(t *testing.T) {
		e := newEngine(t)
		_, err := e.Eval(ctx, d.Function, engine.Output{})
		require.NoError(t, err)

		fn, ok := e.Get("add")
		require.True(t, ok)
		assert.True(t, fn.IsCallable())

		v, err := e.EvalMethodCall(ctx, "add", engine.Output{}, 2, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(5), v.Interface())

		_, err = e.EvalMethodCall(ctx, "nope", engine.Output{})
		assert.ErrorIs(t, err, engine.ErrEvaluation)
	})

	t.Run("captures callback invocations", func(t *testing.T) {
		e := newEngine(t)
		calls, err := e.EvalWithCallbackFunctions(ctx, d.Capture, []string{"rect", "line"}, engine.Output{})
		require.NoError(t, err)
		require.Len(t, calls, 2)

		assert.Equal(t, "rect", calls[0].Name)
		assert.Equal(t, []string{"a", "b"}, calls[0].Keys())
		assert.Equal(t, map[string]string{"a": "1", "b": "2"}, calls[0].Map())

		assert.Equal(t, "line", calls[1].Name)
		assert.Equal(t, map[string]string{"a": "3"}, calls[1].Map())

		_, ok := e.Get("rect")
		assert.False(t, ok, "shims are removed afterwards")
		assert.Empty(t, e.Globals())
	})

	t.Run("unreferenced callbacks capture nothing", func(t *testing.T) {
		e := newEngine(t)
		calls, err := e.EvalWithCallbackFunctions(ctx, "1+1", []string{"rect"}, engine.Output{})
		require.NoError(t, err)
		assert.NotNil(t, calls)
		assert.Empty(t, calls)
	})

	t.Run("capture restores shadowed globals", func(t *testing.T) {
		e := newEngine(t)
		require.NoError(t, e.Set("rect", "keep"))
		_, err := e.EvalWithCallbackFunctions(ctx, d.Capture, []string{"rect", "line"}, engine.Output{})
		require.NoError(t, err)

		v, ok := e.Get("rect")
		require.True(t, ok)
		assert.Equal(t, "keep", v.Interface())
	})

	t.Run("capture keeps calls made before a failure", func(t *testing.T) {
		e := newEngine(t)
		calls, err := e.EvalWithCallbackFunctions(ctx, d.Capture+"\n"+d.Throw, []string{"rect", "line"}, engine.Output{})
		require.Error(t, err)
		assert.Len(t, calls, 2)
		_, ok := e.Get("line")
		assert.False(t, ok)
	})

	t.Run("capture rejects invalid names", func(t *testing.T) {
		e := newEngine(t)
		_, err := e.EvalWithCallbackFunctions(ctx, "1", []string{"1bad"}, engine.Output{})
		assert.ErrorIs(t, err, engine.ErrInvalidName)
	})

	t.Run("cancellation interrupts a loop", func(t *testing.T) {
		e := newEngine(t)
		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		_, err := e.Eval(cctx, d.Loop, engine.Output{})
		require.Error(t, err)
		assert.ErrorIs(t, err, engine.ErrInterrupted)

		v, err := e.Eval(ctx, "1+1", engine.Output{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), v.Interface())
	})

	t.Run("values move between instances", func(t *testing.T) {
		a := newEngine(t)
		b := newEngine(t)

		obj, err := a.Eval(ctx, d.Object, engine.Output{})
		require.NoError(t, err)
		require.NoError(t, b.Set("obj", obj))

		got, ok := b.Get("obj")
		require.True(t, ok)
		assert.True(t, b.IsScriptObject(got))
		assert.NotEqual(t, obj.Origin(), got.Origin())

		props, err := b.AsPropertyMap(got)
		require.NoError(t, err)
		v, _ := props.Get("a")
		assert.Equal(t, int64(1), v.Interface())
	})

	t.Run("closed engine refuses work", func(t *testing.T) {
		e, err := factory()
		require.NoError(t, err)
		require.NoError(t, e.Close())
		require.NoError(t, e.Close())
		assert.Error(t, e.Delete("x"))

		_, err = e.Eval(ctx, "1", engine.Output{})
		assert.Error(t, err)
		assert.Error(t, e.Set("x", 1))
	})
}
