// Package javascript implements an ECMAScript engine backed by goja.
//
// Scripts get a console object (log, info and debug write to the evaluation's
// standard output, warn and error to its error output) and a print function.
// Only properties of the global object take part in namespace sync, so top-level
// let and const bindings stay private to the engine. A global holding undefined
// counts as unbound.
package javascript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/casualjim/polyscript/engine"
	"github.com/casualjim/polyscript/pkg/uuidx"
	"github.com/dop251/goja"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind is the name this backend registers under.
const Kind = "javascript"

var _ engine.Engine = (*Engine)(nil)

var errClosed = errors.New("engine closed")

type Engine struct {
	id       string
	vm       *goja.Runtime
	output   engine.Output
	builtins map[string]struct{}
	hostFns  map[string]struct{}
	depth    int
	closed   bool
}

// Factory creates engines for an engine.Registry.
func Factory() (engine.Engine, error) {
	return New()
}

func New() (*Engine, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	e := &Engine{
		id:       uuidx.Token(),
		vm:       vm,
		builtins: make(map[string]struct{}),
		hostFns:  make(map[string]struct{}),
	}
	if err := e.installConsole(); err != nil {
		return nil, err
	}
	for _, k := range vm.GlobalObject().Keys() {
		e.builtins[k] = struct{}{}
	}
	return e, nil
}

func (e *Engine) Kind() string { return Kind }

func (e *Engine) ID() string { return e.id }

func (e *Engine) installConsole() error {
	stdout := func() io.Writer { return e.output.Out() }
	stderr := func() io.Writer { return e.output.Err() }

	console := e.vm.NewObject()
	for _, name := range []string{"log", "info", "debug"} {
		if err := console.Set(name, printer(stdout)); err != nil {
			return err
		}
	}
	for _, name := range []string{"warn", "error"} {
		if err := console.Set(name, printer(stderr)); err != nil {
			return err
		}
	}
	if err := e.vm.Set("console", console); err != nil {
		return err
	}
	return e.vm.Set("print", printer(stdout))
}

// printer resolves its writer on every call because the output binding changes
// with each evaluation.
func printer(w func() io.Writer) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = display(arg)
		}
		_, _ = io.WriteString(w(), strings.Join(parts, " ")+"\n")
		return goja.Undefined()
	}
}

func (e *Engine) Eval(ctx context.Context, source string, out engine.Output) (engine.Value, error) {
	result := engine.Nil
	err := e.run(ctx, out, func() error {
		v, err := e.vm.RunString(source)
		if err != nil {
			return err
		}
		result = e.wrap(v)
		return nil
	})
	return result, err
}

// run binds out as the console and arranges for ctx cancellation to interrupt the VM.
func (e *Engine) run(ctx context.Context, out engine.Output, fn func() error) error {
	if e.closed {
		return errClosed
	}
	if err := ctx.Err(); err != nil {
		return engine.Interrupted(Kind, err)
	}

	prev := e.output
	e.output = out
	defer func() { e.output = prev }()

	e.depth++
	defer func() { e.depth-- }()
	if e.depth > 1 {
		// called back from inside a running evaluation, which owns the interrupt
		return e.translate(fn())
	}

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		e.vm.Interrupt(engine.ErrInterrupted)
	})
	defer func() {
		if !stop() {
			<-fired
		}
		e.vm.ClearInterrupt()
	}()

	return e.translate(fn())
}

func (e *Engine) translate(err error) error {
	if err == nil {
		return nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return engine.Interrupted(Kind, err)
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		msg := exc.Error()
		if v := exc.Value(); v != nil && !goja.IsUndefined(v) {
			msg = v.String()
		}
		return &engine.EvaluationError{Engine: Kind, Message: msg, Err: err}
	}
	if errors.Is(err, errClosed) {
		return err
	}
	return &engine.EvaluationError{Engine: Kind, Message: err.Error(), Err: err}
}

func (e *Engine) wrap(v goja.Value) engine.Value {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return engine.Nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return engine.FromHost(v.Export())
	}
	if _, isFn := goja.AssertFunction(obj); isFn {
		return engine.NewFunction(e.id, obj, display(obj))
	}
	return engine.NewNative(e.id, obj, obj.Export(), display(obj))
}

func (e *Engine) toJS(value any) goja.Value {
	if v, ok := value.(engine.Value); ok {
		if v.OwnedBy(e.id) {
			if raw, ok := v.Raw().(goja.Value); ok {
				return raw
			}
		}
		return e.vm.ToValue(v.Interface())
	}
	return e.vm.ToValue(value)
}

func display(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	return v.String()
}

func (e *Engine) IsIterable(v engine.Value) bool {
	obj, ok := e.object(v)
	if !ok {
		return false
	}
	_, ok = goja.AssertFunction(obj.GetSymbol(goja.SymIterator))
	return ok
}

func (e *Engine) IterateObject(v engine.Value, each func(engine.Value) bool) error {
	obj, ok := e.object(v)
	if !ok {
		return fmt.Errorf("iterate %s value: %w", v.Kind(), engine.ErrNotSupported)
	}
	method, ok := goja.AssertFunction(obj.GetSymbol(goja.SymIterator))
	if !ok {
		return fmt.Errorf("iterate object without Symbol.iterator: %w", engine.ErrNotSupported)
	}

	var iterErr error
	err := e.run(context.Background(), e.output, func() error {
		it, err := method(obj)
		if err != nil {
			return err
		}
		iter := it.ToObject(e.vm)
		next, ok := goja.AssertFunction(iter.Get("next"))
		if !ok {
			return fmt.Errorf("iterator has no next method: %w", engine.ErrNotSupported)
		}
		for {
			res, err := next(iter)
			if err != nil {
				return err
			}
			step := res.ToObject(e.vm)
			if step.Get("done").ToBoolean() {
				return nil
			}
			if !each(e.wrap(step.Get("value"))) {
				if ret, ok := goja.AssertFunction(iter.Get("return")); ok {
					_, iterErr = ret(iter)
				}
				return nil
			}
		}
	})
	if err != nil {
		return err
	}
	return e.translate(iterErr)
}

func (e *Engine) Get(name string) (engine.Value, bool) {
	if e.closed {
		return engine.Nil, false
	}
	v := e.vm.Get(name)
	if v == nil || goja.IsUndefined(v) {
		return engine.Nil, false
	}
	return e.wrap(v), true
}

func (e *Engine) Set(name string, value any) error {
	if e.closed {
		return errClosed
	}
	return e.vm.Set(name, e.toJS(value))
}

// Delete removes name from the global object. Bindings declared with var cannot be
// deleted; they are set to undefined, which Globals and Get treat as unbound.
func (e *Engine) Delete(name string) error {
	if e.closed {
		return errClosed
	}
	global := e.vm.GlobalObject()
	if err := global.Delete(name); err != nil {
		return global.Set(name, goja.Undefined())
	}
	return nil
}

func (e *Engine) Globals() []string {
	if e.closed {
		return nil
	}
	var names []string
	global := e.vm.GlobalObject()
	for _, k := range global.Keys() {
		if goja.IsUndefined(global.Get(k)) {
			continue
		}
		if _, ok := e.builtins[k]; ok {
			continue
		}
		if _, ok := e.hostFns[k]; ok {
			continue
		}
		if strings.HasPrefix(k, "__capture_") {
			continue
		}
		names = append(names, k)
	}
	return names
}

func (e *Engine) AsPropertyMap(v engine.Value) (*orderedmap.OrderedMap[string, engine.Value], error) {
	obj, ok := e.object(v)
	if !ok || v.IsCallable() {
		return engine.HostProperties(v)
	}
	props := orderedmap.New[string, engine.Value]()
	for _, k := range obj.Keys() {
		props.Set(k, e.wrap(obj.Get(k)))
	}
	return props, nil
}

func (e *Engine) IsScriptObject(v engine.Value) bool {
	_, ok := e.object(v)
	return ok
}

func (e *Engine) object(v engine.Value) (*goja.Object, bool) {
	if !v.OwnedBy(e.id) {
		return nil, false
	}
	obj, ok := v.Raw().(*goja.Object)
	return obj, ok
}

func (e *Engine) DefineFunction(name string, fn engine.HostFunc) error {
	if e.closed {
		return errClosed
	}
	if _, err := engine.CheckNames([]string{name}); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("define %s: function is nil", name)
	}
	wrapper := func(call goja.FunctionCall) goja.Value {
		args := make([]engine.Value, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = e.wrap(arg)
		}
		res, err := fn(args)
		if err != nil {
			panic(e.vm.NewGoError(err))
		}
		return e.toJS(res)
	}
	if err := e.vm.Set(name, wrapper); err != nil {
		return err
	}
	e.hostFns[name] = struct{}{}
	return nil
}

func (e *Engine) EvalMethodCall(ctx context.Context, name string, out engine.Output, args ...any) (engine.Value, error) {
	if e.closed {
		return engine.Nil, errClosed
	}
	fn, ok := goja.AssertFunction(e.vm.Get(name))
	if !ok {
		return engine.Nil, &engine.EvaluationError{Engine: Kind, Message: fmt.Sprintf("TypeError: %s is not a function", name)}
	}
	jsArgs := make([]goja.Value, len(args))
	for i, arg := range args {
		jsArgs[i] = e.toJS(arg)
	}

	result := engine.Nil
	err := e.run(ctx, out, func() error {
		v, err := fn(goja.Undefined(), jsArgs...)
		if err != nil {
			return err
		}
		result = e.wrap(v)
		return nil
	})
	return result, err
}

func (e *Engine) EvalWithCallbackFunctions(ctx context.Context, source string, names []string, out engine.Output) ([]engine.CapturedCall, error) {
	if e.closed {
		return nil, errClosed
	}
	names, err := engine.CheckNames(names)
	if err != nil {
		return nil, err
	}

	rec := engine.NewRecorder()
	restore := e.shadow(append([]string{rec.SinkName()}, names...))
	defer restore()

	sink := func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Undefined()
		}
		props := orderedmap.New[string, string]()
		for i, arg := range call.Arguments[1:] {
			collect(props, i, arg)
		}
		rec.Record(call.Argument(0).String(), props)
		return goja.Undefined()
	}
	if err := e.vm.Set(rec.SinkName(), sink); err != nil {
		return nil, err
	}
	for _, name := range names {
		src := fmt.Sprintf("(function %s(...args) { return %s(%q, ...args); })", name, rec.SinkName(), name)
		shim, err := e.vm.RunString(src)
		if err != nil {
			return nil, e.translate(err)
		}
		if err := e.vm.Set(name, shim); err != nil {
			return nil, err
		}
	}

	if _, err := e.Eval(ctx, source, out); err != nil {
		return rec.Calls(), err
	}
	return rec.Calls(), nil
}

// collect adds one shim argument: plain objects contribute their own properties,
// everything else is keyed by its position.
func collect(props *orderedmap.OrderedMap[string, string], pos int, arg goja.Value) {
	if obj, ok := arg.(*goja.Object); ok {
		_, isFn := goja.AssertFunction(obj)
		if !isFn && obj.ClassName() != "Array" {
			for _, k := range obj.Keys() {
				props.Set(k, display(obj.Get(k)))
			}
			return
		}
	}
	props.Set(strconv.Itoa(pos), display(arg))
}

// shadow remembers the current global bindings of names and returns a function
// that puts them back, deleting the ones that did not exist.
func (e *Engine) shadow(names []string) func() {
	global := e.vm.GlobalObject()
	saved := make(map[string]goja.Value, len(names))
	for _, name := range names {
		saved[name] = global.Get(name)
	}
	return func() {
		for _, name := range names {
			if prev := saved[name]; prev != nil {
				_ = global.Set(name, prev)
				continue
			}
			_ = global.Delete(name)
		}
	}
}

// Close releases the runtime. Any evaluation still running is interrupted.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.vm.Interrupt(errClosed)
	return nil
}
