// Package lua implements a Lua 5.1 engine backed by gopher-lua.
//
// print and io.write go to the evaluation's standard output and warn to its error
// output. Sources that parse as an expression are evaluated as one, so "1+1" yields 2
// just like it does in the other backends.
package lua

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/casualjim/polyscript/engine"
	"github.com/casualjim/polyscript/pkg/uuidx"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	glua "github.com/yuin/gopher-lua"
)

// Kind is the name this backend registers under.
const Kind = "lua"

var _ engine.Engine = (*Engine)(nil)

var errClosed = errors.New("engine closed")

type Engine struct {
	id       string
	L        *glua.LState
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
	e := &Engine{
		id:       uuidx.Token(),
		L:        glua.NewState(),
		builtins: make(map[string]struct{}),
		hostFns:  make(map[string]struct{}),
	}
	if err := e.installConsole(); err != nil {
		e.L.Close()
		return nil, err
	}
	e.L.G.Global.ForEach(func(k, _ glua.LValue) {
		if s, ok := k.(glua.LString); ok {
			e.builtins[string(s)] = struct{}{}
		}
	})
	return e, nil
}

func (e *Engine) Kind() string { return Kind }

func (e *Engine) ID() string { return e.id }

func (e *Engine) installConsole() error {
	stdout := func() io.Writer { return e.output.Out() }
	stderr := func() io.Writer { return e.output.Err() }

	e.L.SetGlobal("print", e.L.NewFunction(e.printer(stdout, "\t", "\n")))
	e.L.SetGlobal("warn", e.L.NewFunction(e.printer(stderr, "", "\n")))

	ioLib, ok := e.L.GetGlobal("io").(*glua.LTable)
	if !ok {
		return errors.New("lua io library is not loaded")
	}
	ioLib.RawSetString("write", e.L.NewFunction(e.printer(stdout, "", "")))
	return nil
}

func (e *Engine) printer(w func() io.Writer, sep, end string) glua.LGFunction {
	return func(L *glua.LState) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			parts = append(parts, e.display(L.Get(i)))
		}
		_, _ = io.WriteString(w(), strings.Join(parts, sep)+end)
		return 0
	}
}

func (e *Engine) display(lv glua.LValue) string {
	return e.L.ToStringMeta(lv).String()
}

func (e *Engine) Eval(ctx context.Context, source string, out engine.Output) (engine.Value, error) {
	result := engine.Nil
	err := e.run(ctx, out, func() error {
		fn, err := e.compile(source)
		if err != nil {
			return err
		}
		top := e.L.GetTop()
		defer e.L.SetTop(top)

		e.L.Push(fn)
		if err := e.L.PCall(0, glua.MultRet, nil); err != nil {
			return err
		}
		if e.L.GetTop() > top {
			result = e.wrap(e.L.Get(top + 1))
		}
		return nil
	})
	return result, err
}

// compile prefers the expression form of source so expressions yield their value.
func (e *Engine) compile(source string) (*glua.LFunction, error) {
	if fn, err := e.L.LoadString("return " + source); err == nil {
		return fn, nil
	}
	return e.L.LoadString(source)
}

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
		// called back from inside a running evaluation, whose context stays in charge
		return e.translate(fn())
	}

	e.L.SetContext(ctx)
	defer e.L.RemoveContext()

	err := fn()
	if err != nil && ctx.Err() != nil {
		return engine.Interrupted(Kind, errors.Join(ctx.Err(), err))
	}
	return e.translate(err)
}

func (e *Engine) translate(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *glua.ApiError
	if errors.As(err, &apiErr) {
		msg := err.Error()
		if apiErr.Object != nil && apiErr.Object != glua.LNil {
			msg = apiErr.Object.String()
		}
		if apiErr.Type == glua.ApiErrorSyntax && !strings.HasPrefix(msg, "syntax error") {
			msg = "syntax error: " + msg
		}
		return &engine.EvaluationError{Engine: Kind, Message: msg, Err: err}
	}
	if errors.Is(err, errClosed) {
		return err
	}
	return &engine.EvaluationError{Engine: Kind, Message: err.Error(), Err: err}
}

func (e *Engine) wrap(lv glua.LValue) engine.Value {
	switch v := lv.(type) {
	case nil:
		return engine.Nil
	case glua.LBool:
		return engine.FromHost(bool(v))
	case glua.LNumber:
		return engine.FromHost(float64(v))
	case glua.LString:
		return engine.FromHost(string(v))
	case *glua.LTable:
		return engine.NewNative(e.id, v, export(v, make(map[*glua.LTable]bool)), e.display(v))
	case *glua.LFunction:
		return engine.NewFunction(e.id, v, e.display(v))
	case *glua.LUserData:
		if hv, ok := v.Value.(engine.Value); ok {
			return hv
		}
		return engine.NewNative(e.id, v, v.Value, e.display(v))
	default:
		if lv == glua.LNil {
			return engine.Nil
		}
		return engine.NewNative(e.id, lv, nil, e.display(lv))
	}
}

// export converts a table to []any when it is a proper sequence, map[string]any otherwise.
func export(tbl *glua.LTable, seen map[*glua.LTable]bool) any {
	if seen[tbl] {
		return nil
	}
	seen[tbl] = true
	defer delete(seen, tbl)

	exportValue := func(lv glua.LValue) any {
		switch v := lv.(type) {
		case glua.LBool:
			return bool(v)
		case glua.LNumber:
			return engine.Number(float64(v))
		case glua.LString:
			return string(v)
		case *glua.LTable:
			return export(v, seen)
		case *glua.LUserData:
			return v.Value
		default:
			return nil
		}
	}

	n := tbl.MaxN()
	count := 0
	pairs(tbl, func(_, _ glua.LValue) bool { count++; return true })
	if n > 0 && n == count {
		list := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			list = append(list, exportValue(tbl.RawGetInt(i)))
		}
		return list
	}

	m := make(map[string]any, count)
	pairs(tbl, func(k, v glua.LValue) bool {
		m[keyString(k)] = exportValue(v)
		return true
	})
	return m
}

func keyString(k glua.LValue) string {
	switch key := k.(type) {
	case glua.LString:
		return string(key)
	case glua.LNumber:
		if f := float64(key); f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
		return key.String()
	default:
		return k.String()
	}
}

func (e *Engine) toLua(value any) glua.LValue {
	if v, ok := value.(engine.Value); ok {
		if v.OwnedBy(e.id) {
			if raw, ok := v.Raw().(glua.LValue); ok {
				return raw
			}
		}
		if v.Kind() == engine.Native && v.Interface() == nil {
			return glua.LNil
		}
		return e.toLua(v.Interface())
	}

	switch v := value.(type) {
	case nil:
		return glua.LNil
	case glua.LValue:
		return v
	case bool:
		return glua.LBool(v)
	case string:
		return glua.LString(v)
	case int:
		return glua.LNumber(v)
	case int64:
		return glua.LNumber(v)
	case float64:
		return glua.LNumber(v)
	case []any:
		tbl := e.L.NewTable()
		for _, item := range v {
			tbl.Append(e.toLua(item))
		}
		return tbl
	case map[string]any:
		tbl := e.L.NewTable()
		for k, item := range v {
			tbl.RawSetString(k, e.toLua(item))
		}
		return tbl
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return glua.LNumber(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return glua.LNumber(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return glua.LNumber(rv.Float())
	case reflect.String:
		return glua.LString(rv.String())
	case reflect.Bool:
		return glua.LBool(rv.Bool())
	case reflect.Slice, reflect.Array:
		tbl := e.L.NewTable()
		for i := range rv.Len() {
			tbl.Append(e.toLua(rv.Index(i).Interface()))
		}
		return tbl
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			tbl := e.L.NewTable()
			iter := rv.MapRange()
			for iter.Next() {
				tbl.RawSetString(iter.Key().String(), e.toLua(iter.Value().Interface()))
			}
			return tbl
		}
	}
	ud := e.L.NewUserData()
	ud.Value = engine.FromHost(value)
	return ud
}

func (e *Engine) IsIterable(v engine.Value) bool {
	_, ok := e.table(v)
	return ok
}

// IterateObject walks the values of a table: the sequence part first, then the
// remaining keys in insertion order.
func (e *Engine) IterateObject(v engine.Value, each func(engine.Value) bool) error {
	tbl, ok := e.table(v)
	if !ok {
		return fmt.Errorf("iterate %s value: %w", v.Kind(), engine.ErrNotSupported)
	}
	pairs(tbl, func(_, item glua.LValue) bool {
		return each(e.wrap(item))
	})
	return nil
}

// pairs walks tbl in the order of the pairs builtin until fn returns false.
func pairs(tbl *glua.LTable, fn func(k, v glua.LValue) bool) {
	key := glua.LValue(glua.LNil)
	for {
		var v glua.LValue
		key, v = tbl.Next(key)
		if key == glua.LNil || !fn(key, v) {
			return
		}
	}
}

func (e *Engine) Get(name string) (engine.Value, bool) {
	if e.closed {
		return engine.Nil, false
	}
	lv := e.L.GetGlobal(name)
	if lv == glua.LNil {
		return engine.Nil, false
	}
	return e.wrap(lv), true
}

func (e *Engine) Set(name string, value any) error {
	if e.closed {
		return errClosed
	}
	e.L.SetGlobal(name, e.toLua(value))
	return nil
}

func (e *Engine) Delete(name string) error {
	if e.closed {
		return errClosed
	}
	e.L.SetGlobal(name, glua.LNil)
	return nil
}

func (e *Engine) Globals() []string {
	if e.closed {
		return nil
	}
	var names []string
	pairs(e.L.G.Global, func(k, _ glua.LValue) bool {
		s, ok := k.(glua.LString)
		if !ok {
			return true
		}
		name := string(s)
		_, builtin := e.builtins[name]
		_, host := e.hostFns[name]
		if !builtin && !host && !strings.HasPrefix(name, "__capture_") {
			names = append(names, name)
		}
		return true
	})
	return names
}

func (e *Engine) AsPropertyMap(v engine.Value) (*orderedmap.OrderedMap[string, engine.Value], error) {
	tbl, ok := e.table(v)
	if !ok {
		return engine.HostProperties(v)
	}
	props := orderedmap.New[string, engine.Value]()
	pairs(tbl, func(k, item glua.LValue) bool {
		props.Set(keyString(k), e.wrap(item))
		return true
	})
	return props, nil
}

func (e *Engine) IsScriptObject(v engine.Value) bool {
	if !v.OwnedBy(e.id) {
		return false
	}
	switch v.Raw().(type) {
	case *glua.LTable, *glua.LFunction, *glua.LUserData:
		return true
	default:
		return false
	}
}

func (e *Engine) table(v engine.Value) (*glua.LTable, bool) {
	if !v.OwnedBy(e.id) {
		return nil, false
	}
	tbl, ok := v.Raw().(*glua.LTable)
	return tbl, ok
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
	e.L.SetGlobal(name, e.L.NewFunction(func(L *glua.LState) int {
		top := L.GetTop()
		args := make([]engine.Value, 0, top)
		for i := 1; i <= top; i++ {
			args = append(args, e.wrap(L.Get(i)))
		}
		res, err := fn(args)
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(e.toLua(res))
		return 1
	}))
	e.hostFns[name] = struct{}{}
	return nil
}

func (e *Engine) EvalMethodCall(ctx context.Context, name string, out engine.Output, args ...any) (engine.Value, error) {
	if e.closed {
		return engine.Nil, errClosed
	}
	fn, ok := e.L.GetGlobal(name).(*glua.LFunction)
	if !ok {
		return engine.Nil, &engine.EvaluationError{Engine: Kind, Message: fmt.Sprintf("attempt to call a non-function value (global '%s')", name)}
	}
	luaArgs := make([]glua.LValue, len(args))
	for i, arg := range args {
		luaArgs[i] = e.toLua(arg)
	}

	result := engine.Nil
	err := e.run(ctx, out, func() error {
		top := e.L.GetTop()
		defer e.L.SetTop(top)
		if err := e.L.CallByParam(glua.P{Fn: fn, NRet: 1, Protect: true}, luaArgs...); err != nil {
			return err
		}
		result = e.wrap(e.L.Get(-1))
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

	e.L.SetGlobal(rec.SinkName(), e.L.NewFunction(func(L *glua.LState) int {
		if L.GetTop() == 0 {
			return 0
		}
		name := e.display(L.Get(1))
		props := orderedmap.New[string, string]()
		for i := 2; i <= L.GetTop(); i++ {
			e.collect(props, i-2, L.Get(i))
		}
		rec.Record(name, props)
		return 0
	}))

	var shims strings.Builder
	for _, name := range names {
		fmt.Fprintf(&shims, "%s = function(...) return %s(%q, ...) end\n", name, rec.SinkName(), name)
	}
	if err := e.L.DoString(shims.String()); err != nil {
		return nil, e.translate(err)
	}

	if _, err := e.Eval(ctx, source, out); err != nil {
		return rec.Calls(), err
	}
	return rec.Calls(), nil
}

// collect adds one shim argument: tables contribute their key/value pairs, anything
// else is keyed by its position.
func (e *Engine) collect(props *orderedmap.OrderedMap[string, string], pos int, arg glua.LValue) {
	if tbl, ok := arg.(*glua.LTable); ok {
		pairs(tbl, func(k, v glua.LValue) bool {
			props.Set(keyString(k), e.display(v))
			return true
		})
		return
	}
	props.Set(strconv.Itoa(pos), e.display(arg))
}

func (e *Engine) shadow(names []string) func() {
	saved := make([]glua.LValue, len(names))
	for i, name := range names {
		saved[i] = e.L.GetGlobal(name)
	}
	return func() {
		for i, name := range names {
			e.L.SetGlobal(name, saved[i])
		}
	}
}

func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.L.Close()
	return nil
}
