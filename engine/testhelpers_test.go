package engine

import (
	"context"
	"errors"
	"slices"

	"github.com/casualjim/polyscript/pkg/uuidx"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// mapEngine is an Engine over a plain map, enough to exercise the namespace and
// the registry without a script runtime.
type mapEngine struct {
	kind    string
	id      string
	globals *orderedmap.OrderedMap[string, Value]
	setErr  error
	closed  int
}

func newMapEngine(kind string) *mapEngine {
	return &mapEngine{kind: kind, id: uuidx.Token(), globals: orderedmap.New[string, Value]()}
}

func (m *mapEngine) Kind() string { return m.kind }
func (m *mapEngine) ID() string   { return m.id }

func (m *mapEngine) Eval(context.Context, string, Output) (Value, error) {
	return Nil, errors.New("not implemented")
}

func (m *mapEngine) IsIterable(Value) bool { return false }

func (m *mapEngine) IterateObject(Value, func(Value) bool) error { return ErrNotSupported }

func (m *mapEngine) Get(name string) (Value, bool) { return m.globals.Get(name) }

func (m *mapEngine) Set(name string, value any) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.globals.Set(name, FromHost(value))
	return nil
}

func (m *mapEngine) Delete(name string) error {
	m.globals.Delete(name)
	return nil
}

func (m *mapEngine) Globals() []string {
	var names []string
	for pair := m.globals.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

func (m *mapEngine) AsPropertyMap(v Value) (*orderedmap.OrderedMap[string, Value], error) {
	return HostProperties(v)
}

func (m *mapEngine) IsScriptObject(v Value) bool { return v.OwnedBy(m.id) }

func (m *mapEngine) DefineFunction(string, HostFunc) error { return nil }

func (m *mapEngine) EvalMethodCall(context.Context, string, Output, ...any) (Value, error) {
	return Nil, ErrNotSupported
}

func (m *mapEngine) EvalWithCallbackFunctions(context.Context, string, []string, Output) ([]CapturedCall, error) {
	return nil, ErrNotSupported
}

func (m *mapEngine) Close() error {
	m.closed++
	return nil
}

func (m *mapEngine) names() []string {
	return slices.Clone(m.Globals())
}
