package engine

import (
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Namespace holds the variable bindings that survive switching engines. It is not
// safe for concurrent use; the executor only touches it from its worker.
type Namespace struct {
	vars *orderedmap.OrderedMap[string, any]
}

func NewNamespace() *Namespace {
	return &Namespace{vars: orderedmap.New[string, any]()}
}

// Set binds name to a Go value or a Value.
func (n *Namespace) Set(name string, value any) {
	n.vars.Set(name, value)
}

func (n *Namespace) Get(name string) (any, bool) {
	return n.vars.Get(name)
}

// Value returns the binding for name as a Value.
func (n *Namespace) Value(name string) (Value, bool) {
	v, ok := n.vars.Get(name)
	if !ok {
		return Nil, false
	}
	return FromHost(v), true
}

func (n *Namespace) Delete(name string) {
	n.vars.Delete(name)
}

func (n *Namespace) Len() int {
	return n.vars.Len()
}

// Names returns the bound names in the order they were first set.
func (n *Namespace) Names() []string {
	names := make([]string, 0, n.vars.Len())
	for pair := n.vars.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// FlushInto binds every name in e and deletes the script globals of e the namespace
// no longer holds. Callables owned by another engine cannot cross runtimes and are
// skipped.
func (n *Namespace) FlushInto(e Engine) error {
	var errs error
	for pair := n.vars.Oldest(); pair != nil; pair = pair.Next() {
		if foreignCallable(pair.Value, e) {
			continue
		}
		if err := e.Set(pair.Key, pair.Value); err != nil {
			errs = errors.Join(errs, fmt.Errorf("flush %q into %s: %w", pair.Key, e.Kind(), err))
		}
	}
	for _, name := range e.Globals() {
		if _, ok := n.vars.Get(name); ok {
			continue
		}
		if err := e.Delete(name); err != nil {
			errs = errors.Join(errs, fmt.Errorf("delete %q from %s: %w", name, e.Kind(), err))
		}
	}
	return errs
}

// SyncFrom makes the namespace mirror the script-defined globals of e: every global is
// copied in and every name e no longer defines is dropped. Callables that FlushInto
// skipped for e are kept.
func (n *Namespace) SyncFrom(e Engine) error {
	present := make(map[string]struct{})
	for _, name := range e.Globals() {
		v, ok := e.Get(name)
		if !ok {
			continue
		}
		present[name] = struct{}{}
		n.vars.Set(name, v)
	}

	var gone []string
	for pair := n.vars.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := present[pair.Key]; ok || foreignCallable(pair.Value, e) {
			continue
		}
		gone = append(gone, pair.Key)
	}
	for _, name := range gone {
		n.vars.Delete(name)
	}
	return nil
}

func foreignCallable(value any, e Engine) bool {
	v, ok := value.(Value)
	return ok && v.IsCallable() && !v.OwnedBy(e.ID())
}
