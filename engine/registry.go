package engine

import (
	"errors"
	"fmt"

	"github.com/casualjim/polyscript/internal/registry"
)

// Registry maps engine kinds to factories and caches the instance created for each
// kind, so an engine keeps its state when it is swapped out and back in.
type Registry struct {
	factories registry.Registry[Factory]
	instances registry.Registry[Engine]
}

func NewRegistry() *Registry {
	return &Registry{
		factories: registry.New[Factory](),
		instances: registry.New[Engine](),
	}
}

// Register makes kind available. Each kind can be registered once.
func (r *Registry) Register(kind string, factory Factory) error {
	if kind == "" {
		return errors.New("engine kind is required")
	}
	if factory == nil {
		return fmt.Errorf("engine %q: factory is required", kind)
	}
	if !r.factories.Add(kind, factory) {
		return fmt.Errorf("%w: %s", ErrEngineExists, kind)
	}
	return nil
}

func (r *Registry) Has(kind string) bool {
	_, ok := r.factories.Get(kind)
	return ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	return r.factories.Names()
}

// Instance returns the engine for kind, creating it on first use.
func (r *Registry) Instance(kind string) (Engine, error) {
	if e, ok := r.instances.Get(kind); ok {
		return e, nil
	}
	factory, ok := r.factories.Get(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, kind)
	}
	e, err := factory()
	if err != nil {
		return nil, fmt.Errorf("create engine %s: %w", kind, err)
	}
	if e == nil {
		return nil, fmt.Errorf("create engine %s: factory returned nil", kind)
	}
	if !r.instances.Add(kind, e) {
		// lost a race with another caller, keep theirs
		_ = e.Close()
		existing, _ := r.instances.Get(kind)
		return existing, nil
	}
	return e, nil
}

// Instantiated lists the kinds that have a live instance, sorted.
func (r *Registry) Instantiated() []string {
	return r.instances.Names()
}

// Close closes every live instance.
func (r *Registry) Close() error {
	var errs error
	for _, kind := range r.instances.Names() {
		e, ok := r.instances.Get(kind)
		if !ok {
			continue
		}
		r.instances.Del(kind)
		if err := e.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("close engine %s: %w", kind, err))
		}
	}
	return errs
}
