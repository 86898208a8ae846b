package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/appflow/pkg/flow"
	"github.com/mitchellh/mapstructure"
)

// ErrNotFound is returned when a name has no registered factory.
var ErrNotFound = errors.New("not registered")

// Args holds the static arguments a definition passes to a factory.
type Args map[string]any

// ReducerFactory builds a reducer from its static arguments.
type ReducerFactory func(args Args) (flow.Reducer, error)

// ConditionFactory builds a condition from its static arguments.
type ConditionFactory func(args Args) (flow.Condition, error)

// NextFactory builds a next or transfer resolver from its static arguments.
type NextFactory func(args Args) (flow.NextFunc, error)

// Registry maps names used in flow definitions to the Go functions they
// stand for.
type Registry struct {
	mu         sync.RWMutex
	reducers   map[string]ReducerFactory
	conditions map[string]ConditionFactory
	nexts      map[string]NextFactory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		reducers:   make(map[string]ReducerFactory),
		conditions: make(map[string]ConditionFactory),
		nexts:      make(map[string]NextFactory),
	}
}

// Default creates a registry holding the builtin reducers, conditions and
// next resolvers.
func Default() *Registry {
	r := NewRegistry()
	registerBuiltins(r)
	return r
}

// RegisterReducer adds a reducer factory.
// If one with the same name exists, it is overwritten.
func (r *Registry) RegisterReducer(name string, fn ReducerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reducers[name] = fn
}

// RegisterCondition adds a condition factory, overwriting any previous one.
func (r *Registry) RegisterCondition(name string, fn ConditionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conditions[name] = fn
}

// RegisterNext adds a next resolver factory, overwriting any previous one.
func (r *Registry) RegisterNext(name string, fn NextFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nexts[name] = fn
}

// Reducer looks up a reducer factory by name and builds it.
func (r *Registry) Reducer(name string, args Args) (flow.Reducer, error) {
	r.mu.RLock()
	fn, ok := r.reducers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("reducer %q: %w", name, ErrNotFound)
	}
	reducer, err := fn(args)
	if err != nil {
		return nil, fmt.Errorf("reducer %q: %w", name, err)
	}
	return reducer, nil
}

// Condition looks up a condition factory by name and builds it.
func (r *Registry) Condition(name string, args Args) (flow.Condition, error) {
	r.mu.RLock()
	fn, ok := r.conditions[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("condition %q: %w", name, ErrNotFound)
	}
	cond, err := fn(args)
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", name, err)
	}
	return cond, nil
}

// Next looks up a next resolver factory by name and builds it.
func (r *Registry) Next(name string, args Args) (flow.NextFunc, error) {
	r.mu.RLock()
	fn, ok := r.nexts[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("next %q: %w", name, ErrNotFound)
	}
	next, err := fn(args)
	if err != nil {
		return nil, fmt.Errorf("next %q: %w", name, err)
	}
	return next, nil
}

// Names lists the registered names of every kind, sorted.
func (r *Registry) Names() (reducers, conditions, nexts []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedNames(r.reducers), sortedNames(r.conditions), sortedNames(r.nexts)
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// decode fills out from args, rejecting keys out does not declare.
func decode(args Args, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		TagName:          "arg",
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]any(args))
}
