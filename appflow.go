package appflow

import (
	"context"
	"fmt"

	"github.com/aretw0/appflow/pkg/flow"
	"github.com/aretw0/appflow/pkg/registry"
	"github.com/aretw0/appflow/pkg/schema"
	"github.com/aretw0/appflow/pkg/session"
)

// Version is the appflow release. Release builds override it with -ldflags.
var Version = "0.1.0"

// Transfer returns a node redirecting dispatches to path, so that several
// events can share one handler:
//
//	flow.New().OnAll(map[string]*flow.Node{
//		"increase": flow.New().ID("increase").Reducer(inc),
//		"plus":     appflow.Transfer("#increase"),
//	})
func Transfer(path string) *flow.Node {
	return flow.New().Transfer(path)
}

// Flow is a validated definition ready to build machines.
type Flow struct {
	Definition *schema.Definition

	registry *registry.Registry
	build    []schema.BuildOption
	opts     []flow.Option
}

// Option configures a Flow.
type Option func(*Flow)

// WithRegistry resolves reducer, condition and next names against reg
// instead of registry.Default().
func WithRegistry(reg *registry.Registry) Option {
	return func(f *Flow) {
		f.registry = reg
	}
}

// WithBuildOptions passes opts to every schema build, typically to provide
// the machines named by forward and uses.
func WithBuildOptions(opts ...schema.BuildOption) Option {
	return func(f *Flow) {
		f.build = append(f.build, opts...)
	}
}

// WithMachineOptions applies opts to every machine the flow builds.
func WithMachineOptions(opts ...flow.Option) Option {
	return func(f *Flow) {
		f.opts = append(f.opts, opts...)
	}
}

// Load reads a YAML or JSON definition from path.
func Load(path string, opts ...Option) (*Flow, error) {
	def, err := schema.Load(path)
	if err != nil {
		return nil, err
	}
	return New(def, opts...)
}

// New validates def against the flow's registry.
func New(def *schema.Definition, opts ...Option) (*Flow, error) {
	f := &Flow{Definition: def}
	for _, opt := range opts {
		opt(f)
	}
	if f.registry == nil {
		f.registry = registry.Default()
	}
	if err := def.Validate(f.registry); err != nil {
		return nil, fmt.Errorf("invalid flow %q: %w", def.Name, err)
	}
	return f, nil
}

// Name returns the definition's name.
func (f *Flow) Name() string {
	return f.Definition.Name
}

// NewMachine builds a fresh machine. opts are applied after the flow's own.
func (f *Flow) NewMachine(opts ...flow.Option) (*flow.Machine, error) {
	all := append(append([]flow.Option(nil), f.opts...), opts...)
	return f.Definition.NewMachine(f.registry, f.build, all...)
}

// Factory builds one machine per session.
func (f *Flow) Factory(opts ...flow.Option) session.Factory {
	return func(ctx context.Context, id string) (*flow.Machine, error) {
		return f.NewMachine(opts...)
	}
}
