package flow

import (
	"context"

	"github.com/aretw0/appflow/pkg/state"
)

// Context is what reducers and conditions see of the machine.
type Context struct {
	// State is the node's projected slice of the root state, or the whole
	// state when the node has no projection.
	State any
	// Root is the whole state at the time the context was built.
	Root any

	ctx      context.Context
	getState func() any
	uses     map[string]any
	mutator  *state.State
	compare  state.Comparer
}

// Context returns the context.Context of the dispatch being evaluated.
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// GetState returns the machine's current root state.
func (c *Context) GetState() any {
	return c.getState()
}

// Mutate returns the mutation handle over State, creating it on first use.
// When a reducer has touched the handle, the handle's value is committed in
// place of whatever the reducer returned.
func (c *Context) Mutate() *state.State {
	if c.mutator == nil {
		c.mutator = state.New(c.State, state.WithComparer(c.compare))
	}
	return c.mutator
}

// Use returns the state of the machine registered under name with Node.Use.
func (c *Context) Use(name string) any {
	return c.uses[name]
}

func (m *Machine) newContext(ctx context.Context, v *vertex) *Context {
	root := m.state
	c := &Context{
		State:    project(root, v.prop),
		Root:     root,
		ctx:      ctx,
		getState: m.snapshot,
		compare:  m.compare,
	}
	if c.State == nil && v.reducer != nil {
		c.State = v.def
	}
	if len(v.uses) > 0 {
		c.uses = make(map[string]any, len(v.uses))
		for name, other := range v.uses {
			c.uses[name] = other.GetState()
		}
	}
	return c
}

// project extracts the slice of root selected by p.
func project(root any, p Projection) any {
	if p.IsZero() {
		return root
	}
	obj, _ := root.(map[string]any)
	if !p.multi {
		return obj[p.keys[0]]
	}
	out := make(map[string]any, len(p.keys))
	for _, k := range p.keys {
		out[k] = obj[k]
	}
	return out
}
