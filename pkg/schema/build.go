package schema

import (
	"fmt"

	"github.com/aretw0/appflow/pkg/flow"
	"github.com/aretw0/appflow/pkg/registry"
	"github.com/aretw0/appflow/pkg/state"
)

// MachineLookup finds machines named by forward and uses entries.
type MachineLookup func(name string) (*flow.Machine, bool)

// BuildOption configures Build.
type BuildOption func(*builder)

// WithMachine makes m available to forward and uses entries under name.
func WithMachine(name string, m *flow.Machine) BuildOption {
	return func(b *builder) {
		b.machines[name] = m
	}
}

// WithMachines consults lookup for names not given with WithMachine.
func WithMachines(lookup MachineLookup) BuildOption {
	return func(b *builder) {
		b.lookup = lookup
	}
}

type builder struct {
	reg      *registry.Registry
	machines map[string]*flow.Machine
	lookup   MachineLookup
	errs     []error
}

// Build validates the definition and turns it into a flow tree. Structural
// mistakes such as duplicate ids are left to flow.NewMachine.
func (d *Definition) Build(reg *registry.Registry, opts ...BuildOption) (*flow.Node, error) {
	if reg == nil {
		reg = registry.Default()
	}
	if err := d.Validate(reg); err != nil {
		return nil, err
	}
	b := &builder{reg: reg, machines: make(map[string]*flow.Machine)}
	for _, opt := range opts {
		opt(b)
	}
	root := b.node("root", &d.Root)
	if len(b.errs) > 0 {
		return nil, &AggregateError{Errors: b.errs}
	}
	return root, nil
}

// Options returns the machine options the definition carries.
func (d *Definition) Options() []flow.Option {
	var opts []flow.Option
	if d.Name != "" {
		opts = append(opts, flow.WithName(d.Name))
	}
	if d.Compare == "equal" {
		opts = append(opts, flow.WithComparer(state.Equal))
	}
	return opts
}

// NewMachine builds the definition and compiles it into a machine. opts are
// applied after the definition's own options.
func (d *Definition) NewMachine(reg *registry.Registry, build []BuildOption, opts ...flow.Option) (*flow.Machine, error) {
	root, err := d.Build(reg, build...)
	if err != nil {
		return nil, err
	}
	return flow.NewMachine(root, append(d.Options(), opts...)...)
}

func (b *builder) machine(path, name string) *flow.Machine {
	if m, ok := b.machines[name]; ok {
		return m
	}
	if b.lookup != nil {
		if m, ok := b.lookup(name); ok {
			return m
		}
	}
	b.errs = append(b.errs, &ValidationError{Key: path, Reason: fmt.Sprintf("unknown machine %q", name)})
	return nil
}

// check records a factory error under path. Validate has already built every
// factory once, so this only trips on factories that are not deterministic.
func (b *builder) check(path string, err error) bool {
	if err == nil {
		return true
	}
	b.errs = append(b.errs, &ValidationError{Key: path, Reason: err.Error()})
	return false
}

func (b *builder) node(path string, d *NodeDef) *flow.Node {
	n := flow.New()
	if d == nil {
		return n
	}
	if d.ID != "" {
		n.ID(d.ID)
	}
	b.body(path, n, d)

	if !d.Condition.IsZero() {
		cond, err := b.reg.Condition(d.Condition.Use, d.Condition.With)
		if b.check(path+".condition", err) {
			n.Condition(cond)
		}
	}
	if d.Internal {
		n.Internal()
	}
	if d.Debounce > 0 {
		n.Debounce(d.Debounce)
	}
	switch d.Async {
	case "payload":
		n.AsyncPayload()
	case "meta":
		n.AsyncMeta()
	}

	for _, name := range sortedKeys(d.Define) {
		n.Define(name, b.node(path+".define."+name, d.Define[name]))
	}
	for _, event := range sortedKeys(d.On) {
		child := d.On[event]
		if child != nil && child.Template != "" {
			n.OnTemplate(event, child.Template)
			continue
		}
		n.On(event, b.node(path+".on."+event, child))
	}
	for _, target := range sortedKeys(d.OnPath) {
		children := make(map[string]*flow.Node)
		for event, child := range d.OnPath[target] {
			children[event] = b.node(path+".on_path."+target+"."+event, child)
		}
		n.OnPath(target, children)
	}

	b.edges(path, n, d)

	for i, f := range d.Forward {
		if m := b.machine(fmt.Sprintf("%s.forward.%d", path, i), f.Machine); m != nil {
			n.Forward(m, f.Event, f.Args...)
		}
	}
	for _, name := range d.Uses {
		if m := b.machine(path+".uses", name); m != nil {
			n.Use(name, m)
		}
	}
	return n
}

// body sets the node's value, reducer and projection.
func (b *builder) body(path string, n *flow.Node, d *NodeDef) {
	var p flow.Projection
	switch len(d.Project) {
	case 0:
	case 1:
		p = flow.Key(d.Project[0])
	default:
		p = flow.Keys(d.Project...)
	}

	if d.Reducer.IsZero() {
		switch {
		case d.Value != nil && p.IsZero():
			n.Value(d.Value)
		case d.Value != nil:
			n.ProjectValue(p, d.Value)
		case !p.IsZero():
			n.Project(p, nil)
		}
		return
	}

	reducer, err := b.reg.Reducer(d.Reducer.Use, d.Reducer.With)
	if !b.check(path+".reducer", err) {
		return
	}
	if len(d.Args) > 0 {
		reducer = checkArgs(d.Args, reducer)
	}
	if p.IsZero() {
		n.ReducerWithDefault(reducer, d.Value)
	} else {
		n.ProjectWithDefault(p, reducer, d.Value)
	}
}

func (b *builder) edges(path string, n *flow.Node, d *NodeDef) {
	switch {
	case d.Success != nil:
		n.Success(b.node(path+".success", d.Success))
	case d.SuccessID != "":
		n.SuccessID(d.SuccessID)
	case d.SuccessTemplate != "":
		n.SuccessTemplate(d.SuccessTemplate)
	}
	switch {
	case d.Failure != nil:
		n.Failure(b.node(path+".failure", d.Failure))
	case d.FailureID != "":
		n.FailureID(d.FailureID)
	case d.FailureTemplate != "":
		n.FailureTemplate(d.FailureTemplate)
	}
	switch {
	case d.Next != "":
		n.Next(d.Next)
	case !d.NextFunc.IsZero():
		next, err := b.reg.Next(d.NextFunc.Use, d.NextFunc.With)
		if b.check(path+".next_func", err) {
			n.NextFunc(next)
		}
	}
	switch {
	case d.Transfer != "":
		n.Transfer(d.Transfer)
	case !d.TransferFunc.IsZero():
		transfer, err := b.reg.Next(d.TransferFunc.Use, d.TransferFunc.With)
		if b.check(path+".transfer_func", err) {
			n.TransferFunc(transfer)
		}
	}
}

// checkArgs rejects dispatches whose first argument does not match args
// before reducer runs. The rejection goes through the failure edge like any
// other reducer error.
func checkArgs(args Args, reducer flow.Reducer) flow.Reducer {
	return func(c *flow.Context, in ...any) (flow.Result, error) {
		var payload any
		if len(in) > 0 {
			payload = in[0]
		}
		if err := args.Validate(payload); err != nil {
			return flow.Result{}, err
		}
		return reducer(c, in...)
	}
}
