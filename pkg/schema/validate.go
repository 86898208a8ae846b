package schema

import (
	"fmt"
	"reflect"

	"github.com/aretw0/appflow/pkg/registry"
)

// Validate checks the definition for mistakes the flow builder cannot see:
// conflicting fields, unknown async modes and, when reg is not nil, registry
// references that do not resolve. All failures are reported together.
func (d *Definition) Validate(reg *registry.Registry) error {
	v := &validator{reg: reg}
	switch d.Compare {
	case "", "identical", "equal":
	default:
		v.fail("compare", "must be identical or equal", d.Compare)
	}
	if d.Root.Template != "" {
		v.fail("root.template", "the root cannot be a template reference", d.Root.Template)
	}
	v.node("root", &d.Root)

	if len(v.errs) > 0 {
		return &AggregateError{Errors: v.errs}
	}
	return nil
}

type validator struct {
	reg  *registry.Registry
	errs []error
}

func (v *validator) fail(key, reason string, value any) {
	v.errs = append(v.errs, &ValidationError{Key: key, Reason: reason, Value: value})
}

func (v *validator) node(path string, n *NodeDef) {
	if n == nil {
		return
	}
	if n.Template != "" && !reflect.DeepEqual(*n, NodeDef{Template: n.Template}) {
		v.fail(path+".template", "a template reference takes no other fields", nil)
	}

	switch n.Async {
	case "", "payload", "meta":
	default:
		v.fail(path+".async", "must be payload or meta", n.Async)
	}
	if n.Debounce < 0 {
		v.fail(path+".debounce", "must not be negative", n.Debounce.String())
	}
	if len(n.Args) > 0 && n.Reducer.IsZero() {
		v.fail(path+".args", "argument checks need a reducer", nil)
	}
	v.exclusive(path, "success", n.Success != nil, n.SuccessID != "", n.SuccessTemplate != "")
	v.exclusive(path, "failure", n.Failure != nil, n.FailureID != "", n.FailureTemplate != "")
	v.exclusive(path, "next", n.Next != "", !n.NextFunc.IsZero())
	v.exclusive(path, "transfer", n.Transfer != "", !n.TransferFunc.IsZero())

	v.ref(path+".reducer", n.Reducer, func(r *registry.Registry) error {
		_, err := r.Reducer(n.Reducer.Use, n.Reducer.With)
		return err
	})
	v.ref(path+".condition", n.Condition, func(r *registry.Registry) error {
		_, err := r.Condition(n.Condition.Use, n.Condition.With)
		return err
	})
	v.ref(path+".next_func", n.NextFunc, func(r *registry.Registry) error {
		_, err := r.Next(n.NextFunc.Use, n.NextFunc.With)
		return err
	})
	v.ref(path+".transfer_func", n.TransferFunc, func(r *registry.Registry) error {
		_, err := r.Next(n.TransferFunc.Use, n.TransferFunc.With)
		return err
	})

	for i, f := range n.Forward {
		if f.Machine == "" || f.Event == "" {
			v.fail(fmt.Sprintf("%s.forward.%d", path, i), "machine and event are required", nil)
		}
	}

	for _, event := range sortedKeys(n.On) {
		v.node(path+".on."+event, n.On[event])
	}
	for _, target := range sortedKeys(n.OnPath) {
		children := n.OnPath[target]
		for _, event := range sortedKeys(children) {
			v.node(path+".on_path."+target+"."+event, children[event])
		}
	}
	for _, name := range sortedKeys(n.Define) {
		v.node(path+".define."+name, n.Define[name])
	}
	v.node(path+".success", n.Success)
	v.node(path+".failure", n.Failure)
}

func (v *validator) exclusive(path, field string, set ...bool) {
	count := 0
	for _, s := range set {
		if s {
			count++
		}
	}
	if count > 1 {
		v.fail(path+"."+field, "only one form of the edge may be given", nil)
	}
}

func (v *validator) ref(key string, r Ref, check func(*registry.Registry) error) {
	if r.IsZero() {
		if len(r.With) > 0 {
			v.fail(key, "arguments given without a name", nil)
		}
		return
	}
	if v.reg == nil {
		return
	}
	if err := check(v.reg); err != nil {
		v.fail(key, err.Error(), r.Use)
	}
}
