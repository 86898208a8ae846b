package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/appflow/pkg/flow"
	"github.com/aretw0/appflow/pkg/state"
	"github.com/spf13/cast"
)

func registerBuiltins(r *Registry) {
	r.RegisterReducer("set", setReducer)
	r.RegisterReducer("add", arithReducer("add", (*state.State).Add))
	r.RegisterReducer("mul", arithReducer("mul", (*state.State).Mul))
	r.RegisterReducer("toggle", toggleReducer)
	r.RegisterReducer("push", pushReducer)
	r.RegisterReducer("assign", assignReducer)
	r.RegisterReducer("unset", unsetReducer)
	r.RegisterReducer("fail", failReducer)
	r.RegisterReducer("sleep", sleepReducer)

	r.RegisterCondition("truthy", truthyCondition(true))
	r.RegisterCondition("falsy", truthyCondition(false))
	r.RegisterCondition("equals", equalsCondition)
	r.RegisterCondition("even", parityCondition(0))
	r.RegisterCondition("odd", parityCondition(1))

	r.RegisterNext("parity", parityNext)
}

type keyArgs struct {
	Key string `arg:"key"`
}

type keysArgs struct {
	Keys []string `arg:"keys"`
}

// at narrows m to key, or returns m itself for an empty key.
func at(m *state.State, key string) *state.State {
	if key == "" {
		return m
	}
	return m.Prop(key)
}

// number turns integral floats, as decoded from JSON, back into ints so
// integer state stays integer.
func number(v any) any {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int(f)
	}
	return v
}

// setReducer stores its "value" argument, or the first dispatch argument
// when no value is configured.
func setReducer(args Args) (flow.Reducer, error) {
	var a struct {
		Key   string `arg:"key"`
		Value any    `arg:"value"`
	}
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	_, fixed := args["value"]
	return func(c *flow.Context, in ...any) (flow.Result, error) {
		value := a.Value
		if !fixed && len(in) > 0 {
			value = in[0]
		}
		if a.Key == "" {
			return flow.Value(value), nil
		}
		return flow.Mutator(func(m *state.State) (flow.Result, error) {
			m.SetAt(a.Key, value)
			return flow.Value(m.Value()), nil
		}), nil
	}, nil
}

// arithReducer applies op with the "by" argument, defaulting to 1. A
// dispatch argument takes precedence.
func arithReducer(name string, op func(*state.State, any) *state.State) ReducerFactory {
	return func(args Args) (flow.Reducer, error) {
		a := struct {
			Key string `arg:"key"`
			By  any    `arg:"by"`
		}{By: 1}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		if _, err := cast.ToFloat64E(a.By); err != nil {
			return nil, fmt.Errorf("%s: by: %w", name, err)
		}
		by := number(a.By)
		return func(c *flow.Context, in ...any) (flow.Result, error) {
			delta := by
			if len(in) > 0 {
				if _, err := cast.ToFloat64E(in[0]); err != nil {
					return flow.Result{}, fmt.Errorf("%s: argument: %w", name, err)
				}
				delta = number(in[0])
			}
			return flow.Mutator(func(m *state.State) (flow.Result, error) {
				op(at(m, a.Key), delta)
				return flow.Value(m.Value()), nil
			}), nil
		}, nil
	}
}

func toggleReducer(args Args) (flow.Reducer, error) {
	var a keysArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	return func(c *flow.Context, _ ...any) (flow.Result, error) {
		return flow.Mutator(func(m *state.State) (flow.Result, error) {
			m.Toggle(a.Keys...)
			return flow.Value(m.Value()), nil
		}), nil
	}, nil
}

// pushReducer appends its "values" argument followed by the dispatch
// arguments.
func pushReducer(args Args) (flow.Reducer, error) {
	var a struct {
		Key    string `arg:"key"`
		Values []any  `arg:"values"`
	}
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	return func(c *flow.Context, in ...any) (flow.Result, error) {
		values := append(append([]any(nil), a.Values...), in...)
		return flow.Mutator(func(m *state.State) (flow.Result, error) {
			at(m, a.Key).Push(values...)
			return flow.Value(m.Value()), nil
		}), nil
	}, nil
}

// assignReducer merges its "values" argument and then every map dispatch
// argument into the state.
func assignReducer(args Args) (flow.Reducer, error) {
	var a struct {
		Key    string         `arg:"key"`
		Values map[string]any `arg:"values"`
	}
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	return func(c *flow.Context, in ...any) (flow.Result, error) {
		objs := []map[string]any{a.Values}
		for _, arg := range in {
			obj, err := cast.ToStringMapE(arg)
			if err != nil {
				return flow.Result{}, fmt.Errorf("assign: argument: %w", err)
			}
			objs = append(objs, obj)
		}
		return flow.Mutator(func(m *state.State) (flow.Result, error) {
			at(m, a.Key).Assign(objs...)
			return flow.Value(m.Value()), nil
		}), nil
	}, nil
}

func unsetReducer(args Args) (flow.Reducer, error) {
	var a keysArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	if len(a.Keys) == 0 {
		return nil, errors.New("unset: keys is required")
	}
	return func(c *flow.Context, _ ...any) (flow.Result, error) {
		return flow.Mutator(func(m *state.State) (flow.Result, error) {
			m.Unset(a.Keys...)
			return flow.Value(m.Value()), nil
		}), nil
	}, nil
}

// failReducer always errors, for wiring failure edges in definitions.
func failReducer(args Args) (flow.Reducer, error) {
	a := struct {
		Message string `arg:"message"`
	}{Message: "failed"}
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	return func(*flow.Context, ...any) (flow.Result, error) {
		return flow.Result{}, errors.New(a.Message)
	}, nil
}

// sleepReducer settles with the unchanged state after "duration". It gives
// definitions a pending step to exercise async modes with.
func sleepReducer(args Args) (flow.Reducer, error) {
	var a struct {
		Duration string `arg:"duration"`
	}
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	d, err := cast.ToDurationE(a.Duration)
	if err != nil {
		return nil, fmt.Errorf("sleep: duration: %w", err)
	}
	return func(c *flow.Context, _ ...any) (flow.Result, error) {
		current := c.State
		return flow.Async(c.Context(), func(ctx context.Context) (any, error) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
				return current, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}), nil
	}, nil
}

// lookup reads key from the node's projected state.
func lookup(c *flow.Context, key string) any {
	return state.New(c.State).Get(key)
}

func truthyCondition(want bool) ConditionFactory {
	return func(args Args) (flow.Condition, error) {
		var a keyArgs
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return func(c *flow.Context) bool {
			return state.Truthy(lookup(c, a.Key)) == want
		}, nil
	}
}

func equalsCondition(args Args) (flow.Condition, error) {
	var a struct {
		Key   string `arg:"key"`
		Value any    `arg:"value"`
	}
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	want := number(a.Value)
	return func(c *flow.Context) bool {
		return state.Equal(number(lookup(c, a.Key)), want)
	}, nil
}

func parityCondition(rem int64) ConditionFactory {
	return func(args Args) (flow.Condition, error) {
		var a keyArgs
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return func(c *flow.Context) bool {
			n, err := cast.ToInt64E(lookup(c, a.Key))
			return err == nil && n%2 == rem
		}, nil
	}
}

// parityNext picks the "even" or "odd" target from the integer at "key" in
// the settled root state.
func parityNext(args Args) (flow.NextFunc, error) {
	var a struct {
		Key  string `arg:"key"`
		Even string `arg:"even"`
		Odd  string `arg:"odd"`
	}
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	if a.Even == "" || a.Odd == "" {
		return nil, errors.New("parity: even and odd targets are required")
	}
	return func(s any) string {
		n := cast.ToInt64(state.New(s).Get(a.Key))
		if n%2 == 0 {
			return a.Even
		}
		return a.Odd
	}, nil
}
