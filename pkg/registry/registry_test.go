package registry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/appflow/pkg/flow"
	"github.com/aretw0/appflow/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_NotFound(t *testing.T) {
	r := registry.NewRegistry()

	_, err := r.Reducer("missing", nil)
	require.ErrorIs(t, err, registry.ErrNotFound)
	_, err = r.Condition("missing", nil)
	require.ErrorIs(t, err, registry.ErrNotFound)
	_, err = r.Next("missing", nil)
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	r := registry.NewRegistry()
	constant := func(v any) registry.ReducerFactory {
		return func(registry.Args) (flow.Reducer, error) {
			return func(*flow.Context, ...any) (flow.Result, error) {
				return flow.Value(v), nil
			}, nil
		}
	}
	r.RegisterReducer("answer", constant(41))
	r.RegisterReducer("answer", constant(42))

	reducer, err := r.Reducer("answer", nil)
	require.NoError(t, err)
	m := flow.MustMachine(flow.New().Reducer(reducer))
	assert.Equal(t, 42, m.GetState())
}

func TestRegistry_Names(t *testing.T) {
	reducers, conditions, nexts := registry.Default().Names()
	assert.Equal(t, []string{"add", "assign", "fail", "mul", "push", "set", "sleep", "toggle", "unset"}, reducers)
	assert.Equal(t, []string{"equals", "even", "falsy", "odd", "truthy"}, conditions)
	assert.Equal(t, []string{"parity"}, nexts)
}

func TestRegistry_RejectsUnknownArgs(t *testing.T) {
	_, err := registry.Default().Reducer("add", registry.Args{"step": 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step")
}

func mustReducer(t *testing.T, r *registry.Registry, name string, args registry.Args) flow.Reducer {
	t.Helper()
	reducer, err := r.Reducer(name, args)
	require.NoError(t, err)
	return reducer
}

func TestBuiltins_Reducers(t *testing.T) {
	ctx := context.Background()
	r := registry.Default()

	tests := []struct {
		name    string
		initial any
		reducer string
		args    registry.Args
		input   []any
		want    any
	}{
		{"set constant", 0, "set", registry.Args{"value": "x"}, nil, "x"},
		{"set from argument", 0, "set", nil, []any{7}, 7},
		{"set at key", map[string]any{"a": 1}, "set", registry.Args{"key": "b", "value": 2}, nil, map[string]any{"a": 1, "b": 2}},
		{"add default", 1, "add", nil, nil, 2},
		{"add json number", 1, "add", registry.Args{"by": 3.0}, nil, 4},
		{"add argument", 1, "add", registry.Args{"by": 3}, []any{10}, 11},
		{"add at key", map[string]any{"n": 1}, "add", registry.Args{"key": "n"}, nil, map[string]any{"n": 2}},
		{"mul", 3, "mul", registry.Args{"by": 2}, nil, 6},
		{"toggle value", false, "toggle", nil, nil, true},
		{"toggle keys", map[string]any{"on": true}, "toggle", registry.Args{"keys": []any{"on"}}, nil, map[string]any{"on": false}},
		{"push", []any{1}, "push", registry.Args{"values": []any{2}}, []any{3}, []any{1, 2, 3}},
		{"assign", map[string]any{"a": 1}, "assign", registry.Args{"values": map[string]any{"b": 2}}, []any{map[string]any{"c": 3}}, map[string]any{"a": 1, "b": 2, "c": 3}},
		{"unset", map[string]any{"a": 1, "b": 2}, "unset", registry.Args{"keys": "a"}, nil, map[string]any{"b": 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := flow.MustMachine(flow.New().Value(tt.initial).On("go",
				flow.New().Reducer(mustReducer(t, r, tt.reducer, tt.args)).Restart(),
			))
			_, err := m.Dispatch(ctx, "go", tt.input...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.GetState())
		})
	}
}

func TestBuiltins_FailFollowsFailureEdge(t *testing.T) {
	ctx := context.Background()
	r := registry.Default()
	m := flow.MustMachine(flow.New().Value("idle").On("go",
		flow.New().Reducer(mustReducer(t, r, "fail", registry.Args{"message": "nope"})).
			Failure(flow.New().Reducer(func(_ *flow.Context, args ...any) (flow.Result, error) {
				return flow.Value(args[0].(error).Error()), nil
			}).Restart()),
	))

	_, err := m.Dispatch(ctx, "go")
	require.NoError(t, err)
	assert.Equal(t, "nope", m.GetState())
}

func TestBuiltins_SleepIsPending(t *testing.T) {
	ctx := context.Background()
	r := registry.Default()
	m := flow.MustMachine(flow.New().Value(nil).On("wait",
		flow.New().Reducer(mustReducer(t, r, "sleep", registry.Args{"duration": "5ms"})).AsyncMeta(),
	))

	f, err := m.Dispatch(ctx, "wait")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, flow.AsyncEnvelope{Loading: true}, m.GetState())

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err = f.Await(ctx)
	require.NoError(t, err)
	meta := m.GetState().(flow.AsyncEnvelope)
	assert.True(t, meta.Done)
}

func TestBuiltins_SleepRequiresDuration(t *testing.T) {
	_, err := registry.Default().Reducer("sleep", nil)
	require.Error(t, err)
}

func TestBuiltins_Conditions(t *testing.T) {
	r := registry.Default()
	tests := []struct {
		name  string
		cond  string
		args  registry.Args
		state any
		want  bool
	}{
		{"truthy", "truthy", registry.Args{"key": "on"}, map[string]any{"on": true}, true},
		{"truthy missing", "truthy", registry.Args{"key": "on"}, map[string]any{}, false},
		{"falsy", "falsy", nil, 0, true},
		{"equals", "equals", registry.Args{"key": "mode", "value": "dark"}, map[string]any{"mode": "dark"}, true},
		{"equals json number", "equals", registry.Args{"value": 2.0}, 2, true},
		{"even", "even", nil, 4, true},
		{"odd", "odd", nil, 4, false},
		{"odd not a number", "odd", nil, "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, err := r.Condition(tt.cond, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cond(&flow.Context{State: tt.state}))
		})
	}
}

func TestBuiltins_ParityNext(t *testing.T) {
	r := registry.Default()

	_, err := r.Next("parity", registry.Args{"even": "#even"})
	require.Error(t, err)

	next, err := r.Next("parity", registry.Args{"key": "count", "even": "#even", "odd": "#odd"})
	require.NoError(t, err)
	assert.Equal(t, "#even", next(map[string]any{"count": 2}))
	assert.Equal(t, "#odd", next(map[string]any{"count": 3}))
}

func TestBuiltins_ArgumentErrors(t *testing.T) {
	ctx := context.Background()
	r := registry.Default()
	m := flow.MustMachine(flow.New().Value(0).On("add",
		flow.New().Reducer(mustReducer(t, r, "add", nil)).Restart(),
	))

	_, err := m.Dispatch(ctx, "add", "not a number")
	var rerr *flow.ReducerError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "add", rerr.Node)
}
