package flow_test

import (
	"context"
	"testing"

	"github.com/aretw0/appflow/pkg/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForward_DispatchesOnOtherMachines(t *testing.T) {
	ctx := context.Background()
	audit, err := flow.NewMachine(flow.New().Value([]any{}).On("record",
		flow.New().Internal().Reducer(func(c *flow.Context, args ...any) (flow.Result, error) {
			c.Mutate().Push(args...)
			return flow.Result{}, nil
		}).Restart(),
	), flow.WithName("audit"))
	require.NoError(t, err)

	m, err := flow.NewMachine(flow.New().Value(0).On("increase",
		flow.New().Reducer(increment).Forward(audit, "record", "increase").Restart(),
	))
	require.NoError(t, err)

	for range 2 {
		_, err = m.Dispatch(ctx, "increase")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, m.GetState())
	// Forwarded dispatches are internal, so internal nodes accept them.
	assert.Equal(t, []any{"increase", "increase"}, audit.GetState())

	info := m.Inspect()
	assert.Equal(t, []string{"audit:record"}, info[1].Forwards)
}

func TestForward_FutureWaitsForPendingTargets(t *testing.T) {
	ctx := context.Background()
	pending := flow.NewFuture()
	target, err := flow.NewMachine(flow.New().On("load",
		flow.New().Reducer(pendingReducer(pending)).Restart(),
	))
	require.NoError(t, err)

	m, err := flow.NewMachine(flow.New().Value(0).On("go",
		flow.New().Value(1).Forward(target, "load"),
	))
	require.NoError(t, err)

	f, err := m.Dispatch(ctx, "go")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.False(t, f.Settled())

	pending.Resolve("loaded")
	_, err = f.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "loaded", target.GetState())
}
