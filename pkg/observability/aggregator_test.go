package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/appflow/pkg/flow"
	"github.com/aretw0/appflow/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func next(t *testing.T, ch <-chan observability.Snapshot) observability.Snapshot {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok, "channel closed")
		return s
	case <-time.After(time.Second):
		t.Fatal("no snapshot")
		return observability.Snapshot{}
	}
}

func TestAggregator_MergesMachines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lamp := flow.MustMachine(flow.New().Value(false).On("toggle", flow.New().Toggle().Restart()), flow.WithName("lamp"))
	door := flow.MustMachine(flow.New().Value("closed").On("open", flow.New().Value("open")), flow.WithName("door"))

	agg := observability.NewAggregator()
	agg.Add(lamp)
	agg.Add(door)
	ch := agg.Watch(ctx)

	// 1. Initial states, in registration order
	assert.Equal(t, observability.Snapshot{Machine: "lamp", State: false}, strip(next(t, ch)))
	assert.Equal(t, observability.Snapshot{Machine: "door", State: "closed"}, strip(next(t, ch)))

	// 2. Changes from either machine
	_, err := door.Dispatch(ctx, "open")
	require.NoError(t, err)
	s := next(t, ch)
	assert.Equal(t, "door", s.Machine)
	assert.Equal(t, "open", s.State)
	assert.Equal(t, "open", s.Node.Path)

	_, err = lamp.Dispatch(ctx, "toggle")
	require.NoError(t, err)
	assert.Equal(t, true, next(t, ch).State)

	// 3. Cancelling closes the stream
	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func strip(s observability.Snapshot) observability.Snapshot {
	return observability.Snapshot{Machine: s.Machine, State: s.State}
}
