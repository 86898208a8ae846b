package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/appflow/pkg/flow"
)

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(func(context.Context, string) (*flow.Machine, error) {
		return flow.NewMachine(flow.New())
	})
	ctx := context.Background()
	count := 1000

	// 1. Create and Delete many sessions
	for i := 0; i < count; i++ {
		sid := fmt.Sprintf("session-%d", i)
		_, _ = mgr.LoadOrStart(ctx, sid)
		_ = mgr.Delete(ctx, sid)
	}

	// 2. Count locks and sessions remaining in the maps
	if n := len(mgr.locks); n != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", n)
	}
	if n := len(mgr.sessions); n != 0 {
		t.Errorf("%d sessions remaining after Delete", n)
	}
}
