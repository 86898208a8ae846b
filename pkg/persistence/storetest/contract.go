// Package storetest holds the behavior every persistence.Store must share.
package storetest

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/aretw0/appflow/pkg/flow"
	"github.com/aretw0/appflow/pkg/persistence"
	"github.com/aretw0/appflow/pkg/session"
)

// StoreContractTest verifies that store complies with persistence.Store.
// The store must start empty.
func StoreContractTest(t *testing.T, store persistence.Store) {
	t.Helper()
	ctx := context.Background()
	snap := persistence.Snapshot{
		Session: "contract",
		Machine: "counter",
		Node:    flow.NodeRef{Index: 2, ID: "done", Path: "finish"},
		State:   "ready",
		Time:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	// 1. Test Load (NotFound)
	t.Run("Load_NotFound", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-session")
		if !errors.Is(err, session.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
	})

	// 2. Test Save then Load
	t.Run("Save_Load", func(t *testing.T) {
		if err := store.Save(ctx, snap); err != nil {
			t.Fatalf("unexpected error saving: %v", err)
		}
		got, err := store.Load(ctx, snap.Session)
		if err != nil {
			t.Fatalf("unexpected error loading: %v", err)
		}
		if got.Machine != snap.Machine || got.Node != snap.Node || got.State != snap.State {
			t.Errorf("snapshot mismatch. got %+v, want %+v", *got, snap)
		}
		if !got.Time.Equal(snap.Time) {
			t.Errorf("time mismatch. got %v, want %v", got.Time, snap.Time)
		}
	})

	// 3. Test List
	t.Run("List", func(t *testing.T) {
		ids, err := store.List(ctx)
		if err != nil {
			t.Fatalf("unexpected error listing: %v", err)
		}
		if !slices.Contains(ids, snap.Session) {
			t.Errorf("session %s missing from list %v", snap.Session, ids)
		}
	})

	// 4. Test Delete
	t.Run("Delete", func(t *testing.T) {
		if err := store.Delete(ctx, snap.Session); err != nil {
			t.Fatalf("unexpected error deleting: %v", err)
		}
		if _, err := store.Load(ctx, snap.Session); !errors.Is(err, session.ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound after delete, got %v", err)
		}
		if err := store.Delete(ctx, snap.Session); err != nil {
			t.Errorf("deleting a missing session should succeed, got %v", err)
		}
	})
}
