package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/appflow/pkg/flow"
	"github.com/aretw0/appflow/pkg/persistence"
	"github.com/aretw0/appflow/pkg/persistence/file"
	"github.com/aretw0/appflow/pkg/persistence/storetest"
	"github.com/aretw0/appflow/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Contract(t *testing.T) {
	storetest.StoreContractTest(t, file.New(t.TempDir()))
}

func TestStore_OverwriteAndMissingDir(t *testing.T) {
	ctx := context.Background()
	store := file.New(filepath.Join(t.TempDir(), "sessions"))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "a missing directory lists nothing")

	snap := persistence.Snapshot{
		Session: "s1",
		Machine: "counter",
		Node:    flow.NodeRef{Index: 1, Path: "increment"},
		State:   map[string]any{"count": 2.0},
	}
	require.NoError(t, store.Save(ctx, snap))
	snap.State = map[string]any{"count": 3.0}
	require.NoError(t, store.Save(ctx, snap))

	// One file, no temp leftovers
	entries, err := os.ReadDir(store.BasePath)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": 3.0}, loaded.State)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Load(ctx, "s1")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestStore_RejectsUnsafeIDs(t *testing.T) {
	ctx := context.Background()
	store := file.New(t.TempDir())

	for _, id := range []string{"", "..", "a/b", `a\b`} {
		err := store.Save(ctx, persistence.Snapshot{Session: id})
		assert.Error(t, err, "id %q", id)
	}
}
