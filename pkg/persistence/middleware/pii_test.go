package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/appflow/pkg/persistence"
	"github.com/aretw0/appflow/pkg/persistence/memory"
	"github.com/aretw0/appflow/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPII_Masking(t *testing.T) {
	underlying := memory.NewStore()
	mw, err := middleware.NewPII([]string{"password", "ssn"})
	require.NoError(t, err)
	secure := mw(underlying)
	ctx := context.Background()

	live := map[string]any{
		"username":      "jdoe",
		"user_password": "secret123",
		"details": map[string]any{
			"address":    "123 St",
			"ssn_number": "999-99-9999",
		},
		"history": []any{map[string]any{"password": "old"}},
	}
	require.NoError(t, secure.Save(ctx, persistence.Snapshot{Session: "pii", State: live}))

	// The live state is untouched
	assert.Equal(t, "secret123", live["user_password"])
	assert.Equal(t, "999-99-9999", live["details"].(map[string]any)["ssn_number"])

	stored, err := underlying.Load(ctx, "pii")
	require.NoError(t, err)
	obj := stored.State.(map[string]any)
	assert.Equal(t, "jdoe", obj["username"])
	assert.Equal(t, middleware.Mask, obj["user_password"])
	assert.Equal(t, middleware.Mask, obj["details"].(map[string]any)["ssn_number"])
	assert.Equal(t, "123 St", obj["details"].(map[string]any)["address"])
	assert.Equal(t, middleware.Mask, obj["history"].([]any)[0].(map[string]any)["password"])
}

func TestPII_ScalarStateAndBadPattern(t *testing.T) {
	underlying := memory.NewStore()
	mw, err := middleware.NewPII([]string{"password"})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, mw(underlying).Save(ctx, persistence.Snapshot{Session: "n", State: 42}))
	stored, err := underlying.Load(ctx, "n")
	require.NoError(t, err)
	assert.Equal(t, 42, stored.State)

	_, err = middleware.NewPII([]string{"("})
	assert.Error(t, err)
}

func TestChain_MasksBeforeEncrypting(t *testing.T) {
	underlying := memory.NewStore()
	pii, err := middleware.NewPII([]string{"password"})
	require.NoError(t, err)
	enc, err := middleware.NewEncryption(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	store := middleware.Chain(underlying, pii, enc)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, persistence.Snapshot{Session: "c", State: map[string]any{"password": "x", "n": 1.0}}))
	loaded, err := store.Load(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"password": middleware.Mask, "n": 1.0}, loaded.State)
}
