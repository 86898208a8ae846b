package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/aretw0/appflow/pkg/flow"
	"github.com/aretw0/appflow/pkg/persistence"
	"github.com/aretw0/appflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const counterFlow = "../../examples/counter.yaml"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", counterFlow)
	require.NoError(t, err)
	assert.Contains(t, out, "Flow is valid!")

	_, err = execute(t, "validate", "../../examples/missing.yaml")
	assert.ErrorContains(t, err, "validation failed")
}

func TestGraphCommand(t *testing.T) {
	out, err := execute(t, "graph", counterFlow)
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, `"increment"`)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "appflow version")
}

func TestSessionCommands(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	require.NoError(t, store.Save(context.Background(), persistence.Snapshot{
		Session: "s1",
		Machine: "counter",
		Node:    flow.NodeRef{Path: "increment"},
		State:   3,
	}))

	out, err := execute(t, "session", "ls", "--store", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "- s1")

	out, err = execute(t, "session", "inspect", "s1", "--store", dir)
	require.NoError(t, err)
	assert.Contains(t, out, `"machine": "counter"`)

	out, err = execute(t, "session", "rm", "s1", "--store", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed session 's1'")

	out, err = execute(t, "session", "ls", "--store", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No active sessions found.")
}
