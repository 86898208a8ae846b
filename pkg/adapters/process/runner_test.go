package process_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/aretw0/appflow/pkg/adapters/process"
	"github.com/aretw0/appflow/pkg/flow"
	"github.com/aretw0/appflow/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests use sh")
	}
}

func TestRunner_RunParsesOutput(t *testing.T) {
	skipWithoutShell(t)
	r := process.NewRunner()
	r.Register("json", "sh", "-c", `echo "{\"greeting\": \"hi $APPFLOW_ARG_NAME\", \"state\": $APPFLOW_STATE}"`)
	r.Register("text", "sh", "-c", "echo '  plain  '")

	out, err := r.Run(context.Background(), "json", 3, map[string]any{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"greeting": "hi ada", "state": 3.0}, out)

	out, err = r.Run(context.Background(), "text", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", out)
}

func TestRunner_Errors(t *testing.T) {
	skipWithoutShell(t)
	r := process.NewRunner()
	r.Register("fail", "sh", "-c", "echo oops >&2; exit 3")

	_, err := r.Run(context.Background(), "missing", nil, nil)
	assert.ErrorContains(t, err, "not registered")

	_, err = r.Run(context.Background(), "fail", nil, nil)
	assert.ErrorContains(t, err, "oops")
}

func TestRunner_CancelInterruptsThenKills(t *testing.T) {
	skipWithoutShell(t)
	r := process.NewRunner(process.WithGracePeriod(200 * time.Millisecond))
	r.Register("stubborn", "sh", "-c", "trap '' INT; sleep 5")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Run(ctx, "stubborn", nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestLoadTools(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tools:
  - name: hello
    command: echo
    args: [hello]
    env: {LANG: C}
`), 0o644))

	tools, err := process.LoadTools(path)
	require.NoError(t, err)
	require.Contains(t, tools, "hello")
	assert.Equal(t, []string{"hello"}, tools["hello"].Args)

	tools, err = process.LoadTools(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, tools)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"tools": [{"name": "x"}]}`), 0o644))
	_, err = process.LoadTools(bad)
	assert.ErrorContains(t, err, "command")
}

func TestExecReducer(t *testing.T) {
	skipWithoutShell(t)
	r := process.NewRunner(process.WithTools(map[string]process.ToolConfig{
		"double": {Command: "sh", Args: []string{"-c", `echo "[$APPFLOW_ARG_N, $APPFLOW_ARG_N]"`}},
	}))
	reg := registry.Default()
	r.Install(reg)

	_, err := reg.Reducer("exec", registry.Args{"tool": "rm"})
	assert.ErrorContains(t, err, "not allowed")
	_, err = reg.Reducer("exec", registry.Args{"tool": "double", "shell": true})
	assert.ErrorContains(t, err, "unknown argument")

	reducer, err := reg.Reducer("exec", registry.Args{"tool": "double", "timeout": "5s"})
	require.NoError(t, err)
	m, err := flow.NewMachine(flow.New().Value(nil).On("run", flow.New().Reducer(reducer).Restart()))
	require.NoError(t, err)

	ctx := context.Background()
	f, err := m.Dispatch(ctx, "run", map[string]any{"n": 2})
	require.NoError(t, err)
	require.NotNil(t, f)
	_, err = f.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{2.0, 2.0}, m.GetState())
}
