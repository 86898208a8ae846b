package schema_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/appflow/pkg/flow"
	"github.com/aretw0/appflow/pkg/registry"
	"github.com/aretw0/appflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const counterYAML = `
name: counter
root:
  value: 0
  on:
    increase:
      reducer: add
      next: "@root"
    decrease:
      reducer: {use: add, with: {by: -1}}
      next: "@root"
`

func mustMachine(t *testing.T, def *schema.Definition, build ...schema.BuildOption) *flow.Machine {
	t.Helper()
	m, err := def.NewMachine(registry.Default(), build)
	require.NoError(t, err)
	return m
}

func TestParse_CounterYAML(t *testing.T) {
	ctx := context.Background()
	def, err := schema.Parse([]byte(counterYAML), schema.FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "counter", def.Name)
	assert.Equal(t, schema.Ref{Use: "add"}, def.Root.On["increase"].Reducer)

	m := mustMachine(t, def)
	assert.Equal(t, "counter", m.Name())
	assert.Equal(t, 0, m.GetState())

	_, err = m.Dispatch(ctx, "increase")
	require.NoError(t, err)
	_, err = m.Dispatch(ctx, "increase")
	require.NoError(t, err)
	_, err = m.Dispatch(ctx, "decrease")
	require.NoError(t, err)
	assert.Equal(t, 1, m.GetState())
}

func TestParse_CounterJSON(t *testing.T) {
	ctx := context.Background()
	def, err := schema.Parse([]byte(`{
		"name": "counter",
		"compare": "equal",
		"root": {
			"value": 0,
			"on": {"increase": {"reducer": {"use": "add", "with": {"by": 2}}, "next": "@root"}}
		}
	}`), schema.FormatJSON)
	require.NoError(t, err)

	m := mustMachine(t, def)
	_, err = m.Dispatch(ctx, "increase")
	require.NoError(t, err)
	assert.Equal(t, 2, m.GetState())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		format schema.Format
		doc    string
	}{
		{"bad yaml", schema.FormatYAML, "root: [unclosed"},
		{"bad json", schema.FormatJSON, "{"},
		{"empty", schema.FormatYAML, ""},
		{"unknown key", schema.FormatYAML, "root: {vaule: 1}"},
		{"bad duration", schema.FormatYAML, "root: {debounce: soon}"},
		{"bad arg type", schema.FormatYAML, "root: {reducer: set, args: {n: number}}"},
		{"unsupported format", schema.Format("toml"), "root = 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.Parse([]byte(tt.doc), tt.format)
			require.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counter.yml")
	require.NoError(t, os.WriteFile(path, []byte(counterYAML), 0o644))

	def, err := schema.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "counter", def.Name)

	_, err = schema.Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	assert.Equal(t, schema.FormatJSON, schema.FormatOf("flow.JSON"))
	assert.Equal(t, schema.FormatYAML, schema.FormatOf("flow.yaml"))
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	def, err := schema.Parse([]byte(`
compare: deep
root:
  template: nope
  on:
    a:
      reducer: missing
      async: later
    b:
      next: "@root"
      next_func: parity
      success_id: x
      success: {value: 1}
    c:
      args: {n: int}
    d:
      condition: {with: {key: n}}
      forward: [{event: ping}]
    e:
      template: shared
      value: 1
`), schema.FormatYAML)
	require.NoError(t, err)

	err = def.Validate(registry.Default())
	require.Error(t, err)

	var keys []string
	for _, e := range schema.ValidationErrors(err) {
		keys = append(keys, e.(*schema.ValidationError).Key)
	}
	assert.ElementsMatch(t, []string{
		"compare",
		"root.template",
		"root.template",
		"root.on.a.async",
		"root.on.a.reducer",
		"root.on.b.success",
		"root.on.b.next",
		"root.on.b.next_func",
		"root.on.c.args",
		"root.on.d.condition",
		"root.on.d.forward.0",
		"root.on.e.template",
	}, keys)
}

func TestBuild_ReportsFactoryErrors(t *testing.T) {
	reg := registry.Default()
	builds := 0
	reg.RegisterReducer("once", func(registry.Args) (flow.Reducer, error) {
		builds++
		if builds > 1 {
			return nil, errors.New("exhausted")
		}
		return func(*flow.Context, ...any) (flow.Result, error) {
			return flow.Value(1), nil
		}, nil
	})
	def, err := schema.Parse([]byte(`
root:
  on:
    a:
      reducer: once
`), schema.FormatYAML)
	require.NoError(t, err)

	_, err = def.Build(reg)
	require.Error(t, err)
	errs := schema.ValidationErrors(err)
	require.Len(t, errs, 1)
	assert.Equal(t, "root.on.a.reducer", errs[0].(*schema.ValidationError).Key)
	assert.Contains(t, err.Error(), "exhausted")
}

func TestBuild_ArgsRejectBadPayloads(t *testing.T) {
	ctx := context.Background()
	def, err := schema.Parse([]byte(`
root:
  value: []
  on:
    add:
      reducer: push
      args: {title: string, done: "bool?"}
      next: "@root"
      failure:
        id: rejected
        value: rejected
`), schema.FormatYAML)
	require.NoError(t, err)
	m := mustMachine(t, def)

	_, err = m.Dispatch(ctx, "add", map[string]any{"title": "write tests"})
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"title": "write tests"}}, m.GetState())

	_, err = m.Dispatch(ctx, "add", map[string]any{"title": 1, "extra": true})
	require.NoError(t, err)
	assert.Equal(t, "rejected", m.GetState())
	assert.Equal(t, "rejected", m.Current().ID)
}

func TestBuild_EdgesTemplatesAndPaths(t *testing.T) {
	ctx := context.Background()
	def, err := schema.Parse([]byte(`
name: parity
root:
  value: {count: 0}
  define:
    done:
      project: [label]
      value: done
      next: "@root"
  on:
    bump:
      id: bump
      project: count
      reducer: add
      next_func: {use: parity, with: {key: count, even: "#even", odd: "#odd"}}
    even:
      id: even
      project: label
      value: even
    odd:
      id: odd
      project: label
      value: odd
    finish:
      template: done
  on_path:
    "#even":
      again:
        transfer: "#bump"
`), schema.FormatYAML)
	require.NoError(t, err)
	m := mustMachine(t, def)

	_, err = m.Dispatch(ctx, "bump")
	require.NoError(t, err)
	assert.Equal(t, "odd", m.Current().ID)
	assert.Equal(t, map[string]any{"count": 1}, m.GetState(), "jumping does not evaluate the target")

	_, err = m.Dispatch(ctx, "#bump")
	require.NoError(t, err)
	assert.Equal(t, "even", m.Current().ID)

	_, err = m.Dispatch(ctx, "again")
	require.NoError(t, err)
	assert.Equal(t, "odd", m.Current().ID)
	assert.Equal(t, 3, m.GetState().(map[string]any)["count"])
}

func TestBuild_ForwardAndUses(t *testing.T) {
	ctx := context.Background()
	audit := flow.MustMachine(flow.New().Value(0).On("record",
		flow.New().Reducer(func(c *flow.Context, _ ...any) (flow.Result, error) {
			return flow.Value(c.State.(int) + 1), nil
		}).Internal().Restart(),
	))

	def, err := schema.Parse([]byte(`
root:
  value: 0
  on:
    go:
      reducer: {use: set, with: {value: 1}}
      uses: [audit]
      forward:
        - {machine: audit, event: record}
      next: "@root"
`), schema.FormatYAML)
	require.NoError(t, err)

	_, err = def.Build(registry.Default())
	require.Error(t, err, "audit is not known to the builder")

	m := mustMachine(t, def, schema.WithMachines(func(name string) (*flow.Machine, bool) {
		return audit, name == "audit"
	}))
	_, err = m.Dispatch(ctx, "go")
	require.NoError(t, err)
	assert.Equal(t, 1, audit.GetState())
}

func TestBuild_DebounceAndAsync(t *testing.T) {
	ctx := context.Background()
	def, err := schema.Parse([]byte(`
root:
  value: ""
  on:
    search:
      reducer: set
      debounce: 20ms
      next: "@root"
    load:
      reducer: {use: sleep, with: {duration: 1ms}}
      async: meta
`), schema.FormatYAML)
	require.NoError(t, err)
	m := mustMachine(t, def)

	for _, q := range []string{"a", "ab", "abc"} {
		f, err := m.Dispatch(ctx, "search", q)
		require.NoError(t, err)
		assert.Nil(t, f)
	}
	require.Eventually(t, func() bool { return m.GetState() == "abc" }, time.Second, 5*time.Millisecond)

	f, err := m.Dispatch(ctx, "load")
	require.NoError(t, err)
	_, err = f.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, flow.AsyncEnvelope{Done: true, Payload: "abc"}, m.GetState())
}
