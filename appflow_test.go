package appflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/appflow"
	"github.com/aretw0/appflow/pkg/flow"
	"github.com/aretw0/appflow/pkg/registry"
	"github.com/aretw0/appflow/pkg/schema"
	"github.com/aretw0/appflow/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dispatch(t *testing.T, m *flow.Machine, event string, args ...any) {
	t.Helper()
	f, err := m.Dispatch(context.Background(), event, args...)
	require.NoError(t, err)
	_, err = f.Await(context.Background())
	require.NoError(t, err)
}

func TestLoad_Counter(t *testing.T) {
	f, err := appflow.Load("examples/counter.yaml")
	require.NoError(t, err)
	assert.Equal(t, "counter", f.Name())

	m, err := f.NewMachine()
	require.NoError(t, err)
	dispatch(t, m, "increment")
	dispatch(t, m, "plus")
	dispatch(t, m, "double")
	dispatch(t, m, "decrement")
	assert.Equal(t, 3, m.GetState())
	assert.Equal(t, []string{"decrement", "double", "increment", "plus"}, m.Actions())
}

func TestLoad_Signup(t *testing.T) {
	f, err := appflow.Load("examples/signup.yaml")
	require.NoError(t, err)
	m, err := f.NewMachine()
	require.NoError(t, err)

	// Submitting without an email is gated
	dispatch(t, m, "submit")
	assert.Equal(t, 0, m.GetState().(map[string]any)["submitted"])

	dispatch(t, m, "profile", map[string]any{"email": "ada@example.com", "age": "old"})
	assert.Equal(t, "invalid profile", m.GetState().(map[string]any)["result"])

	dispatch(t, m, "profile", map[string]any{"email": "ada@example.com", "age": 36})
	got := m.GetState().(map[string]any)
	assert.Equal(t, "ada@example.com", got["email"])
	assert.Equal(t, 36, got["age"])

	dispatch(t, m, "submit")
	got = m.GetState().(map[string]any)
	assert.Equal(t, 1, got["submitted"])
	assert.Equal(t, flow.AsyncEnvelope{Done: true, Payload: "invalid profile"}, got["result"])
}

func TestLoad_Errors(t *testing.T) {
	_, err := appflow.Load("examples/missing.yaml")
	assert.Error(t, err)

	def, err := schema.Parse([]byte("root: {on: {a: {reducer: nope}}}"), schema.FormatYAML)
	require.NoError(t, err)
	_, err = appflow.New(def)
	assert.ErrorContains(t, err, "root.on.a.reducer")
}

func TestFlow_CustomRegistry(t *testing.T) {
	reg := registry.Default()
	reg.RegisterReducer("stamp", func(registry.Args) (flow.Reducer, error) {
		return func(*flow.Context, ...any) (flow.Result, error) {
			return flow.Value("stamped"), nil
		}, nil
	})
	def, err := schema.Parse([]byte("root: {on: {go: {reducer: stamp}}}"), schema.FormatYAML)
	require.NoError(t, err)

	f, err := appflow.New(def, appflow.WithRegistry(reg), appflow.WithMachineOptions(flow.WithName("custom")))
	require.NoError(t, err)
	m, err := f.NewMachine()
	require.NoError(t, err)
	assert.Equal(t, "custom", m.Name())
	dispatch(t, m, "go")
	assert.Equal(t, "stamped", m.GetState())
}

func TestFlow_FactoryBuildsIndependentSessions(t *testing.T) {
	f, err := appflow.Load("examples/counter.yaml")
	require.NoError(t, err)
	sessions := session.NewManager(f.Factory())
	ctx := context.Background()

	_, err = sessions.LoadOrStart(ctx, "a")
	require.NoError(t, err)
	b, err := sessions.LoadOrStart(ctx, "b")
	require.NoError(t, err)

	_, err = sessions.Dispatch(ctx, "a", "increment")
	require.NoError(t, err)
	assert.Equal(t, 0, b.Machine.GetState())
}

func TestTransfer(t *testing.T) {
	calls := 0
	m := flow.MustMachine(flow.New().Value(0).OnAll(map[string]*flow.Node{
		"increase": flow.New().ID("increase").Reducer(func(c *flow.Context, _ ...any) (flow.Result, error) {
			calls++
			return flow.Value(c.State.(int) + 1), nil
		}).Restart(),
		"plus": appflow.Transfer("#increase"),
	}))
	dispatch(t, m, "plus")
	dispatch(t, m, "increase")
	assert.Equal(t, 2, m.GetState())
	assert.Equal(t, 2, calls)
}

func TestSignup_EmailIsDebounced(t *testing.T) {
	f, err := appflow.Load("examples/signup.yaml")
	require.NoError(t, err)
	m, err := f.NewMachine()
	require.NoError(t, err)

	dispatch(t, m, "email", "a")
	dispatch(t, m, "email", "ad")
	dispatch(t, m, "email", "ada@example.com")
	assert.Equal(t, "", m.GetState().(map[string]any)["email"])

	require.Eventually(t, func() bool {
		return m.GetState().(map[string]any)["email"] == "ada@example.com"
	}, 2*time.Second, 10*time.Millisecond)
}
