package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/appflow/pkg/flow"
	"github.com/aretw0/appflow/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func increment(c *flow.Context, args ...any) (flow.Result, error) {
	n, _ := c.State.(int)
	by := 1
	if len(args) > 0 {
		if v, ok := args[0].(int); ok {
			by = v
		}
	}
	return flow.Value(n + by), nil
}

func counterFactory(release *flow.Future) session.Factory {
	return func(context.Context, string) (*flow.Machine, error) {
		return flow.NewMachine(flow.New().Value(map[string]any{"count": 0}).OnAll(map[string]*flow.Node{
			"inc": flow.New().Project(flow.Key("count"), increment).Restart(),
			"boom": flow.New().Reducer(func(*flow.Context, ...any) (flow.Result, error) {
				return flow.Result{}, errors.New("boom")
			}).Restart(),
			"slow": flow.New().Project(flow.Key("count"), func(*flow.Context, ...any) (flow.Result, error) {
				return flow.Pending(release), nil
			}).Restart(),
		}))
	}
}

func newTestServer(t *testing.T, opts ...Option) (*Server, http.Handler) {
	t.Helper()
	s := NewServer(session.NewManager(counterFactory(flow.Resolved(42))), opts...)
	return s, s.Routes()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, &buf))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCORS_Preflight(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodOptions, "/sessions", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSessionLifecycle(t *testing.T) {
	_, h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	started := decode[StateView](t, w)
	require.NotEmpty(t, started.Session)
	assert.Equal(t, []string{"boom", "inc", "slow"}, started.Actions)
	base := "/sessions/" + started.Session

	w = do(t, h, http.MethodPost, base+"/dispatch", DispatchRequest{Event: "inc", Args: []any{5}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, map[string]any{"count": float64(5)}, decode[StateView](t, w).State)

	w = do(t, h, http.MethodGet, base+"/can/inc", nil)
	assert.JSONEq(t, `{"event":"inc","can":true}`, w.Body.String())
	w = do(t, h, http.MethodGet, base+"/can/nope", nil)
	assert.JSONEq(t, `{"event":"nope","can":false}`, w.Body.String())

	w = do(t, h, http.MethodGet, base+"/actions", nil)
	assert.JSONEq(t, `{"actions":["boom","inc","slow"]}`, w.Body.String())

	w = do(t, h, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"count": float64(0)}, decode[StateView](t, w).State)

	w = do(t, h, http.MethodGet, "/sessions", nil)
	assert.Equal(t, []string{started.Session}, decode[map[string][]string](t, w)["sessions"])

	w = do(t, h, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, http.MethodGet, base+"/state", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoadOrStartSession(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodPut, "/sessions/fixed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fixed", decode[StateView](t, w).Session)

	do(t, h, http.MethodPost, "/sessions/fixed/dispatch", DispatchRequest{Event: "inc"})
	w = do(t, h, http.MethodPut, "/sessions/fixed", nil)
	assert.Equal(t, map[string]any{"count": float64(1)}, decode[StateView](t, w).State)
}

func TestDispatch_Errors(t *testing.T) {
	_, h := newTestServer(t)
	do(t, h, http.MethodPut, "/sessions/s1", nil)

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"unknown session", "/sessions/missing/dispatch", DispatchRequest{Event: "inc"}, http.StatusNotFound},
		{"missing event", "/sessions/s1/dispatch", DispatchRequest{}, http.StatusBadRequest},
		{"invalid body", "/sessions/s1/dispatch", "not an object", http.StatusBadRequest},
		{"reducer error", "/sessions/s1/dispatch", DispatchRequest{Event: "boom"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestDispatch_UnknownEventIsIgnored(t *testing.T) {
	_, h := newTestServer(t)
	do(t, h, http.MethodPut, "/sessions/s1", nil)
	w := do(t, h, http.MethodPost, "/sessions/s1/dispatch", DispatchRequest{Event: "nope"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"count": float64(0)}, decode[StateView](t, w).State)
}

func TestDispatch_Pending(t *testing.T) {
	release := flow.NewFuture()
	h := NewHandler(session.NewManager(counterFactory(release)))
	do(t, h, http.MethodPut, "/sessions/s1", nil)

	w := do(t, h, http.MethodPost, "/sessions/s1/dispatch", DispatchRequest{Event: "slow"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[StateView](t, w).Pending)

	release.Resolve(7)
	require.Eventually(t, func() bool {
		state := decode[StateView](t, do(t, h, http.MethodGet, "/sessions/s1/state", nil)).State
		return assert.ObjectsAreEqual(map[string]any{"count": float64(7)}, state)
	}, time.Second, 10*time.Millisecond)
}

func TestDispatch_Await(t *testing.T) {
	release := flow.NewFuture()
	h := NewHandler(session.NewManager(counterFactory(release)))
	do(t, h, http.MethodPut, "/sessions/s1", nil)

	time.AfterFunc(20*time.Millisecond, func() { release.Resolve(7) })
	w := do(t, h, http.MethodPost, "/sessions/s1/dispatch", DispatchRequest{Event: "slow", Await: true})
	require.Equal(t, http.StatusOK, w.Code)
	out := decode[StateView](t, w)
	assert.False(t, out.Pending)
	assert.Equal(t, map[string]any{"count": float64(7)}, out.State)
}

func TestGetGraph(t *testing.T) {
	_, h := newTestServer(t)
	do(t, h, http.MethodPut, "/sessions/s1", nil)

	w := do(t, h, http.MethodGet, "/sessions/s1/graph", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]flow.NodeInfo](t, w), 4)

	w = do(t, h, http.MethodGet, "/sessions/s1/graph?format=mermaid", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "graph TD\n"))
	assert.Contains(t, w.Body.String(), "class n0 current;")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	hits := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_hits_total"})
	reg.MustRegister(hits)
	hits.Inc()

	_, h := newTestServer(t, WithMetrics(reg))
	w := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_hits_total 1")

	_, bare := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, do(t, bare, http.MethodGet, "/metrics", nil).Code)
}

func TestSubscribeEvents(t *testing.T) {
	s, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	sess, err := s.Sessions.LoadOrStart(context.Background(), "s1")
	require.NoError(t, err)
	// Evaluate the root now so its first commit is not streamed.
	assert.Equal(t, map[string]any{"count": 0}, sess.Machine.GetState())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sessions/s1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())
	require.True(t, lines.Scan())
	assert.Equal(t, "data: connected", lines.Text())
	assert.Equal(t, 1, s.Streams.Listeners("s1"))

	_, err = s.Sessions.Dispatch(context.Background(), "s1", "inc")
	require.NoError(t, err)

	var data string
	for lines.Scan() {
		if strings.HasPrefix(lines.Text(), "data: ") {
			data = strings.TrimPrefix(lines.Text(), "data: ")
			break
		}
	}
	var event Event
	require.NoError(t, json.Unmarshal([]byte(data), &event))
	assert.Equal(t, "s1", event.Session)
	assert.Equal(t, map[string]any{"count": float64(1)}, event.State)

	cancel()
	require.Eventually(t, func() bool { return s.Streams.Listeners("s1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestSubscribeEvents_UnknownSession(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodGet, "/sessions/missing/events", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
