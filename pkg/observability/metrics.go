package observability

import (
	"context"
	"strconv"

	"github.com/aretw0/appflow/pkg/flow"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors fed by machine hooks.
type Metrics struct {
	Dispatches  *prometheus.CounterVec
	Transitions *prometheus.CounterVec
	Commits     *prometheus.CounterVec
	Drops       *prometheus.CounterVec
	Errors      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appflow_dispatches_total",
				Help: "Total number of accepted dispatches",
			},
			[]string{"machine", "node", "debounced"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appflow_transitions_total",
				Help: "Total number of position changes, by edge",
			},
			[]string{"machine", "edge"},
		),
		Commits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appflow_commits_total",
				Help: "Total number of state changes",
			},
			[]string{"machine"},
		),
		Drops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appflow_drops_total",
				Help: "Total number of dispatches or settlements that had no effect",
			},
			[]string{"machine", "reason"},
		),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appflow_reducer_errors_total",
				Help: "Total number of reducer errors and rejected computations",
			},
			[]string{"machine", "node", "handled"},
		),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Dispatches, m.Transitions, m.Commits, m.Drops, m.Errors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns machine hooks recording into m.
func (m *Metrics) Hooks() flow.Hooks {
	return flow.Hooks{
		OnDispatch: func(_ context.Context, e *flow.DispatchEvent) {
			m.Dispatches.WithLabelValues(e.Machine, nodeLabel(e.Node), strconv.FormatBool(e.Debounced)).Inc()
		},
		OnTransition: func(_ context.Context, e *flow.TransitionEvent) {
			m.Transitions.WithLabelValues(e.Machine, e.Edge).Inc()
		},
		OnCommit: func(_ context.Context, e *flow.CommitEvent) {
			m.Commits.WithLabelValues(e.Machine).Inc()
		},
		OnDrop: func(_ context.Context, e *flow.DropEvent) {
			m.Drops.WithLabelValues(e.Machine, string(e.Reason)).Inc()
		},
		OnError: func(_ context.Context, e *flow.ErrorEvent) {
			m.Errors.WithLabelValues(e.Machine, nodeLabel(e.Node), strconv.FormatBool(e.Handled)).Inc()
		},
	}
}

// nodeLabel prefers the stable id over the path.
func nodeLabel(ref flow.NodeRef) string {
	if ref.ID != "" {
		return "#" + ref.ID
	}
	if ref.Path == "" {
		return "@root"
	}
	return ref.Path
}
