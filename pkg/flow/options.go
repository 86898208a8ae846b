package flow

import (
	"log/slog"

	"github.com/aretw0/appflow/pkg/state"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Machine.
type Option func(*Machine)

// WithName labels the machine in logs, hooks and spans.
func WithName(name string) Option {
	return func(m *Machine) {
		m.name = name
	}
}

// WithLogger sets a custom structured logger for the machine.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithHooks registers observability hooks. Calling it more than once merges
// the hooks in order.
func WithHooks(hooks Hooks) Option {
	return func(m *Machine) {
		m.hooks = m.hooks.Merge(hooks)
	}
}

// WithComparer replaces state.Identical as the equality deciding whether a
// commit changes the state.
func WithComparer(c state.Comparer) Option {
	return func(m *Machine) {
		if c != nil {
			m.compare = c
		}
	}
}

// WithTracer records dispatches and async settlements as spans.
func WithTracer(t trace.Tracer) Option {
	return func(m *Machine) {
		m.tracer = t
	}
}
