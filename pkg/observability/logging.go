package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/appflow/pkg/flow"
)

// Logging returns hooks writing one record per lifecycle event. Drops and
// commits are logged at debug level.
func Logging(logger *slog.Logger) flow.Hooks {
	return flow.Hooks{
		OnDispatch: func(ctx context.Context, e *flow.DispatchEvent) {
			logger.InfoContext(ctx, "dispatch",
				"machine", e.Machine,
				"event", e.Event,
				"node", e.Node.Path,
				"external", e.External,
				"debounced", e.Debounced,
			)
		},
		OnTransition: func(ctx context.Context, e *flow.TransitionEvent) {
			logger.InfoContext(ctx, "transition",
				"machine", e.Machine,
				"from", e.From.Path,
				"to", e.To.Path,
				"edge", e.Edge,
			)
		},
		OnCommit: func(ctx context.Context, e *flow.CommitEvent) {
			logger.DebugContext(ctx, "commit", "machine", e.Machine, "node", e.Node.Path)
		},
		OnDrop: func(ctx context.Context, e *flow.DropEvent) {
			logger.DebugContext(ctx, "drop",
				"machine", e.Machine,
				"event", e.Event,
				"reason", string(e.Reason),
			)
		},
		OnError: func(ctx context.Context, e *flow.ErrorEvent) {
			logger.WarnContext(ctx, "reducer error",
				"machine", e.Machine,
				"node", e.Node.Path,
				"handled", e.Handled,
				"error", e.Err,
			)
		},
	}
}
