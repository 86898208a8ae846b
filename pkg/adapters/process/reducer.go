package process

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/appflow/pkg/flow"
	"github.com/aretw0/appflow/pkg/registry"
	"github.com/spf13/cast"
)

// Install registers the "exec" reducer on reg. Its "tool" argument must
// name an allowed tool when the flow is built; an optional "timeout" bounds
// each run.
func (r *Runner) Install(reg *registry.Registry) {
	reg.RegisterReducer("exec", r.reducer)
}

func (r *Runner) reducer(args registry.Args) (flow.Reducer, error) {
	name := cast.ToString(args["tool"])
	if name == "" {
		return nil, fmt.Errorf("exec: tool is required")
	}
	if !r.Has(name) {
		return nil, fmt.Errorf("exec: tool %q is not allowed", name)
	}
	for k := range args {
		if k != "tool" && k != "timeout" {
			return nil, fmt.Errorf("exec: unknown argument %q", k)
		}
	}
	var timeout time.Duration
	if raw, ok := args["timeout"]; ok {
		d, err := cast.ToDurationE(raw)
		if err != nil {
			return nil, fmt.Errorf("exec: timeout: %w", err)
		}
		timeout = d
	}

	return func(c *flow.Context, dispatchArgs ...any) (flow.Result, error) {
		var input map[string]any
		if len(dispatchArgs) > 0 {
			input, _ = dispatchArgs[0].(map[string]any)
		}
		current := c.State
		return flow.Async(c.Context(), func(ctx context.Context) (any, error) {
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return r.Run(ctx, name, current, input)
		}), nil
	}, nil
}
