// Package process runs allow-listed local commands as reducers.
//
// A command receives the node's projected state as JSON in APPFLOW_STATE and
// each key of a map dispatch argument as APPFLOW_ARG_<KEY>. Its stdout,
// parsed as JSON when it looks like an object or array, is the value the
// pending computation settles with.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/appflow/internal/logging"
)

// DefaultGracePeriod is how long a cancelled command may take to exit after
// the interrupt signal before it is killed.
const DefaultGracePeriod = 3 * time.Second

// Runner executes local processes from an allow-list.
type Runner struct {
	tools   map[string]ToolConfig
	baseDir string
	grace   time.Duration
	logger  *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithTools populates the allow-list from a loaded config.
func WithTools(tools map[string]ToolConfig) RunnerOption {
	return func(r *Runner) {
		for name, tool := range tools {
			tool.Name = name
			r.tools[name] = tool
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithGracePeriod overrides DefaultGracePeriod.
func WithGracePeriod(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.grace = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a new process runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		tools:  make(map[string]ToolConfig),
		grace:  DefaultGracePeriod,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name string, command string, args ...string) {
	r.tools[name] = ToolConfig{Name: name, Command: command, Args: args}
}

// Tools returns the allowed tool names in sorted order.
func (r *Runner) Tools() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Has reports whether name is allowed.
func (r *Runner) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Run executes tool. Inputs are passed as environment variables, never as
// command-line arguments.
func (r *Runner) Run(ctx context.Context, name string, state any, input map[string]any) (any, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("process tool not registered: %s", name)
	}

	cmd := exec.CommandContext(ctx, tool.Command, tool.Args...)
	cmd.Dir = r.baseDir
	// Interrupt first; WaitDelay kills the process if it ignores the signal.
	cmd.Cancel = func() error {
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = r.grace

	env, err := environ(tool, state, input)
	if err != nil {
		return nil, err
	}
	cmd.Env = append(cmd.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	r.logger.DebugContext(ctx, "process finished", "tool", name, "duration", time.Since(start), "error", err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return nil, fmt.Errorf("%s: execution failed: %w. Stderr: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return parseOutput(stdout.String()), nil
}

func environ(tool ToolConfig, state any, input map[string]any) ([]string, error) {
	env := make([]string, 0, len(tool.Environment)+len(input)+1)
	for k, v := range tool.Environment {
		env = append(env, k+"="+v)
	}

	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	env = append(env, "APPFLOW_STATE="+string(encoded))

	for k, v := range input {
		var val string
		switch v.(type) {
		case string, int, int64, float64, bool:
			val = fmt.Sprint(v)
		case nil:
			val = ""
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("failed to encode argument %q: %w", k, err)
			}
			val = string(data)
		}
		env = append(env, fmt.Sprintf("APPFLOW_ARG_%s=%s", strings.ToUpper(k), val))
	}
	return env, nil
}

// parseOutput decodes JSON objects and arrays and returns anything else as
// trimmed text.
func parseOutput(output string) any {
	trimmed := strings.TrimSpace(output)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return trimmed
}
