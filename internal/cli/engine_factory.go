package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aretw0/appflow"
	"github.com/aretw0/appflow/pkg/adapters/process"
	"github.com/aretw0/appflow/pkg/adapters/redis"
	"github.com/aretw0/appflow/pkg/flow"
	"github.com/aretw0/appflow/pkg/observability"
	"github.com/aretw0/appflow/pkg/persistence"
	"github.com/aretw0/appflow/pkg/registry"
	"github.com/aretw0/appflow/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
)

// Config is the runtime configuration shared by every command.
type Config struct {
	FlowPath  string
	RedisAddr string
	// StoreDir keeps a JSON snapshot per session when RedisAddr is empty.
	StoreDir string
	// ToolsPath lists the commands the "exec" reducer may run.
	ToolsPath string
	// MaskKeys are patterns of state keys masked in stored snapshots.
	MaskKeys []string
	Debug    bool
	Trace    bool
	// Registerer receives the machine metrics. Nil disables them.
	Registerer prometheus.Registerer
	// StartHooks run for every new session.
	StartHooks []session.StartHook
}

// Environment is a loaded flow and the sessions running it.
type Environment struct {
	Flow     *appflow.Flow
	Sessions *session.Manager
	Logger   *slog.Logger

	closers []func(context.Context) error
}

// NewEnvironment loads the flow and wires logging, metrics, tracing and the
// optional Redis mirror around its sessions.
func NewEnvironment(ctx context.Context, cfg Config, logger *slog.Logger) (*Environment, error) {
	env := &Environment{Logger: logger}

	machineOpts := []flow.Option{flow.WithLogger(logger)}
	if cfg.Debug {
		machineOpts = append(machineOpts, flow.WithHooks(observability.Logging(logger)))
	}
	if cfg.Registerer != nil {
		metrics, err := observability.NewMetrics(cfg.Registerer)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		machineOpts = append(machineOpts, flow.WithHooks(metrics.Hooks()))
	}
	if cfg.Trace {
		shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
			ServiceName:    "appflow",
			ServiceVersion: appflow.Version,
			Output:         os.Stderr,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init tracing: %w", err)
		}
		env.closers = append(env.closers, shutdown)
	}

	f, err := LoadFlow(cfg, logger, appflow.WithMachineOptions(machineOpts...))
	if err != nil {
		env.Close(ctx)
		return nil, err
	}
	env.Flow = f

	sessionOpts := []session.Option{session.WithLogger(logger)}
	for _, hook := range cfg.StartHooks {
		sessionOpts = append(sessionOpts, session.WithStartHook(hook))
	}
	store, err := OpenStore(cfg)
	if err != nil {
		env.Close(ctx)
		return nil, err
	}
	if store != nil {
		env.closers = append(env.closers, func(context.Context) error { return store.Close() })
		recordOpts := []persistence.RecorderOption{persistence.WithLogger(logger)}
		if store.Redis == nil {
			recordOpts = append(recordOpts, persistence.KeepOnEnd())
		} else {
			sessionOpts = append(sessionOpts,
				session.WithLocker(redis.NewLocker(store.Redis.Client(), "appflow:"), 30*time.Second))
		}
		sessionOpts = append(sessionOpts, session.WithStartHook(persistence.Recorder(store, recordOpts...)))
		logger.Info("Recording sessions", "redis", cfg.RedisAddr, "dir", cfg.StoreDir)
	}
	env.Sessions = session.NewManager(f.Factory(), sessionOpts...)
	return env, nil
}

// LoadFlow loads cfg.FlowPath, installing the "exec" reducer when
// cfg.ToolsPath is set.
func LoadFlow(cfg Config, logger *slog.Logger, opts ...appflow.Option) (*appflow.Flow, error) {
	if cfg.ToolsPath != "" {
		tools, err := process.LoadTools(cfg.ToolsPath)
		if err != nil {
			return nil, err
		}
		reg := registry.Default()
		process.NewRunner(process.WithTools(tools), process.WithLogger(logger)).Install(reg)
		opts = append(opts, appflow.WithRegistry(reg))
	}
	return appflow.Load(cfg.FlowPath, opts...)
}

// Close deletes the live sessions and releases what NewEnvironment opened.
func (e *Environment) Close(ctx context.Context) error {
	var errs []error
	if e.Sessions != nil {
		for _, id := range e.Sessions.List() {
			errs = append(errs, e.Sessions.Delete(ctx, id))
		}
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i](ctx))
	}
	e.closers = nil
	return errors.Join(errs...)
}
