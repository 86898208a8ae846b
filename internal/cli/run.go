package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/appflow"
	"github.com/aretw0/appflow/internal/presentation/tui"
	"github.com/aretw0/appflow/pkg/session"
	"golang.org/x/term"
)

// RunOptions contains all the configuration for the Run command.
type RunOptions struct {
	Config
	SessionID string
	Headless  bool
	JSON      bool
	Watch     bool
}

// Execute handles the 'run' command logic, dispatching to Session or Watch mode.
func Execute(opts RunOptions) error {
	if opts.Watch && (opts.Headless || opts.JSON) {
		return fmt.Errorf("--watch cannot be combined with --headless or --json")
	}

	sigCtx, stop := interruptContext(context.Background(), os.Stderr)
	defer stop()

	styled := !opts.Headless && !opts.JSON && term.IsTerminal(int(os.Stdout.Fd()))
	if !opts.Headless && !opts.JSON {
		tui.PrintBanner(os.Stdout, appflow.Version)
	}
	if opts.Watch {
		return RunWatch(sigCtx, opts, readLines(os.Stdin), os.Stdout, styled)
	}
	return RunSession(sigCtx, opts, readLines(os.Stdin), os.Stdout, styled)
}

// RunSession runs one session of the flow until input ends.
func RunSession(ctx context.Context, opts RunOptions, lines <-chan string, out io.Writer, styled bool) error {
	logger := CreateLogger(opts.Debug)
	env, err := NewEnvironment(ctx, opts.Config, logger)
	if err != nil {
		return fmt.Errorf("error initializing appflow: %w", err)
	}
	defer env.Close(context.WithoutCancel(ctx))

	return handleExecutionError(runIteration(ctx, env, opts, lines, out, styled))
}

func runIteration(ctx context.Context, env *Environment, opts RunOptions, lines <-chan string, out io.Writer, styled bool) error {
	s, err := startSession(ctx, env.Sessions, opts.SessionID)
	if err != nil {
		return fmt.Errorf("failed to init session: %w", err)
	}
	env.Logger.Info("Session Created", "session_id", s.ID, "flow", env.Flow.Name())
	if !opts.JSON && !opts.Headless {
		printSystemMessage(out, "Session '%s' running flow '%s'. Type :help for commands.", s.ID, env.Flow.Name())
	}

	repl := &REPL{
		Sessions: env.Sessions,
		Session:  s,
		Out:      out,
		Render:   tui.NewRenderer(styled),
		JSON:     opts.JSON,
		Quiet:    opts.Headless,
	}
	return repl.Run(ctx, lines)
}

func startSession(ctx context.Context, sessions *session.Manager, id string) (*session.Session, error) {
	if id == "" {
		return sessions.Start(ctx)
	}
	return sessions.LoadOrStart(ctx, id)
}
