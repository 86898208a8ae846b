package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RunWatch runs the flow in development mode, reloading it whenever the
// definition file changes. A reload starts a fresh session.
func RunWatch(ctx context.Context, opts RunOptions, lines <-chan string, out io.Writer, styled bool) error {
	logger := CreateLogger(opts.Debug)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file instead of writing it.
	path, err := filepath.Abs(opts.FlowPath)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", opts.FlowPath, err)
	}
	changes := debounceChanges(ctx, watcher, path, 100*time.Millisecond)

	logger.Info("Starting Watcher", "path", path)
	printSystemMessage(out, "Watching '%s'.", opts.FlowPath)

	for {
		reload, err := runWatchIteration(ctx, opts, lines, out, styled, changes)
		if !reload {
			return handleExecutionError(err)
		}
		logger.Info("Watcher restarting")
	}
}

// runWatchIteration runs a session until the definition changes. It reports
// whether the flow should be loaded again.
func runWatchIteration(ctx context.Context, opts RunOptions, lines <-chan string, out io.Writer, styled bool, changes <-chan struct{}) (bool, error) {
	logger := CreateLogger(opts.Debug)
	env, err := NewEnvironment(ctx, opts.Config, logger)
	if err != nil {
		printSystemMessage(out, "Invalid flow: %v", err)
		printSystemMessage(out, "Waiting for changes...")
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case _, ok := <-changes:
			return ok, nil
		}
	}
	defer env.Close(context.WithoutCancel(ctx))

	// Use a dedicated context for this run iteration that can be cancelled by reloads
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- runIteration(runCtx, env, opts, lines, out, styled)
	}()

	select {
	case <-ctx.Done():
		cancel()
		<-done
		return false, ctx.Err()
	case _, ok := <-changes:
		cancel()
		<-done
		if ok {
			fmt.Fprintln(out)
			printSystemMessage(out, "Change detected in '%s', reloading.", opts.FlowPath)
		}
		return ok, nil
	case err := <-done:
		if errors.Is(err, io.EOF) || err == nil {
			return false, nil
		}
		return false, err
	}
}

// debounceChanges reports writes to path, coalescing bursts within wait.
func debounceChanges(ctx context.Context, watcher *fsnotify.Watcher, path string, wait time.Duration) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		var timer <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				timer = time.After(wait)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-timer:
				timer = nil
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}
