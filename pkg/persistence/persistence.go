// Package persistence records session states outside the process.
//
// A Store keeps the latest Snapshot of every session. Recorder turns any
// Store into a session.StartHook, and the middleware package wraps stores
// with encryption and PII masking. Snapshots are a mirror: machines never
// read them back.
package persistence

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/appflow/internal/logging"
	"github.com/aretw0/appflow/pkg/flow"
	"github.com/aretw0/appflow/pkg/session"
)

// Snapshot is the state of a session at one point in time.
type Snapshot struct {
	Session string       `json:"session"`
	Machine string       `json:"machine"`
	Node    flow.NodeRef `json:"node"`
	State   any          `json:"state"`
	Time    time.Time    `json:"time"`
}

// Store keeps the latest snapshot per session. Load returns an error
// wrapping session.ErrSessionNotFound for unknown ids.
type Store interface {
	Save(ctx context.Context, s Snapshot) error
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
}

type recorderOptions struct {
	logger *slog.Logger
	keep   bool
}

// RecorderOption configures Recorder.
type RecorderOption func(*recorderOptions)

// WithLogger sets the logger for save failures.
func WithLogger(logger *slog.Logger) RecorderOption {
	return func(o *recorderOptions) {
		o.logger = logger
	}
}

// KeepOnEnd leaves the last snapshot in the store when the session ends.
func KeepOnEnd() RecorderOption {
	return func(o *recorderOptions) {
		o.keep = true
	}
}

// Recorder returns a hook saving the session's current state and every later
// change to store. Save failures are logged, never returned to the machine.
func Recorder(store Store, opts ...RecorderOption) session.StartHook {
	o := recorderOptions{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	return func(ctx context.Context, s *session.Session) func() {
		ctx = context.WithoutCancel(ctx)
		m := s.Machine
		save := func(node flow.NodeRef, state any) {
			snap := Snapshot{Session: s.ID, Machine: m.Name(), Node: node, State: state, Time: time.Now()}
			if err := store.Save(ctx, snap); err != nil {
				o.logger.Warn("failed to save snapshot", "session_id", s.ID, "error", err)
			}
		}

		save(m.Current(), m.GetState())
		unsubscribe := m.Subscribe(func(c flow.Change) {
			save(c.Node, c.State)
		})
		return func() {
			unsubscribe()
			if o.keep {
				return
			}
			if err := store.Delete(ctx, s.ID); err != nil {
				o.logger.Warn("failed to remove snapshot", "session_id", s.ID, "error", err)
			}
		}
	}
}
