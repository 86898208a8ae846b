package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/appflow/internal/logging"
	"github.com/aretw0/appflow/pkg/flow"
	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for ids with no live session.
var ErrSessionNotFound = errors.New("session not found")

// UnlockFunc releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// Locker coordinates access to a session across several processes.
type Locker interface {
	// Lock blocks until the lock for key is held or ctx ends. The returned
	// UnlockFunc MUST be called to release it.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

// Factory builds the machine of a new session.
type Factory func(ctx context.Context, id string) (*flow.Machine, error)

// StartHook runs once a session is created. The returned function, if any,
// runs when the session is deleted.
type StartHook func(ctx context.Context, s *Session) (stop func())

// Session is one live machine addressed by id.
type Session struct {
	ID      string
	Machine *flow.Machine
	Created time.Time

	stops []func()
}

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager keeps live sessions and serialises their creation and the
// dispatches routed through it.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	factory Factory

	mu       sync.Mutex            // Global lock for the maps
	locks    map[string]*lockEntry // Map of active locks
	sessions map[string]*Session

	locker  Locker
	lockTTL time.Duration
	hooks   []StartHook
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking with the given lock TTL.
func WithLocker(locker Locker, ttl time.Duration) Option {
	return func(m *Manager) {
		m.locker = locker
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithStartHook runs hook for every new session.
func WithStartHook(hook StartHook) Option {
	return func(m *Manager) {
		m.hooks = append(m.hooks, hook)
	}
}

// NewManager creates a new Session Manager building machines with factory.
func NewManager(factory Factory, opts ...Option) *Manager {
	m := &Manager{
		factory:  factory,
		locks:    make(map[string]*lockEntry),
		sessions: make(map[string]*Session),
		lockTTL:  30 * time.Second,
		logger:   logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// Start creates a session under a fresh random id.
func (m *Manager) Start(ctx context.Context) (*Session, error) {
	return m.LoadOrStart(ctx, uuid.NewString())
}

// Get returns the live session with the given id.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, nil
}

// LoadOrStart returns the session with the given id, creating it if needed.
// Concurrent calls for the same id build a single machine.
func (m *Manager) LoadOrStart(ctx context.Context, sessionID string) (*Session, error) {
	var s *Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		if s, err = m.Get(sessionID); err == nil {
			return nil
		}

		machine, err := m.factory(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}
		s = &Session{ID: sessionID, Machine: machine, Created: time.Now()}
		for _, hook := range m.hooks {
			if stop := hook(ctx, s); stop != nil {
				s.stops = append(s.stops, stop)
			}
		}

		m.mu.Lock()
		m.sessions[sessionID] = s
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "session started", "session_id", sessionID)
		return nil
	})
	return s, err
}

// Dispatch sends event to the session's machine while holding the session
// lock, so dispatches through the manager are applied one at a time even
// across processes sharing a Locker.
func (m *Manager) Dispatch(ctx context.Context, sessionID, event string, args ...any) (*flow.Future, error) {
	var f *flow.Future
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		s, err := m.Get(sessionID)
		if err != nil {
			return err
		}
		f, err = s.Machine.Dispatch(ctx, event, args...)
		return err
	})
	return f, err
}

// Delete stops and forgets the session.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		m.mu.Lock()
		s, ok := m.sessions[sessionID]
		delete(m.sessions, sessionID)
		m.mu.Unlock()
		if !ok {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		for _, stop := range s.stops {
			stop()
		}
		m.logger.DebugContext(ctx, "session deleted", "session_id", sessionID)
		return nil
	})
}

// List returns the ids of the live sessions, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	// Distributed Locking
	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
