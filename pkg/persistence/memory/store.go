// Package memory keeps session snapshots in process memory.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/appflow/pkg/persistence"
	"github.com/aretw0/appflow/pkg/session"
)

// Store implements persistence.Store in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]persistence.Snapshot
	mu   sync.RWMutex
}

var _ persistence.Store = (*Store)(nil)

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]persistence.Snapshot),
	}
}

// Save keeps snap. Machine states are copy-on-write, so the snapshot can
// share its state value with the machine.
func (s *Store) Save(ctx context.Context, snap persistence.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[snap.Session] = snap
	return nil
}

// Load returns a copy of the session's snapshot.
func (s *Store) Load(ctx context.Context, sessionID string) (*persistence.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.data[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, sessionID)
	}
	return &snap, nil
}

// Delete removes the snapshot.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// List returns the stored session ids in sorted order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
