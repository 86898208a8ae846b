package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/appflow/pkg/persistence"
)

// Mask replaces the values of matching keys.
const Mask = "***"

type piiMiddleware struct {
	next     persistence.Store
	patterns []*regexp.Regexp
}

// NewPII creates a middleware that masks the values of object keys matching
// any of the patterns, at any depth of the snapshot state.
func NewPII(patterns []string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PII pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return func(next persistence.Store) persistence.Store {
		return &piiMiddleware{next: next, patterns: compiled}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, snap persistence.Snapshot) error {
	snap.State = m.mask(snap.State)
	return m.next.Save(ctx, snap)
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*persistence.Snapshot, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// mask returns a masked copy of v. The live state is shared with the
// machine and is never written.
func (m *piiMiddleware) mask(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			if m.matches(k) {
				out[k] = Mask
				continue
			}
			out[k] = m.mask(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = m.mask(child)
		}
		return out
	}
	return v
}

func (m *piiMiddleware) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
