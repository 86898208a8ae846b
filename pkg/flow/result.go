package flow

import (
	"context"

	"github.com/aretw0/appflow/pkg/state"
)

// Reducer computes the next value of a node's slice of state.
type Reducer func(c *Context, args ...any) (Result, error)

type resultKind int

const (
	resultValue resultKind = iota
	resultPending
	resultMutator
)

// Result is what a reducer produces: a plain value, a pending computation or
// a closure to run against the context's mutation handle. The zero Result is
// Value(nil).
type Result struct {
	kind    resultKind
	value   any
	pending *Future
	mutator func(m *state.State) (Result, error)
}

// Value wraps a ready value.
func Value(v any) Result {
	return Result{kind: resultValue, value: v}
}

// Pending wraps a computation that settles later.
func Pending(f *Future) Result {
	return Result{kind: resultPending, pending: f}
}

// Async starts fn in its own goroutine and wraps it as a pending result.
func Async(ctx context.Context, fn func(ctx context.Context) (any, error)) Result {
	return Pending(Go(ctx, fn))
}

// Mutator defers to fn, which receives the mutation handle of the reducer's
// context. Whatever fn leaves in the handle is committed.
func Mutator(fn func(m *state.State) (Result, error)) Result {
	return Result{kind: resultMutator, mutator: fn}
}

// IsPending reports whether the result still has to settle.
func (r Result) IsPending() bool {
	return r.kind == resultPending
}

// AsyncEnvelope is the value committed by nodes in AsyncMeta mode.
type AsyncEnvelope struct {
	Loading bool   `json:"loading,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
	Err     error  `json:"-"`
}
