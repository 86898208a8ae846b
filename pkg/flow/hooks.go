package flow

import (
	"context"
	"time"
)

// DropReason says why a dispatch or settlement did not take effect.
type DropReason string

const (
	DropNotFound   DropReason = "not_found"
	DropInternal   DropReason = "internal"
	DropCondition  DropReason = "condition"
	DropSuperseded DropReason = "debounce_superseded"
	DropStale      DropReason = "stale_result"
)

// DispatchEvent describes an accepted dispatch.
type DispatchEvent struct {
	Machine   string
	Event     string
	Node      NodeRef
	External  bool
	Debounced bool
	Timestamp time.Time
}

// TransitionEvent describes a move of the current node.
type TransitionEvent struct {
	Machine string
	From    NodeRef
	To      NodeRef
	Edge    string // "dispatch", "success", "failure", "next"
}

// CommitEvent describes a committed state change.
type CommitEvent struct {
	Machine string
	Node    NodeRef
	State   any
}

// DropEvent describes a dispatch or settlement that was ignored.
type DropEvent struct {
	Machine string
	Event   string
	Node    NodeRef
	Reason  DropReason
}

// ErrorEvent describes a reducer error, handled by a failure edge or not.
type ErrorEvent struct {
	Machine string
	Node    NodeRef
	Err     error
	Handled bool
}

// Hooks are called synchronously while the machine is locked. They must not
// call back into the same machine.
type Hooks struct {
	OnDispatch   func(context.Context, *DispatchEvent)
	OnTransition func(context.Context, *TransitionEvent)
	OnCommit     func(context.Context, *CommitEvent)
	OnDrop       func(context.Context, *DropEvent)
	OnError      func(context.Context, *ErrorEvent)
}

// Merge returns hooks calling h first and then other.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnDispatch:   chain(h.OnDispatch, other.OnDispatch),
		OnTransition: chain(h.OnTransition, other.OnTransition),
		OnCommit:     chain(h.OnCommit, other.OnCommit),
		OnDrop:       chain(h.OnDrop, other.OnDrop),
		OnError:      chain(h.OnError, other.OnError),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
