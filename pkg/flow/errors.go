package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateID is reported when two nodes of a tree share an id.
	ErrDuplicateID = errors.New("duplicate node id")
	// ErrIDReassigned is reported when a node's id is assigned twice.
	ErrIDReassigned = errors.New("node id cannot be reassigned")
	// ErrNodeNotFound is reported when a path required at build time does not resolve.
	ErrNodeNotFound = errors.New("node not found")
	// ErrCycle is reported when a node is attached below itself.
	ErrCycle = errors.New("node attached below itself")
	// ErrUnknownTemplate is reported when a template name was never defined.
	ErrUnknownTemplate = errors.New("unknown template")
	// ErrTransfer is returned by Dispatch when a transfer target does not resolve.
	ErrTransfer = errors.New("cannot transfer")
	// ErrNilMachine is reported when Forward or Use receive a nil machine.
	ErrNilMachine = errors.New("machine is nil")
	// ErrNilRoot is returned by NewMachine without a root node.
	ErrNilRoot = errors.New("root node is nil")
)

// ConfigError is a fatal configuration mistake, raised while building a
// machine or, for transfers, while dispatching.
type ConfigError struct {
	Kind   error
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
}

func (e *ConfigError) Unwrap() error {
	return e.Kind
}

func configErr(kind error, format string, args ...any) *ConfigError {
	return &ConfigError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// ReducerError wraps an error returned by a reducer or a rejected pending
// computation that no failure edge handled.
type ReducerError struct {
	Node string
	Err  error
}

func (e *ReducerError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Node, e.Err)
}

func (e *ReducerError) Unwrap() error {
	return e.Err
}

// join is errors.Join that leaves a single error unwrapped.
func join(err, other error) error {
	switch {
	case other == nil:
		return err
	case err == nil:
		return other
	}
	return errors.Join(err, other)
}
