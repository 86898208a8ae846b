package flow

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Future is the handle of a computation that settles once, with a value or
// an error. A nil *Future is already settled with no value.
type Future struct {
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

// NewFuture returns an unsettled future; settle it with Resolve or Reject.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Go runs fn in a new goroutine and returns its future.
func Go(ctx context.Context, fn func(ctx context.Context) (any, error)) *Future {
	f := NewFuture()
	go func() {
		v, err := fn(ctx)
		f.settle(v, err)
	}()
	return f
}

// Resolved returns a future already settled with v.
func Resolved(v any) *Future {
	f := NewFuture()
	f.settle(v, nil)
	return f
}

// Rejected returns a future already settled with err.
func Rejected(err error) *Future {
	f := NewFuture()
	f.settle(nil, err)
	return f
}

// Resolve settles the future with v. Later calls are ignored.
func (f *Future) Resolve(v any) {
	f.settle(v, nil)
}

// Reject settles the future with err. Later calls are ignored.
func (f *Future) Reject(err error) {
	f.settle(nil, err)
}

func (f *Future) settle(v any, err error) {
	f.once.Do(func() {
		f.value, f.err = v, err
		close(f.done)
	})
}

var closed = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Done is closed once the future settles.
func (f *Future) Done() <-chan struct{} {
	if f == nil {
		return closed
	}
	return f.done
}

// Await blocks until the future settles or ctx ends. Awaiting does not cancel
// the underlying computation.
func (f *Future) Await(ctx context.Context) (any, error) {
	if f == nil {
		return nil, nil
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled reports whether the future has settled.
func (f *Future) Settled() bool {
	select {
	case <-f.Done():
		return true
	default:
		return false
	}
}

// All settles once every future has settled, rejecting with the first error.
// Nil futures are skipped; All returns nil when nothing is left to wait for.
func All(futures ...*Future) *Future {
	var pending []*Future
	for _, f := range futures {
		if f != nil {
			pending = append(pending, f)
		}
	}
	switch len(pending) {
	case 0:
		return nil
	case 1:
		return pending[0]
	}
	out := NewFuture()
	go func() {
		var g errgroup.Group
		for _, f := range pending {
			g.Go(func() error {
				<-f.done
				return f.err
			})
		}
		out.settle(nil, g.Wait())
	}()
	return out
}
