package flow

import (
	"context"

	"github.com/aretw0/appflow/pkg/state"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// eval runs the reducer of the vertex at idx, which must be the current
// position, and walks its edges. Callers hold the lock.
func (m *Machine) eval(ctx context.Context, idx int, args []any) (*Future, error) {
	v := m.vertices[idx]
	if v.reducer == nil {
		value := project(m.state, v.prop)
		if v.hasValue {
			value = v.def
		}
		m.commit(ctx, v, value)
		return m.succeed(ctx, idx, value)
	}

	c := m.newContext(ctx, v)
	res, err := v.reducer(c, args...)
	for err == nil && res.kind == resultMutator {
		res, err = res.mutator(c.Mutate())
	}
	if err != nil {
		return m.fail(ctx, idx, err)
	}
	if res.kind == resultPending {
		return m.await(ctx, idx, res.pending, c.mutator), nil
	}

	value := res.value
	if c.mutator != nil {
		value = c.mutator.Value()
	}
	m.commit(ctx, v, value)
	return m.succeed(ctx, idx, value)
}

// succeed queues v's forwarded dispatches, then either evaluates the success
// edge with payload or applies v's next target. A node with a success edge
// leaves the next target to the end of its chain.
func (m *Machine) succeed(ctx context.Context, idx int, payload any) (*Future, error) {
	v := m.vertices[idx]
	for i := range v.transforms {
		m.outbox = append(m.outbox, effect{ctx: ctx, forward: &v.transforms[i]})
	}
	if v.success != none {
		m.moveTo(ctx, v.success, "success")
		return m.eval(ctx, v.success, []any{payload})
	}
	m.jump(ctx, v)
	return nil, nil
}

// jump applies v's next target. Unresolvable targets leave the position as is.
func (m *Machine) jump(ctx context.Context, v *vertex) {
	target := v.next
	if v.nextFunc != nil {
		target = v.nextFunc(m.state)
	}
	to := none
	switch target {
	case "":
		return
	case Root:
		to = 0
	case Parent:
		to = v.parent
	default:
		to = m.find(target, v.index)
	}
	if to == none {
		m.logger.DebugContext(ctx, "next target not found", "node", v.path, "next", target)
		return
	}
	m.moveTo(ctx, to, "next")
}

// fail routes err to v's failure edge, or returns it.
func (m *Machine) fail(ctx context.Context, idx int, err error) (*Future, error) {
	v := m.vertices[idx]
	handled := v.failure != none
	if m.hooks.OnError != nil {
		m.hooks.OnError(ctx, &ErrorEvent{Machine: m.name, Node: v.ref(), Err: err, Handled: handled})
	}
	if !handled {
		return nil, &ReducerError{Node: v.path, Err: err}
	}
	m.logger.DebugContext(ctx, "reducer failed, following failure edge", "node", v.path, "error", err)
	m.moveTo(ctx, v.failure, "failure")
	return m.eval(ctx, v.failure, []any{err})
}

// await suspends the evaluation of v until pending settles. The continuation
// is dropped if the machine moved or was reset in the meantime.
func (m *Machine) await(ctx context.Context, idx int, pending *Future, mutator *state.State) *Future {
	v := m.vertices[idx]
	generation := m.generation
	if v.async == AsyncMeta {
		m.commit(ctx, v, AsyncEnvelope{Loading: true})
	}

	out := NewFuture()
	go func() {
		payload, err := pending.Await(context.WithoutCancel(ctx))

		ctx, span := m.tracer.Start(ctx, "appflow.settle", trace.WithAttributes(
			attribute.String("appflow.machine", m.name),
			attribute.String("appflow.node", v.path),
		))
		defer span.End()

		m.mu.Lock()
		if m.current != idx || m.generation != generation {
			m.drop(ctx, "", v, DropStale)
			m.mu.Unlock()
			span.SetAttributes(attribute.Bool("appflow.stale", true))
			out.Resolve(nil)
			return
		}

		var next *Future
		if err == nil {
			if mutator != nil {
				payload = mutator.Value()
			}
			if v.async == AsyncMeta {
				m.commit(ctx, v, AsyncEnvelope{Done: true, Payload: payload})
			} else {
				m.commit(ctx, v, payload)
			}
			next, err = m.succeed(ctx, idx, payload)
		} else {
			if v.async == AsyncMeta {
				m.commit(ctx, v, AsyncEnvelope{Done: true, Error: err.Error(), Err: err})
			}
			next, err = m.fail(ctx, idx, err)
		}
		effects := m.drain()
		m.mu.Unlock()

		forwarded, ferr := m.flush(effects)
		if err = join(err, ferr); err == nil {
			_, err = All(append(forwarded, next)...).Await(context.WithoutCancel(ctx))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			out.Reject(err)
			return
		}
		out.Resolve(nil)
	}()
	return out
}

// commit stores value as v's slice of the state. Subscribers are queued only
// when the root value actually changes. Callers hold the lock.
func (m *Machine) commit(ctx context.Context, v *vertex, value any) {
	prev := m.state
	next, changed := m.merge(prev, v.prop, value)
	if !changed {
		return
	}
	m.state = next
	m.publish()

	change := &Change{State: next, Node: v.ref()}
	if m.hooks.OnCommit != nil {
		m.hooks.OnCommit(ctx, &CommitEvent{Machine: m.name, Node: change.Node, State: next})
	}
	if len(m.subs) > 0 {
		m.outbox = append(m.outbox, effect{ctx: ctx, change: change, subs: append([]subscription(nil), m.subs...)})
	}
}

// merge writes value into prev through p, copying prev only when a
// projected key actually changes.
func (m *Machine) merge(prev any, p Projection, value any) (any, bool) {
	if p.IsZero() {
		if m.compare(value, prev) {
			return prev, false
		}
		return value, true
	}

	obj, _ := prev.(map[string]any)
	if !p.multi {
		k := p.keys[0]
		if m.compare(obj[k], value) {
			return prev, false
		}
		out := cloneMap(obj)
		out[k] = value
		return out, true
	}

	src, _ := value.(map[string]any)
	var out map[string]any
	for _, k := range p.keys {
		cur, had := obj[k]
		val, has := src[k]
		if had == has && m.compare(cur, val) {
			continue
		}
		if out == nil {
			out = cloneMap(obj)
		}
		if has {
			out[k] = val
		} else {
			delete(out, k)
		}
	}
	if out == nil {
		return prev, false
	}
	return out, true
}

func cloneMap(obj map[string]any) map[string]any {
	out, _ := state.Clone(obj).(map[string]any)
	return out
}
