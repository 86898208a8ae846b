package flow

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Dispatch sends event to the machine. The event is a path relative to the
// current node, optionally anchored with a leading "#id" segment.
//
// Unknown events, gated nodes and debounced dispatches return a nil future
// and a nil error. A non-nil future means part of the evaluation is still
// pending; await it to observe the settled state or the reducer error.
func (m *Machine) Dispatch(ctx context.Context, event string, args ...any) (*Future, error) {
	return m.send(ctx, event, args, true)
}

func (m *Machine) send(ctx context.Context, event string, args []any, external bool) (*Future, error) {
	ctx, span := m.tracer.Start(ctx, "appflow.dispatch", trace.WithAttributes(
		attribute.String("appflow.machine", m.name),
		attribute.String("appflow.event", event),
		attribute.Bool("appflow.external", external),
	))
	defer span.End()

	m.mu.Lock()
	f, err := m.dispatch(ctx, event, args, external)
	effects := m.drain()
	m.mu.Unlock()

	forwarded, ferr := m.flush(effects)
	if err = join(err, ferr); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return All(append(forwarded, f)...), nil
}

// dispatch resolves and evaluates event. Callers hold the lock.
func (m *Machine) dispatch(ctx context.Context, event string, args []any, external bool) (*Future, error) {
	if err := m.init(ctx); err != nil {
		return nil, err
	}

	idx := m.find(event, m.current)
	if idx == none {
		m.drop(ctx, event, nil, DropNotFound)
		return nil, nil
	}
	v := m.vertices[idx]
	if external && v.internal {
		m.drop(ctx, event, v, DropInternal)
		return nil, nil
	}
	if v.condition != nil && !v.condition(m.newContext(ctx, v)) {
		m.drop(ctx, event, v, DropCondition)
		return nil, nil
	}

	idx, err := m.transfer(v)
	if err != nil {
		return nil, err
	}
	v = m.vertices[idx]

	if m.hooks.OnDispatch != nil {
		m.hooks.OnDispatch(ctx, &DispatchEvent{
			Machine:   m.name,
			Event:     event,
			Node:      v.ref(),
			External:  external,
			Debounced: v.debounce > 0,
			Timestamp: time.Now(),
		})
	}

	m.token++
	if v.debounce > 0 {
		m.schedule(ctx, event, v, args)
		return nil, nil
	}

	m.moveTo(ctx, idx, "dispatch")
	return m.eval(ctx, idx, args)
}

// transfer follows v's redirection, if any.
func (m *Machine) transfer(v *vertex) (int, error) {
	switch {
	case v.transferTarget != none:
		return v.transferTarget, nil
	case v.transferFunc == nil && v.transferPath == "":
		return v.index, nil
	}
	path := v.transferPath
	if v.transferFunc != nil {
		path = v.transferFunc(m.state)
	}
	idx := m.find(path, m.current)
	if idx == none {
		return none, configErr(ErrTransfer, "%s redirects to unknown path %q", v.path, path)
	}
	return idx, nil
}

// schedule arms v's debounce timer, replacing any earlier one. The timer
// evaluates only if no other dispatch happened on the machine meanwhile.
func (m *Machine) schedule(ctx context.Context, event string, v *vertex, args []any) {
	if t, ok := m.timers[v.index]; ok && t.Stop() {
		m.drop(ctx, event, v, DropSuperseded)
	}
	token := m.token
	ctx = context.WithoutCancel(ctx)
	m.timers[v.index] = time.AfterFunc(v.debounce, func() {
		m.fire(ctx, event, v.index, token, args)
	})
}

func (m *Machine) fire(ctx context.Context, event string, idx int, token uint64, args []any) {
	m.mu.Lock()
	if token != m.token {
		m.drop(ctx, event, m.vertices[idx], DropSuperseded)
		m.mu.Unlock()
		return
	}
	delete(m.timers, idx)
	m.moveTo(ctx, idx, "dispatch")
	f, err := m.eval(ctx, idx, args)
	effects := m.drain()
	m.mu.Unlock()

	forwarded, ferr := m.flush(effects)
	if err = join(err, ferr); err != nil {
		m.logger.WarnContext(ctx, "debounced evaluation failed", "event", event, "error", err)
		return
	}
	if pending := All(append(forwarded, f)...); pending != nil {
		go func() {
			if _, err := pending.Await(ctx); err != nil {
				m.logger.WarnContext(ctx, "debounced evaluation failed", "event", event, "error", err)
			}
		}()
	}
}

// find resolves a dotted path relative to from. A leading "#id" segment
// anchors the walk at the node carrying id.
func (m *Machine) find(path string, from int) int {
	if path == "" {
		return none
	}
	parts := strings.Split(path, ".")
	current := from
	if strings.HasPrefix(parts[0], "#") {
		current = m.findByID(parts[0][1:])
		parts = parts[1:]
	}
	for _, p := range parts {
		if current == none {
			return none
		}
		next, ok := m.vertices[current].children[p]
		if !ok {
			return none
		}
		current = next
	}
	return current
}

func (m *Machine) findByID(id string) int {
	if idx, ok := m.ids[id]; ok {
		return idx
	}
	return none
}
