package flow

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/appflow/internal/logging"
	"github.com/aretw0/appflow/pkg/state"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// NodeRef identifies a compiled node. Path is the dotted event path from the
// root; nodes reachable only through edges get "#id" or "~index".
type NodeRef struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Path  string `json:"path"`
}

// Change is delivered to subscribers after a commit changed the state.
type Change struct {
	State any
	Node  NodeRef
}

// Subscriber receives state changes. Subscribers run after the machine lock
// is released and may read the machine freely.
type Subscriber func(Change)

type subscription struct {
	id uint64
	fn Subscriber
}

// effect is work queued while the machine is locked and run once it is not.
type effect struct {
	ctx     context.Context
	change  *Change
	subs    []subscription
	forward *transform
}

type snapshot struct {
	value any
}

// Machine runs a compiled flow tree over one shared state value.
//
// All evaluation happens under a single mutex per machine. Reducers,
// conditions, next and transfer functions and hooks run while it is held and
// must not call back into the same machine; subscribers and forwarded
// dispatches run after it is released.
type Machine struct {
	name    string
	logger  *slog.Logger
	hooks   Hooks
	compare state.Comparer
	tracer  trace.Tracer

	vertices []*vertex
	ids      map[string]int

	mu          sync.Mutex
	current     int
	state       any
	initialized bool
	generation  uint64
	token       uint64
	timers      map[int]*time.Timer
	subs        []subscription
	nextSub     uint64
	outbox      []effect
	callbacks   map[string]func(args ...any) (*Future, error)

	ready atomic.Bool
	snap  atomic.Pointer[snapshot]
}

// NewMachine compiles root into a machine. Configuration mistakes anywhere in
// the tree are reported together.
func NewMachine(root *Node, opts ...Option) (*Machine, error) {
	if root == nil {
		return nil, configErr(ErrNilRoot, "cannot build a machine")
	}
	m := &Machine{
		name:      "flow",
		compare:   state.Identical,
		timers:    make(map[int]*time.Timer),
		callbacks: make(map[string]func(args ...any) (*Future, error)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.NewNop()
	}
	m.logger = m.logger.With("machine", m.name)
	if m.tracer == nil {
		m.tracer = otel.Tracer("github.com/aretw0/appflow/pkg/flow")
	}

	vertices, ids, err := compile(root)
	if err != nil {
		return nil, err
	}
	m.vertices = vertices
	m.ids = ids
	m.snap.Store(&snapshot{})
	return m, nil
}

// MustMachine is NewMachine panicking on configuration errors. It suits
// package-level flows built from literals.
func MustMachine(root *Node, opts ...Option) *Machine {
	m, err := NewMachine(root, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// Name returns the machine's label.
func (m *Machine) Name() string {
	return m.name
}

// GetState returns the current root state, evaluating the root on first use.
func (m *Machine) GetState() any {
	if !m.ready.Load() {
		m.mu.Lock()
		err := m.init(context.Background())
		effects := m.drain()
		m.mu.Unlock()
		if _, ferr := m.flush(effects); ferr != nil {
			err = join(err, ferr)
		}
		if err != nil {
			m.logger.Warn("root evaluation failed", "error", err)
		}
	}
	return m.snapshot()
}

// Value is an alias for GetState.
func (m *Machine) Value() any {
	return m.GetState()
}

// Select applies selector to the current state.
func (m *Machine) Select(selector func(state any) any) any {
	return selector(m.GetState())
}

func (m *Machine) snapshot() any {
	return m.snap.Load().value
}

func (m *Machine) publish() {
	m.snap.Store(&snapshot{value: m.state})
}

// Subscribe registers fn for state changes and returns a function removing it.
func (m *Machine) Subscribe(fn Subscriber) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	id := m.nextSub
	m.subs = append(m.subs, subscription{id: id, fn: fn})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.subs = slices.DeleteFunc(m.subs, func(s subscription) bool {
			return s.id == id
		})
	}
}

// Can reports whether the current node has a child under event. Conditions
// and internal flags are not consulted.
func (m *Machine) Can(event string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.vertices[m.current].children[event]
	return ok
}

// Actions lists the events of the current node's children in sorted order.
func (m *Machine) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.vertices[m.current].actions)
}

// Current returns the machine's position.
func (m *Machine) Current() NodeRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vertices[m.current].ref()
}

// Callback returns a dispatcher bound to event. The same function is returned
// for the same event.
func (m *Machine) Callback(event string) func(args ...any) (*Future, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cb, ok := m.callbacks[event]
	if !ok {
		cb = func(args ...any) (*Future, error) {
			return m.Dispatch(context.Background(), event, args...)
		}
		m.callbacks[event] = cb
	}
	return cb
}

// Reset discards the state and the position, cancels pending debounces and
// evaluates the root again as if the machine were new. Pending computations
// started before the reset are dropped when they settle.
func (m *Machine) Reset(ctx context.Context) error {
	m.mu.Lock()
	for idx, t := range m.timers {
		t.Stop()
		delete(m.timers, idx)
	}
	m.token++
	m.generation++
	m.initialized = false
	m.ready.Store(false)
	m.state = nil
	m.current = 0
	m.publish()
	m.logger.DebugContext(ctx, "machine reset", "generation", m.generation)
	err := m.init(ctx)
	effects := m.drain()
	m.mu.Unlock()

	_, ferr := m.flush(effects)
	return join(err, ferr)
}

// init evaluates the root once. Callers hold the lock.
func (m *Machine) init(ctx context.Context) error {
	if m.initialized {
		return nil
	}
	m.initialized = true
	m.current = 0
	_, err := m.eval(ctx, 0, nil)
	// Lock-free readers may only see the snapshot once the root committed.
	m.ready.Store(true)
	return err
}

func (m *Machine) drain() []effect {
	effects := m.outbox
	m.outbox = nil
	return effects
}

// flush runs queued effects without the lock, collecting the futures of
// forwarded dispatches.
func (m *Machine) flush(effects []effect) ([]*Future, error) {
	var (
		futures []*Future
		errs    []error
	)
	for _, e := range effects {
		switch {
		case e.change != nil:
			for _, s := range e.subs {
				s.fn(*e.change)
			}
		case e.forward != nil:
			f, err := e.forward.target.send(e.ctx, e.forward.event, e.forward.args, false)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if f != nil {
				futures = append(futures, f)
			}
		}
	}
	return futures, errors.Join(errs...)
}

// moveTo changes the position. Callers hold the lock.
func (m *Machine) moveTo(ctx context.Context, to int, edge string) {
	if to == m.current {
		return
	}
	from := m.vertices[m.current]
	m.current = to
	if m.hooks.OnTransition != nil {
		m.hooks.OnTransition(ctx, &TransitionEvent{
			Machine: m.name,
			From:    from.ref(),
			To:      m.vertices[to].ref(),
			Edge:    edge,
		})
	}
}

func (m *Machine) drop(ctx context.Context, event string, v *vertex, reason DropReason) {
	ref := NodeRef{Index: none}
	if v != nil {
		ref = v.ref()
	}
	m.logger.DebugContext(ctx, "dispatch dropped", "event", event, "node", ref.Path, "reason", reason)
	if m.hooks.OnDrop != nil {
		m.hooks.OnDrop(ctx, &DropEvent{Machine: m.name, Event: event, Node: ref, Reason: reason})
	}
}
