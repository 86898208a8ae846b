package flow

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/appflow/pkg/state"
)

// Reserved next targets.
const (
	// Root moves the machine back to its root node.
	Root = "@root"
	// Parent moves the machine to the parent of the node that just settled.
	Parent = "@parent"
)

// AsyncMode selects what a pending reducer commits while and after it runs.
type AsyncMode int

const (
	// AsyncPayload commits the raw settled value.
	AsyncPayload AsyncMode = iota
	// AsyncMeta commits an AsyncEnvelope, including a loading marker.
	AsyncMeta
)

// Condition gates whether a node can become the dispatch target.
type Condition func(c *Context) bool

// NextFunc computes a next target from the settled root state.
type NextFunc func(state any) string

// Projection selects the slice of the enclosing state a node reads and writes.
type Projection struct {
	keys  []string
	multi bool
}

// Key projects a single property.
func Key(k string) Projection {
	return Projection{keys: []string{k}}
}

// Keys projects several properties into a map holding just those keys.
func Keys(keys ...string) Projection {
	return Projection{keys: keys, multi: true}
}

// IsZero reports whether the projection selects the whole state.
func (p Projection) IsZero() bool {
	return len(p.keys) == 0
}

func (p Projection) String() string {
	if p.multi {
		return "[" + strings.Join(p.keys, ",") + "]"
	}
	return strings.Join(p.keys, "")
}

type edgeKind int

const (
	edgeNone edgeKind = iota
	edgeNode
	edgeID
	edgeTemplate
)

type edge struct {
	kind edgeKind
	node *Node
	name string
}

type transform struct {
	target *Machine
	event  string
	args   []any
}

type template struct {
	node    *Node
	factory func() *Node
}

type child struct {
	node     *Node
	template string
}

// Node is the builder for one vertex of a flow tree. Methods return the node
// so configuration can be chained. Mistakes such as assigning an id twice are
// recorded and reported by NewMachine.
type Node struct {
	id        string
	reducer   Reducer
	def       any
	hasValue  bool
	prop      Projection
	condition Condition
	internal  bool
	debounce  time.Duration
	async     AsyncMode

	children map[string]child
	order    []string

	success edge
	failure edge

	next     string
	nextFunc NextFunc

	transferPath string
	transferNode *Node
	transferFunc NextFunc

	transforms []transform
	uses       map[string]*Machine
	templates  map[string]template

	errs []error
}

// New creates an empty node. Without further configuration its reducer
// returns the state unchanged.
func New() *Node {
	return &Node{}
}

// ID assigns the node's global id. An id can be assigned only once.
func (n *Node) ID(id string) *Node {
	if n.id != "" {
		n.errs = append(n.errs, configErr(ErrIDReassigned, "node %q cannot be renamed to %q", n.id, id))
		return n
	}
	n.id = id
	return n
}

// Name returns the node's id.
func (n *Node) Name() string {
	return n.id
}

// Value makes the node commit v, replacing any reducer or projection.
func (n *Node) Value(v any) *Node {
	n.prop = Projection{}
	n.reducer = nil
	n.def = v
	n.hasValue = true
	return n
}

// Reducer sets a reducer over the whole state.
func (n *Node) Reducer(r Reducer) *Node {
	n.reducer = r
	return n
}

// ReducerWithDefault sets a reducer whose Context.State falls back to def
// while the state is nil.
func (n *Node) ReducerWithDefault(r Reducer, def any) *Node {
	n.reducer = r
	n.def = def
	return n
}

// Project sets a reducer that reads and writes only p.
func (n *Node) Project(p Projection, r Reducer) *Node {
	n.prop = p
	n.reducer = r
	return n
}

// ProjectWithDefault is Project with a fallback for a nil projected slice.
func (n *Node) ProjectWithDefault(p Projection, r Reducer, def any) *Node {
	n.prop = p
	n.reducer = r
	n.def = def
	return n
}

// ProjectValue commits v into p.
func (n *Node) ProjectValue(p Projection, v any) *Node {
	n.prop = p
	n.def = v
	n.reducer = func(*Context, ...any) (Result, error) {
		return Value(v), nil
	}
	return n
}

// Toggle negates the given boolean keys of the state, or the state itself
// when no keys are given.
func (n *Node) Toggle(keys ...string) *Node {
	return n.Reducer(func(c *Context, _ ...any) (Result, error) {
		return Mutator(func(m *state.State) (Result, error) {
			m.Toggle(keys...)
			return Result{}, nil
		}), nil
	})
}

// On attaches a child reachable through event.
func (n *Node) On(event string, child *Node) *Node {
	n.attach(event, childOf(child))
	return n
}

// OnAll attaches several children.
func (n *Node) OnAll(children map[string]*Node) *Node {
	for _, event := range sortedKeys(children) {
		n.On(event, children[event])
	}
	return n
}

// OnTemplate attaches the template registered under name (see Define).
func (n *Node) OnTemplate(event, name string) *Node {
	if name == "" {
		name = event
	}
	n.attach(event, child{template: name})
	return n
}

// OnPath attaches children below the descendant found at path, which may
// start with a "#id" segment. A missing descendant is a configuration error.
func (n *Node) OnPath(path string, children map[string]*Node) *Node {
	target := n.find(path)
	if target == nil {
		n.errs = append(n.errs, configErr(ErrNodeNotFound, "cannot attach below %q", path))
		return n
	}
	target.OnAll(children)
	return n
}

func (n *Node) attach(event string, c child) {
	if n.children == nil {
		n.children = make(map[string]child)
	}
	if _, exists := n.children[event]; !exists {
		n.order = append(n.order, event)
	}
	n.children[event] = c
}

func nodeEdge(target *Node) edge {
	if target == nil {
		return edge{}
	}
	return edge{kind: edgeNode, node: target}
}

func childOf(node *Node) child {
	if node == nil {
		node = New()
	}
	return child{node: node}
}

// Success sets the node evaluated after this node's reducer succeeds.
func (n *Node) Success(target *Node) *Node {
	n.success = nodeEdge(target)
	return n
}

// SuccessID sets the success edge to the node carrying id.
func (n *Node) SuccessID(id string) *Node {
	n.success = edge{kind: edgeID, name: id}
	return n
}

// SuccessTemplate sets the success edge to a fresh instance of a template.
func (n *Node) SuccessTemplate(name string) *Node {
	n.success = edge{kind: edgeTemplate, name: name}
	return n
}

// Failure sets the node evaluated with the error when the reducer fails.
func (n *Node) Failure(target *Node) *Node {
	n.failure = nodeEdge(target)
	return n
}

// FailureID sets the failure edge to the node carrying id.
func (n *Node) FailureID(id string) *Node {
	n.failure = edge{kind: edgeID, name: id}
	return n
}

// FailureTemplate sets the failure edge to a fresh instance of a template.
func (n *Node) FailureTemplate(name string) *Node {
	n.failure = edge{kind: edgeTemplate, name: name}
	return n
}

// Next moves the machine to path once the node settles. Root and Parent are
// accepted besides relative and "#id" paths.
func (n *Node) Next(path string) *Node {
	n.next = path
	n.nextFunc = nil
	return n
}

// NextFunc computes the next target from the settled state.
func (n *Node) NextFunc(fn NextFunc) *Node {
	n.nextFunc = fn
	n.next = ""
	return n
}

// Back moves the machine to the settled node's parent.
func (n *Node) Back() *Node {
	return n.Next(Parent)
}

// Restart moves the machine to the root.
func (n *Node) Restart() *Node {
	return n.Next(Root)
}

// Condition gates dispatches to this node.
func (n *Node) Condition(c Condition) *Node {
	n.condition = c
	return n
}

// Internal hides the node from external dispatches; edge walks still reach it.
func (n *Node) Internal() *Node {
	n.internal = true
	return n
}

// Debounce delays evaluation until d has passed without another dispatch.
func (n *Node) Debounce(d time.Duration) *Node {
	n.debounce = d
	return n
}

// AsyncPayload commits the raw value of pending reducers (the default).
func (n *Node) AsyncPayload() *Node {
	n.async = AsyncPayload
	return n
}

// AsyncMeta commits an AsyncEnvelope for pending reducers.
func (n *Node) AsyncMeta() *Node {
	n.async = AsyncMeta
	return n
}

// Forward dispatches event on target every time this node settles.
func (n *Node) Forward(target *Machine, event string, args ...any) *Node {
	if target == nil {
		n.errs = append(n.errs, configErr(ErrNilMachine, "cannot forward %q", event))
		return n
	}
	n.transforms = append(n.transforms, transform{target: target, event: event, args: args})
	return n
}

// Transfer redirects dispatches of this node to path before anything runs.
func (n *Node) Transfer(path string) *Node {
	n.transferPath = path
	return n
}

// TransferTo redirects dispatches of this node to target.
func (n *Node) TransferTo(target *Node) *Node {
	n.transferNode = target
	return n
}

// TransferFunc computes the transfer path from the current state.
func (n *Node) TransferFunc(fn NextFunc) *Node {
	n.transferFunc = fn
	return n
}

// Use exposes the state of m to reducers under name.
func (n *Node) Use(name string, m *Machine) *Node {
	if m == nil {
		n.errs = append(n.errs, configErr(ErrNilMachine, "cannot use %q", name))
		return n
	}
	if n.uses == nil {
		n.uses = make(map[string]*Machine)
	}
	n.uses[name] = m
	return n
}

// Define registers a template node. Templates are resolved at build time by
// the nearest enclosing node defining the name.
func (n *Node) Define(name string, node *Node) *Node {
	return n.define(name, template{node: node})
}

// DefineFunc registers a template factory, called once per reference.
func (n *Node) DefineFunc(name string, factory func() *Node) *Node {
	return n.define(name, template{factory: factory})
}

func (n *Node) define(name string, t template) *Node {
	if n.templates == nil {
		n.templates = make(map[string]template)
	}
	n.templates[name] = t
	return n
}

// find resolves a dotted path on the builder tree.
func (n *Node) find(path string) *Node {
	parts := strings.Split(path, ".")
	current := n
	if strings.HasPrefix(parts[0], "#") {
		current = n.findID(parts[0][1:], map[*Node]bool{})
		parts = parts[1:]
	}
	for _, p := range parts {
		if current == nil {
			return nil
		}
		c, ok := current.children[p]
		if !ok {
			return nil
		}
		current = c.node
	}
	return current
}

func (n *Node) findID(id string, seen map[*Node]bool) *Node {
	if n == nil || seen[n] {
		return nil
	}
	seen[n] = true
	if n.id == id {
		return n
	}
	for _, event := range n.order {
		if found := n.children[event].node.findID(id, seen); found != nil {
			return found
		}
	}
	return nil
}

func (n *Node) String() string {
	if n.id != "" {
		return "#" + n.id
	}
	return fmt.Sprintf("node(%d children)", len(n.children))
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
