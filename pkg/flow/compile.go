package flow

import (
	"errors"
	"slices"
	"strconv"
	"time"
)

const none = -1

// vertex is the compiled, immutable form of a Node. Vertices live in the
// machine's arena and reference each other by index.
type vertex struct {
	index  int
	id     string
	event  string
	path   string
	parent int

	children map[string]int
	actions  []string

	reducer   Reducer
	def       any
	hasValue  bool
	prop      Projection
	condition Condition
	internal  bool
	debounce  time.Duration
	async     AsyncMode

	success int
	failure int

	next     string
	nextFunc NextFunc

	transferPath   string
	transferTarget int
	transferFunc   NextFunc

	transforms []transform
	uses       map[string]*Machine
}

func (v *vertex) ref() NodeRef {
	return NodeRef{Index: v.index, ID: v.id, Path: v.path}
}

type scopes []map[string]template

func (s scopes) with(t map[string]template) scopes {
	if len(t) == 0 {
		return s
	}
	return append(slices.Clip(s), t)
}

// lookup searches the innermost scope first.
func (s scopes) lookup(name string) (*Node, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if t, ok := s[i][name]; ok {
			if t.factory != nil {
				return t.factory(), true
			}
			return t.node, true
		}
	}
	return nil, false
}

type pendingEdge struct {
	from   int
	kind   string
	target edge
	scope  scopes
}

type compiler struct {
	vertices []*vertex
	ids      map[string]int
	byNode   map[*Node]int
	stack    map[*Node]bool
	pending  []pendingEdge
	errs     []error
}

// compile flattens the builder tree rooted at root into an arena. Edge
// targets that are not part of the tree are compiled as detached vertices.
func compile(root *Node) ([]*vertex, map[string]int, error) {
	c := &compiler{
		ids:    make(map[string]int),
		byNode: make(map[*Node]int),
		stack:  make(map[*Node]bool),
	}
	c.node(root, none, "", "", nil)
	for len(c.pending) > 0 {
		p := c.pending[0]
		c.pending = c.pending[1:]
		c.resolve(p)
	}
	if len(c.errs) > 0 {
		return nil, nil, errors.Join(c.errs...)
	}
	return c.vertices, c.ids, nil
}

func (c *compiler) node(n *Node, parent int, event, path string, sc scopes) int {
	if n == nil {
		n = New()
	}
	if c.stack[n] {
		c.errs = append(c.errs, configErr(ErrCycle, "%s is its own descendant", n))
		return none
	}
	c.stack[n] = true
	defer delete(c.stack, n)

	v := &vertex{
		index:          len(c.vertices),
		id:             n.id,
		event:          event,
		path:           path,
		parent:         parent,
		reducer:        n.reducer,
		def:            n.def,
		hasValue:       n.hasValue,
		prop:           n.prop,
		condition:      n.condition,
		internal:       n.internal,
		debounce:       n.debounce,
		async:          n.async,
		success:        none,
		failure:        none,
		next:           n.next,
		nextFunc:       n.nextFunc,
		transferPath:   n.transferPath,
		transferTarget: none,
		transferFunc:   n.transferFunc,
		transforms:     slices.Clone(n.transforms),
		uses:           n.uses,
	}
	if parent == none && path == "" && len(c.vertices) > 0 {
		v.path = detachedPath(v)
	}
	c.vertices = append(c.vertices, v)
	c.errs = append(c.errs, n.errs...)

	if n.id != "" {
		if other, exists := c.ids[n.id]; exists {
			c.errs = append(c.errs, configErr(ErrDuplicateID, "%q is used by %s and %s", n.id, c.vertices[other].path, v.path))
		} else {
			c.ids[n.id] = v.index
		}
	}
	if _, seen := c.byNode[n]; !seen {
		c.byNode[n] = v.index
	}

	sc = sc.with(n.templates)

	v.children = make(map[string]int, len(n.children))
	for _, ev := range n.order {
		ch := n.children[ev]
		target := ch.node
		if ch.template != "" {
			t, ok := sc.lookup(ch.template)
			if !ok {
				c.errs = append(c.errs, configErr(ErrUnknownTemplate, "%q attached under %q", ch.template, ev))
				continue
			}
			target = t
		}
		childPath := ev
		if v.path != "" {
			childPath = v.path + "." + ev
		}
		if idx := c.node(target, v.index, ev, childPath, sc); idx != none {
			v.children[ev] = idx
		}
	}
	v.actions = sortedKeys(v.children)

	c.queue(v.index, "success", n.success, sc)
	c.queue(v.index, "failure", n.failure, sc)
	if n.transferNode != nil {
		c.queue(v.index, "transfer", edge{kind: edgeNode, node: n.transferNode}, sc)
	}
	return v.index
}

func (c *compiler) queue(from int, kind string, e edge, sc scopes) {
	if e.kind == edgeNone {
		return
	}
	c.pending = append(c.pending, pendingEdge{from: from, kind: kind, target: e, scope: sc})
}

func (c *compiler) resolve(p pendingEdge) {
	target := none
	switch p.target.kind {
	case edgeID:
		idx, ok := c.ids[p.target.name]
		if !ok {
			c.errs = append(c.errs, configErr(ErrNodeNotFound, "%s edge of %s points to unknown id %q", p.kind, c.vertices[p.from].path, p.target.name))
			return
		}
		target = idx
	case edgeTemplate:
		n, ok := p.scope.lookup(p.target.name)
		if !ok {
			c.errs = append(c.errs, configErr(ErrUnknownTemplate, "%q used as %s edge", p.target.name, p.kind))
			return
		}
		target = c.node(n, none, "", "", p.scope)
	case edgeNode:
		if idx, ok := c.byNode[p.target.node]; ok {
			target = idx
		} else {
			target = c.node(p.target.node, none, "", "", p.scope)
		}
	}
	if target == none {
		return
	}
	v := c.vertices[p.from]
	switch p.kind {
	case "success":
		v.success = target
	case "failure":
		v.failure = target
	case "transfer":
		v.transferTarget = target
	}
}

func detachedPath(v *vertex) string {
	if v.id != "" {
		return "#" + v.id
	}
	return "~" + strconv.Itoa(v.index)
}
