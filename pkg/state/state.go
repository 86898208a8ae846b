package state

import (
	"strconv"
	"strings"
)

// State is a copy-on-write wrapper around a value.
//
// A root State owns its value. A child State, obtained with Prop, owns nothing:
// its value is derived on every read by walking up to the root, and every write
// clones the containers on the path back to the root, leaving untouched
// siblings shared with the previous value.
type State struct {
	value    any
	parent   *State
	root     *State
	key      string
	compare  Comparer
	children map[string]*State
}

// Option configures a root State.
type Option func(*State)

// WithComparer sets the equality used to detect no-op writes.
func WithComparer(c Comparer) Option {
	return func(s *State) {
		if c != nil {
			s.compare = c
		}
	}
}

// New creates a root State holding v.
func New(v any, opts ...Option) *State {
	s := &State{
		value:   v,
		compare: Identical,
	}
	s.root = s
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the top of the projection chain.
func (s *State) Root() *State {
	return s.root
}

// Key returns the segment this State projects from its parent.
func (s *State) Key() string {
	return s.key
}

// Value returns the effective value of the State.
func (s *State) Value() any {
	if s.parent == nil {
		return s.value
	}
	parent := s.parent.Value()
	if nested, ok := parent.(*State); ok {
		parent = nested.Value()
	}
	return lookup(parent, s.key)
}

// Set replaces the value. Writes equal to the current value under the
// configured comparer are ignored.
func (s *State) Set(v any) *State {
	if s.comparer()(v, s.Value()) {
		return s
	}
	s.write(v)
	return s
}

// SetAt replaces the value found at path.
func (s *State) SetAt(path string, v any) *State {
	s.Prop(path).Set(v)
	return s
}

func (s *State) comparer() Comparer {
	if s.root != nil && s.root.compare != nil {
		return s.root.compare
	}
	return Identical
}

func (s *State) write(v any) {
	if s.parent == nil {
		s.value = v
		return
	}
	cloned := Clone(s.parent.Value())
	s.parent.write(assign(cloned, s.key, v))
}

// Prop returns the child State for a dotted path, creating and caching one
// wrapper per segment so repeated calls return the same object.
func (s *State) Prop(path string) *State {
	current := s
	for _, segment := range strings.Split(path, ".") {
		current = current.child(segment)
	}
	return current
}

func (s *State) child(key string) *State {
	if m, ok := s.value.(map[string]any); ok {
		if nested, ok := m[key].(*State); ok {
			return nested
		}
	}
	if s.children == nil {
		s.children = make(map[string]*State)
	}
	sub, ok := s.children[key]
	if !ok {
		sub = &State{
			parent: s,
			root:   s.root,
			key:    key,
		}
		s.children[key] = sub
	}
	return sub
}

// Get returns the value at path, or the State's own value for an empty path.
func (s *State) Get(path string) any {
	if path == "" {
		return s.Value()
	}
	return s.Prop(path).Value()
}

// Mutate applies action to the current value and commits what it returns.
// With cloneFirst the action receives a shallow copy it may modify in place;
// the copy is committed regardless of the action's return value.
func (s *State) Mutate(action func(v any) any, cloneFirst bool) *State {
	target := s.Value()
	if cloneFirst {
		target = Clone(target)
	}
	result := action(target)
	if cloneFirst {
		return s.Set(target)
	}
	return s.Set(result)
}

// Tap calls fn with the State and its current value.
func (s *State) Tap(fn func(s *State, v any)) *State {
	fn(s, s.Value())
	return s
}

// Clone returns a shallow copy of a composite value. Maps and slices are
// copied; anything else, nil included, becomes an empty map.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t)+1)
		for k, val := range t {
			out[k] = val
		}
		return out
	case []any:
		out := make([]any, len(t))
		copy(out, t)
		return out
	default:
		return map[string]any{}
	}
}

func lookup(container any, key string) any {
	switch t := container.(type) {
	case map[string]any:
		return t[key]
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(t) {
			return nil
		}
		return t[i]
	default:
		return nil
	}
}

// assign stores v under key in a container produced by Clone.
func assign(container any, key string, v any) any {
	switch t := container.(type) {
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 {
			return t
		}
		for len(t) <= i {
			t = append(t, nil)
		}
		t[i] = v
		return t
	case map[string]any:
		t[key] = v
		return t
	default:
		return map[string]any{key: v}
	}
}
