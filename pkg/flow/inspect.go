package flow

import (
	"fmt"
	"time"
)

// NodeInfo is a read-only description of a compiled node.
type NodeInfo struct {
	NodeRef
	Event       string         `json:"event,omitempty"`
	Parent      int            `json:"parent"`
	Children    map[string]int `json:"children,omitempty"`
	Actions     []string       `json:"actions,omitempty"`
	Success     int            `json:"success"`
	Failure     int            `json:"failure"`
	Next        string         `json:"next,omitempty"`
	Transfer    string         `json:"transfer,omitempty"`
	Projection  string         `json:"projection,omitempty"`
	Reducer     bool           `json:"reducer"`
	Default     any            `json:"default,omitempty"`
	Internal    bool           `json:"internal,omitempty"`
	Conditional bool           `json:"conditional,omitempty"`
	Debounce    time.Duration  `json:"debounce,omitempty"`
	AsyncMeta   bool           `json:"async_meta,omitempty"`
	Forwards    []string       `json:"forwards,omitempty"`
}

// Inspect describes every compiled node, the root first. Missing edges are
// reported as -1.
func (m *Machine) Inspect() []NodeInfo {
	out := make([]NodeInfo, 0, len(m.vertices))
	for _, v := range m.vertices {
		info := NodeInfo{
			NodeRef:     v.ref(),
			Event:       v.event,
			Parent:      v.parent,
			Children:    v.children,
			Actions:     v.actions,
			Success:     v.success,
			Failure:     v.failure,
			Next:        v.next,
			Transfer:    v.transferPath,
			Projection:  v.prop.String(),
			Reducer:     v.reducer != nil,
			Default:     v.def,
			Internal:    v.internal,
			Conditional: v.condition != nil,
			Debounce:    v.debounce,
			AsyncMeta:   v.async == AsyncMeta,
		}
		if v.nextFunc != nil {
			info.Next = "(func)"
		}
		switch {
		case v.transferFunc != nil:
			info.Transfer = "(func)"
		case v.transferTarget != none:
			info.Transfer = m.vertices[v.transferTarget].path
		}
		for _, t := range v.transforms {
			info.Forwards = append(info.Forwards, fmt.Sprintf("%s:%s", t.target.Name(), t.event))
		}
		out = append(out, info)
	}
	return out
}
