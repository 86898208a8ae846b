// Package flow implements a hierarchical state-transition engine.
//
// A flow is a tree of nodes built with New and compiled by NewMachine. Each
// node owns a reducer over a slice of one shared state value and may declare
// success, failure and next edges. Dispatching an event resolves a child of
// the current node (or a "#id" anchored path), runs its reducer, commits the
// result and walks the edges to the machine's next position.
//
//	counter := flow.New().Value(0).OnAll(map[string]*flow.Node{
//		"increase": flow.New().Reducer(func(c *flow.Context, _ ...any) (flow.Result, error) {
//			return flow.Value(c.State.(int) + 1), nil
//		}).Restart(),
//	})
//	m, err := flow.NewMachine(counter)
//	...
//	m.Dispatch(ctx, "increase")
//
// Dispatches to unknown events, internal nodes (from outside) and nodes whose
// condition fails are silent no-ops; use Can or Actions to discover what the
// current node accepts.
//
// Reducers may return Pending results. The machine commits them once they
// settle, unless it has moved to another node or been reset in the meantime,
// in which case the settlement is dropped.
package flow
