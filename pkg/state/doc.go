/*
Package state implements the copy-on-write mutation model used by flow reducers.

A State wraps a value. Calling Prop on it returns a projection onto a nested
map key or slice index; projections hold no data of their own and resolve their
value by walking up to the root on every read. Writing through a projection
clones only the containers between the write site and the root, so every
branch that was not touched keeps its identity:

	root := state.New(map[string]any{
		"todos": []any{},
		"filter": map[string]any{"done": false},
	})
	before := root.Get("filter")
	root.Prop("todos").Push("write docs")
	// root.Get("filter") is still the very same map as before.

Writes are ignored when the new value is the same as the current one under the
root's Comparer (Identical by default), which is what lets the flow engine skip
notifying subscribers for no-op transitions.
*/
package state
