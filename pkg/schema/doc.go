// Package schema describes flows as data.
//
// A Definition is read from YAML or JSON and mirrors the flow.Node builder.
// Reducers, conditions and next resolvers are referenced by name and looked
// up in a registry.Registry when the definition is built:
//
//	name: counter
//	root:
//	  value: 0
//	  on:
//	    increase:
//	      reducer: add
//	      next: "@root"
//	    decrease:
//	      reducer: {use: add, with: {by: -1}}
//	      next: "@root"
//
//	def, err := schema.Load("counter.yaml")
//	if err != nil {
//	    // Handle parse errors
//	}
//	m, err := def.NewMachine(registry.Default(), nil)
//
// Nodes may declare the object they expect as their first dispatch argument.
// Field types are "string", "int", "float", "bool", "map", "any", "[T]" for
// slices and a trailing "?" for optional fields:
//
//	add:
//	  reducer: push
//	  args: {title: string, tags: "[string]?"}
//
// Validation failures are reported as an AggregateError of ValidationError
// values, one per problem found.
package schema
