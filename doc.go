/*
Package appflow builds hierarchical state machines from declarative flow
definitions.

A flow is a tree of nodes. Each node reads and writes a slice of a single
shared state value through its reducer, and events are dotted paths through
the tree relative to the machine's current position. Reducers may return a
pending result, in which case the state settles later and results arriving
after the machine moved on are dropped.

The engine lives in pkg/flow and can be used directly from Go. This package
loads the same trees from YAML or JSON files, resolving reducer names against
a registry (pkg/registry), and hands out machines per session.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/appflow"
	)

	func main() {
		f, err := appflow.Load("counter.yaml")
		if err != nil {
			log.Fatal(err)
		}
		m, err := f.NewMachine()
		if err != nil {
			log.Fatal(err)
		}
		if _, err := m.Dispatch(context.Background(), "increment"); err != nil {
			log.Fatal(err)
		}
		fmt.Println(m.GetState())
	}

# Surfaces

The same sessions can be driven from the appflow CLI (cmd/appflow), over
HTTP with server-sent change events (pkg/adapters/http), as MCP tools
(pkg/adapters/mcp), and mirrored to Redis (pkg/adapters/redis).
*/
package appflow
