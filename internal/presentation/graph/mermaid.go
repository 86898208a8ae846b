package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/appflow/pkg/flow"
)

// Overlay contains dynamic state data to visualize on the graph.
type Overlay struct {
	Visited []int
	Current int
}

// GenerateMermaid produces a Mermaid flowchart from the nodes of a machine,
// as returned by Inspect. It applies semantic styling:
// - Root: ((Circle))
// - Reducer: [[Subroutine]]
// - Conditional: {{Hexagon}}
// - Default: [Rectangle]
// Children are solid arrows labelled with their event, success and failure
// edges are dotted, transfers are thick. Overlay styles are applied if
// provided.
func GenerateMermaid(nodes []flow.NodeInfo, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	ids := make(map[string]int)
	paths := make(map[string]int)
	for _, n := range nodes {
		if n.ID != "" {
			ids[n.ID] = n.Index
		}
		paths[n.Path] = n.Index
	}

	for _, n := range nodes {
		opener, closer := "[", "]"
		switch {
		case n.Index == 0:
			opener, closer = "((", "))"
		case n.Conditional:
			opener, closer = "{{", "}}"
		case n.Reducer:
			opener, closer = "[[", "]]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", nodeID(n.Index), opener, label(n), closer)

		for _, event := range n.Actions {
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", nodeID(n.Index), escape(event), nodeID(n.Children[event]))
		}
		if n.Success >= 0 {
			fmt.Fprintf(&sb, "    %s -. ok .-> %s\n", nodeID(n.Index), nodeID(n.Success))
		}
		if n.Failure >= 0 {
			fmt.Fprintf(&sb, "    %s -. fail .-> %s\n", nodeID(n.Index), nodeID(n.Failure))
		}
		if to, ok := resolve(n, n.Next, ids); ok {
			fmt.Fprintf(&sb, "    %s -. next .-> %s\n", nodeID(n.Index), nodeID(to))
		}
		if to, ok := paths[n.Transfer]; ok && n.Transfer != "" {
			fmt.Fprintf(&sb, "    %s ==> %s\n", nodeID(n.Index), nodeID(to))
		} else if to, ok := resolve(n, n.Transfer, ids); ok {
			fmt.Fprintf(&sb, "    %s ==> %s\n", nodeID(n.Index), nodeID(to))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[int]bool)
		for _, idx := range overlay.Visited {
			if idx < 0 || idx >= len(nodes) || seen[idx] {
				continue
			}
			seen[idx] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", nodeID(idx))
		}
		if overlay.Current >= 0 && overlay.Current < len(nodes) {
			fmt.Fprintf(&sb, "    class %s current;\n", nodeID(overlay.Current))
		}
	}

	return sb.String()
}

// resolve maps a static next or transfer target to a node index. Dotted
// relative paths depend on the position at runtime and are not drawn.
func resolve(n flow.NodeInfo, target string, ids map[string]int) (int, bool) {
	switch {
	case target == flow.Root:
		return 0, true
	case target == flow.Parent:
		return n.Parent, n.Parent >= 0
	case strings.HasPrefix(target, "#") && !strings.Contains(target, "."):
		idx, ok := ids[target[1:]]
		return idx, ok
	}
	return 0, false
}

func label(n flow.NodeInfo) string {
	text := n.Path
	if n.Index == 0 {
		text = flow.Root
	}
	if n.ID != "" && !strings.HasPrefix(text, "#") {
		text += " #" + n.ID
	}
	if n.Debounce > 0 {
		text += " <br/> ⏱️ " + n.Debounce.String()
	}
	return escape(text)
}

func nodeID(idx int) string {
	return fmt.Sprintf("n%d", idx)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
