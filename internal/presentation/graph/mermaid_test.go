package graph_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/appflow/internal/presentation/graph"
	"github.com/aretw0/appflow/pkg/flow"
)

func identity(c *flow.Context, _ ...any) (flow.Result, error) {
	return flow.Value(c.State), nil
}

func indexOf(t *testing.T, nodes []flow.NodeInfo, path string) int {
	t.Helper()
	for _, n := range nodes {
		if n.Path == path {
			return n.Index
		}
	}
	t.Fatalf("no node at %q", path)
	return -1
}

func TestGenerateMermaid(t *testing.T) {
	m := flow.MustMachine(flow.New().Value(0).OnAll(map[string]*flow.Node{
		"save": flow.New().ID("save").Reducer(identity).
			Failure(flow.New().Value("oops").Restart()),
		"guarded": flow.New().Condition(func(*flow.Context) bool { return true }).Next("#save"),
		"typing":  flow.New().Value(`say "hi"`).Debounce(300 * time.Millisecond),
		"jump":    flow.New().Transfer("save"),
	}))
	nodes := m.Inspect()
	save := indexOf(t, nodes, "save")
	guarded := indexOf(t, nodes, "guarded")
	jump := indexOf(t, nodes, "jump")

	tests := []struct {
		name     string
		contains []string
	}{
		{
			name:     "Root Node Shape",
			contains: []string{`n0(("@root"))`},
		},
		{
			name: "Reducer And Conditional Shapes",
			contains: []string{
				fmt.Sprintf(`n%d[["save #save"]]`, save),
				fmt.Sprintf(`n%d{{"guarded"}}`, guarded),
			},
		},
		{
			name: "Child Edges Carry Events",
			contains: []string{
				fmt.Sprintf(`n0 -- "save" --> n%d`, save),
			},
		},
		{
			name: "Failure Next And Transfer Edges",
			contains: []string{
				fmt.Sprintf("n%d -. fail .-> ", save),
				fmt.Sprintf("n%d -. next .-> n%d", guarded, save),
				fmt.Sprintf("n%d ==> n%d", jump, save),
			},
		},
		{
			name:     "Debounce Annotation",
			contains: []string{"typing <br/> ⏱️ 300ms"},
		},
	}

	got := graph.GenerateMermaid(nodes, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("GenerateMermaid() = \n%v\nWant substring: %v", got, want)
				}
			}
		})
	}
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	m := flow.MustMachine(flow.New().On("a", flow.New().Value(1)))
	nodes := m.Inspect()
	a := indexOf(t, nodes, "a")

	got := graph.GenerateMermaid(nodes, &graph.Overlay{Visited: []int{0, 0, 99}, Current: a})

	if strings.Count(got, "class n0 visited;") != 1 {
		t.Errorf("visited nodes should be styled once:\n%s", got)
	}
	if strings.Contains(got, "n99") {
		t.Errorf("unknown nodes should be skipped:\n%s", got)
	}
	if want := fmt.Sprintf("class n%d current;", a); !strings.Contains(got, want) {
		t.Errorf("missing %q in:\n%s", want, got)
	}
}
