package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/appflow/pkg/flow"
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
// Without a terminal the markdown is returned as is.
func NewRenderer(styled bool) func(string) (string, error) {
	if !styled {
		return func(markdown string) (string, error) {
			return markdown, nil
		}
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return func(markdown string) (string, error) {
			return markdown, nil
		}
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// StateMarkdown describes the position, state and available events of m.
func StateMarkdown(m *flow.Machine) string {
	var sb strings.Builder
	node := m.Current()
	label := node.Path
	if label == "" {
		label = flow.Root
	}
	if node.ID != "" {
		label += " #" + node.ID
	}
	fmt.Fprintf(&sb, "## %s\n\n", label)

	state, err := json.MarshalIndent(m.GetState(), "", "  ")
	if err != nil {
		state = []byte(fmt.Sprintf("%v", m.GetState()))
	}
	fmt.Fprintf(&sb, "```json\n%s\n```\n\n", state)

	actions := m.Actions()
	if len(actions) == 0 {
		sb.WriteString("_No events available here._\n")
		return sb.String()
	}
	sb.WriteString("**Events:**\n\n")
	for _, a := range actions {
		fmt.Fprintf(&sb, "- `%s`\n", a)
	}
	return sb.String()
}
