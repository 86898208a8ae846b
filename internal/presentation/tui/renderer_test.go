package tui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aretw0/appflow/pkg/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMarkdown(t *testing.T) {
	m := flow.MustMachine(flow.New().Value(map[string]any{"n": 1}).OnAll(map[string]*flow.Node{
		"edit": flow.New().ID("editor").Value(map[string]any{"n": 2}),
		"quit": flow.New().Value(nil),
	}))

	got := StateMarkdown(m)
	assert.Contains(t, got, "## @root\n")
	assert.Contains(t, got, "```json\n{\n  \"n\": 1\n}\n```")
	assert.Contains(t, got, "- `edit`\n- `quit`\n")

	_, err := m.Dispatch(context.Background(), "edit")
	require.NoError(t, err)
	got = StateMarkdown(m)
	assert.Contains(t, got, "## edit #editor\n")
	assert.Contains(t, got, "_No events available here._")
}

func TestNewRenderer_Plain(t *testing.T) {
	out, err := NewRenderer(false)("# title")
	require.NoError(t, err)
	assert.Equal(t, "# title", out)
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "1.2.3")
	assert.True(t, strings.Contains(buf.String(), "v1.2.3"))
	assert.Greater(t, strings.Count(buf.String(), "\n"), 6)
}
