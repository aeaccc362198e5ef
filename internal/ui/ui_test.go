package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestHighlightJSONPlain(t *testing.T) {
	out := HighlightJSON([]byte(`{"a":1}`), true)
	assert.Equal(t, "{\n  \"a\": 1\n}", out)

	assert.Equal(t, "not json", HighlightJSON([]byte("not json"), false))
}

func TestTruncateWithEllipsis(t *testing.T) {
	assert.Equal(t, "short", TruncateWithEllipsis("short", 10))
	assert.Equal(t, "abcdefg...", TruncateWithEllipsis("abcdefghijklmnop", 10))
}

func TestWrap(t *testing.T) {
	out := Wrap("one two three four", 9)
	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, len(line), 9)
	}
}

func TestRenderTable(t *testing.T) {
	table := NewTable([]string{"ID", "STATUS"})
	table.AddRow("demo", "loaded")
	table.AddRow("only-id")

	out := RenderTable(table)
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, out, "demo")
	assert.Contains(t, out, "only-id")
	assert.Equal(t, lipgloss.Width(lines[0]), lipgloss.Width(lines[2]))
}
