package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	SuccessSymbol = "✓"
	ErrorSymbol   = "✗"
	InfoSymbol    = "ℹ"
	WarningSymbol = "⚠"
	BulletSymbol  = "•"
)

// PrintLogo prints the banner.
func PrintLogo() {
	fmt.Println(TitleStyle.Render("ember") + " " + DimStyle.Render("WebAssembly plugin host"))
}

func PrintSuccess(message string) {
	fmt.Println(SuccessStyle.Bold(true).Render(SuccessSymbol + " " + message))
}

// PrintError prints an error message in a box.
func PrintError(message string) {
	errorBox := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ErrorColor)).
		Padding(0, 1).
		Render(ErrorStyle.Bold(true).Render(ErrorSymbol + " Error: " + Wrap(message, TerminalWidth()-12)))

	fmt.Println(errorBox)
}

func PrintWarning(message string) {
	fmt.Println(WarningStyle.Bold(true).Render(WarningSymbol + " " + message))
}

// PrintInfo prints a label and value pair.
func PrintInfo(label, value string) {
	fmt.Printf("%s %s\n",
		DimStyle.Bold(true).Render(label+":"),
		InfoStyle.Render(value))
}

// PrintEmptyState shows a message when no data is available.
func PrintEmptyState(message string) {
	fmt.Println(DimStyle.Italic(true).Render(message))
}

// Table is a formatted table with headers and rows.
type Table struct {
	Headers     []string
	Rows        [][]string
	ColumnWidth []int
}

// NewTable creates a table with the given headers.
func NewTable(headers []string) *Table {
	columnWidth := make([]int, len(headers))
	for i, h := range headers {
		columnWidth[i] = len(h) + 2
	}
	return &Table{
		Headers:     headers,
		ColumnWidth: columnWidth,
	}
}

// AddRow adds a row. Missing cells are left empty and extra cells dropped.
func (t *Table) AddRow(values ...string) {
	row := make([]string, len(t.Headers))
	copy(row, values)
	for i, v := range row {
		if w := lipgloss.Width(v) + 2; w > t.ColumnWidth[i] {
			t.ColumnWidth[i] = w
		}
	}
	t.Rows = append(t.Rows, row)
}

// RenderTable renders the table without borders, with alternating row
// backgrounds. Styled cells keep their own colors.
func RenderTable(table *Table) string {
	render := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = style.Width(table.ColumnWidth[i]).Render(c)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	}

	header := render(table.Headers, TableHeaderStyle)
	rows := []string{header, DimStyle.Render(strings.Repeat("─", lipgloss.Width(header)))}
	for i, row := range table.Rows {
		style := TableRowStyle
		if i%2 == 1 {
			style = style.Background(lipgloss.Color(AlternatingRowDark))
		}
		rows = append(rows, render(row, style))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// StyleStatusValue colors a plugin status.
func StyleStatusValue(status string) string {
	switch strings.ToLower(status) {
	case "loaded":
		return SuccessStyle.Render(SuccessSymbol + " " + status)
	case "failed":
		return ErrorStyle.Render(ErrorSymbol + " " + status)
	case "bare":
		return WarningStyle.Render("◌ " + status)
	case "missing", "disabled":
		return DisabledStyle.Render("⊘ " + status)
	default:
		return status
	}
}

// StyleCircuit colors a circuit breaker state.
func StyleCircuit(state string) string {
	switch state {
	case "closed":
		return SuccessStyle.Render(state)
	case "half-open":
		return WarningStyle.Render(state)
	case "open":
		return ErrorStyle.Render(state)
	default:
		return DimStyle.Render("-")
	}
}
