package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
)

// Color scheme shared by every command
var (
	PrimaryColor   = "#F97316" // Ember orange
	SecondaryColor = "#DC2626" // Deep red

	// Status colors
	SuccessColor  = "#10B981" // Emerald green
	ErrorColor    = "#EF4444" // Red
	WarningColor  = "#F59E0B" // Amber
	InfoColor     = "#3B82F6" // Blue
	DisabledColor = "#6B7280" // Gray

	// Text colors
	HeaderColor  = "#F9FAFB"
	TextColor    = "#E5E7EB"
	DimTextColor = "#9CA3AF"

	BorderColor        = "#374151"
	AlternatingRowDark = "#1F2937"
)

// Style definitions
var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(HeaderColor)).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(SuccessColor))

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ErrorColor))

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(WarningColor))

	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(InfoColor))

	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(DimTextColor))

	DisabledStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(DisabledColor))

	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(PrimaryColor)).
			Bold(true).
			MarginBottom(1)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(SecondaryColor))

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(BorderColor)).
			Padding(0, 1)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color(HeaderColor))

	TableRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(TextColor))
)

// TerminalWidth returns the width layouts are computed for.
func TerminalWidth() int {
	return 80
}

// IsCI reports whether we run in a CI environment, where spinners and
// colors are skipped.
func IsCI() bool {
	return os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" || os.Getenv("TRAVIS") != ""
}

// TruncateWithEllipsis shortens s to width cells, ANSI sequences included.
func TruncateWithEllipsis(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	if width <= 3 {
		return truncate.String(s, uint(width))
	}
	return truncate.StringWithTail(s, uint(width), "...")
}

// Wrap word-wraps text to the given width.
func Wrap(text string, width int) string {
	if width <= 0 {
		width = TerminalWidth()
	}
	return wordwrap.String(text, width)
}
