package spinner

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ignitionstack/ember/internal/ui"
)

// Model shows a spinner next to a step message until a result or an
// error arrives.
type Model struct {
	spinner spinner.Model
	step    string
	err     error
	done    bool
	result  interface{}
}

// ResultMsg ends the spinner with a result.
type ResultMsg struct {
	Result interface{}
}

// ErrorMsg ends the spinner with an error.
type ErrorMsg struct {
	Err error
}

// StepMsg replaces the step message.
type StepMsg string

func NewModel(message string) Model {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ui.PrimaryColor))
	return Model{
		spinner: s,
		step:    message,
	}
}

func (m Model) HasError() bool {
	return m.err != nil
}

func (m Model) HasResult() bool {
	return m.result != nil
}

func (m Model) Result() interface{} {
	return m.result
}

func (m Model) Err() error {
	return m.err
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.Type == tea.KeyCtrlC {
			m.err = fmt.Errorf("interrupted")
			m.done = true
			return m, tea.Quit
		}
	case ErrorMsg:
		m.err = msg.Err
		m.done = true
		return m, tea.Sequence(
			tea.Printf("%s", ui.ErrorStyle.Render(fmt.Sprintf("█ Error: %s", strings.TrimSpace(msg.Err.Error())))),
			tea.Quit,
		)
	case ResultMsg:
		m.result = msg.Result
		m.done = true
		return m, tea.Quit
	case StepMsg:
		m.step = string(msg)
		return m, nil
	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s %s", m.spinner.View(), m.step)
}
