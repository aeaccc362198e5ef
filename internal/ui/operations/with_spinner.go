package operations

import (
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ignitionstack/ember/internal/ui"
	"github.com/ignitionstack/ember/internal/ui/models/spinner"
)

// Result wraps the value of an operation with its run time.
type Result struct {
	Data          interface{}
	ExecutionTime time.Duration
}

type OperationFunc func() (interface{}, error)

// WithSpinner runs operation while a spinner shows message. In plain mode
// or on CI the operation runs without any terminal UI.
func WithSpinner(message string, plain bool, operation OperationFunc) (*Result, error) {
	if plain || ui.IsCI() {
		start := time.Now()
		data, err := operation()
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, ExecutionTime: time.Since(start)}, nil
	}

	program := tea.NewProgram(spinner.NewModel(message))

	go func() {
		start := time.Now()
		data, err := operation()
		if err != nil {
			program.Send(spinner.ErrorMsg{Err: err})
			return
		}
		program.Send(spinner.ResultMsg{Result: &Result{Data: data, ExecutionTime: time.Since(start)}})
	}()

	model, err := program.Run()
	if err != nil {
		return nil, err
	}

	final, ok := model.(spinner.Model)
	if !ok {
		return nil, errors.New("program finished with invalid model")
	}
	if final.HasError() {
		return nil, final.Err()
	}

	result, ok := final.Result().(*Result)
	if !ok {
		return nil, errors.New("operation finished without a result")
	}
	return result, nil
}
