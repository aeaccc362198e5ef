package spinner

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModelResult(t *testing.T) {
	m := NewModel("Discovering plugins...")
	assert.Contains(t, m.View(), "Discovering plugins...")

	next, cmd := m.Update(StepMsg("Compiling"))
	assert.Nil(t, cmd)
	assert.Contains(t, next.View(), "Compiling")

	next, cmd = next.Update(ResultMsg{Result: 42})
	assert.NotNil(t, cmd)
	final := next.(Model)
	assert.True(t, final.HasResult())
	assert.Equal(t, 42, final.Result())
	assert.Empty(t, final.View())
}

func TestModelError(t *testing.T) {
	next, _ := NewModel("x").Update(ErrorMsg{Err: errors.New("boom")})
	final := next.(Model)
	assert.True(t, final.HasError())
	assert.EqualError(t, final.Err(), "boom")
}
