package engine

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ignitionstack/ember/pkg/engine/errors"
)

func TestErrorToStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"request error", NewBadRequestError("bad"), http.StatusBadRequest},
		{"plain error", fmt.Errorf("boom"), http.StatusInternalServerError},
		{"plugin not found", errors.ErrPluginNotFound.WithPlugin("x"), http.StatusNotFound},
		{"plugin disabled", errors.ErrPluginDisabled, http.StatusForbidden},
		{"missing export", errors.ErrExportNotFound, http.StatusNotImplemented},
		{"timeout", errors.ErrExecutionTimeout, http.StatusGatewayTimeout},
		{"cancelled", errors.New(errors.DomainTimeout, errors.CodeExecutionCancelled, "c"), http.StatusGatewayTimeout},
		{"trap", errors.New(errors.DomainInvocation, errors.CodeGuestTrap, "t"), http.StatusBadGateway},
		{"decode", errors.New(errors.DomainInvocation, errors.CodeDecodeFailed, "d"), http.StatusBadGateway},
		{"circuit open", errors.ErrCircuitOpen, http.StatusServiceUnavailable},
		{"capacity", errors.New(errors.DomainInvocation, errors.CodeCapacityExhausted, "c"), http.StatusServiceUnavailable},
		{"boot", errors.ErrDirectoryUnreadable, http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("call: %w", errors.ErrExportNotFound), http.StatusNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorToStatusCode(tt.err))
		})
	}
}

func TestRequestErrorCause(t *testing.T) {
	err := NewInternalServerError("failed").WithCause(context.Canceled)
	assert.Equal(t, "failed: context canceled", err.Error())
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsRequestError(err))
}
