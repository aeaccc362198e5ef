package engine

import (
	"fmt"
	"net/http"

	"github.com/ignitionstack/ember/pkg/engine/errors"
)

// Common engine errors
var (
	ErrEngineNotInitialized = fmt.Errorf("engine is not initialized")
	ErrNoGeneration         = fmt.Errorf("no plugin generation has been published")
)

type RequestError struct {
	Message    string `json:"error"`
	StatusCode int    `json:"status"`
	cause      error  `json:"-"`
}

func (e RequestError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e RequestError) Unwrap() error {
	return e.cause
}

func (e RequestError) WithCause(cause error) RequestError {
	e.cause = cause
	return e
}

func NewRequestError(message string, statusCode int) RequestError {
	return RequestError{
		Message:    message,
		StatusCode: statusCode,
	}
}

// Common request errors
func NewNotFoundError(message string) RequestError {
	return NewRequestError(message, http.StatusNotFound)
}

func NewBadRequestError(message string) RequestError {
	return NewRequestError(message, http.StatusBadRequest)
}

func NewInternalServerError(message string) RequestError {
	return NewRequestError(message, http.StatusInternalServerError)
}

func IsRequestError(err error) bool {
	_, ok := err.(RequestError)
	return ok
}

// ErrorToStatusCode maps an error returned by a handler to an HTTP status.
// Missing plugins are 404, a missing export is 501, an expired deadline is
// 504 and any other plugin failure is 502.
func ErrorToStatusCode(err error) int {
	if reqErr, ok := err.(RequestError); ok {
		return reqErr.StatusCode
	}

	de, ok := errors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch de.Domain() {
	case errors.DomainTimeout:
		return http.StatusGatewayTimeout
	case errors.DomainBoot:
		return http.StatusInternalServerError
	}

	switch de.Code() {
	case errors.CodePluginNotFound:
		return http.StatusNotFound
	case errors.CodePluginDisabled:
		return http.StatusForbidden
	case errors.CodeExportNotFound:
		return http.StatusNotImplemented
	case errors.CodeCircuitOpen, errors.CodeCapacityExhausted, errors.CodeSandboxClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
