package utils

import (
	"context"
	"fmt"

	"github.com/ignitionstack/ember/pkg/engine/errors"
)

// Result represents a generic result with error.
type Result[T any] struct {
	Value T
	Err   error
}

// ExecuteWithContext runs operation on its own goroutine and returns its
// result, or a TimeoutError as soon as ctx is done. The operation is expected
// to observe ctx itself; it is not abandoned, only no longer waited for.
// A panic in operation is returned as a guest trap.
func ExecuteWithContext[T any](ctx context.Context, operation func() (T, error)) (T, error) {
	var zero T

	// Buffered so the goroutine never blocks after the caller stops waiting
	resultCh := make(chan Result[T], 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- Result[T]{Err: errors.New(errors.DomainInvocation, errors.CodeGuestTrap,
					fmt.Sprintf("Operation panicked: %v", r))}
			}
		}()
		value, err := operation()
		resultCh <- Result[T]{Value: value, Err: err}
	}()

	select {
	case result := <-resultCh:
		return result.Value, result.Err
	case <-ctx.Done():
		return zero, errors.FromContext(ctx)
	}
}
