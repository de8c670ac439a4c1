package localizer

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBackends is returned when a chain is built without backends.
	ErrNoBackends = errors.New("localizer: no detection backends")

	// ErrEmptyFrame is reported when the frame has no pixels.
	ErrEmptyFrame = errors.New("localizer: empty frame")

	// ErrBackendPanic wraps a panic recovered from a backend.
	ErrBackendPanic = errors.New("localizer: backend panicked")
)

// BackendError wraps an error with the backend that produced it.
type BackendError struct {
	Backend string
	Err     error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("localizer [%s]: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// ChainError aggregates the failures of every backend in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "localizer chain: no errors recorded"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("localizer chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("localizer chain: all %d backends failed, last error: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap returns the last error in the chain.
func (e *ChainError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}
