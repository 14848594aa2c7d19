// internal/engine/errors.go
package engine

import "fmt"

// Engine error codes, negative by convention.
const (
	ErrCodeFailed         = -2
	ErrCodeFileNotFound   = -6
	ErrCodeNotImplemented = -11
)

// StatusError is a request failure carrying an engine error code. Jobs fail
// requests with these; callers classify them with errors.As.
type StatusError struct {
	Code int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("engine error %d", e.Code)
}

// NotHandledError is returned when a request's scheme has no entry in the
// factory table.
type NotHandledError struct {
	Scheme string
}

// Error implements the error interface.
func (e *NotHandledError) Error() string {
	return fmt.Sprintf("no handler for scheme %q", e.Scheme)
}
