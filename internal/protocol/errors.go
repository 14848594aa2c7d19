// internal/protocol/errors.go
package protocol

import "fmt"

// Typed errors for the registry's control-plane surface. Callers classify
// them with errors.As; none of them is fatal to the process.

// AlreadyRegisteredError is returned when registering a scheme the engine
// already handles or the registry already holds.
type AlreadyRegisteredError struct {
	Scheme string
}

// Error implements the error interface.
func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("scheme %q is already registered", e.Scheme)
}

// NotRegisteredError is returned when unregistering or unintercepting a
// scheme the registry does not hold.
type NotRegisteredError struct {
	Scheme string
}

// Error implements the error interface.
func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("scheme %q has not been registered", e.Scheme)
}

// NothingToInterceptError is returned when intercepting a scheme the engine
// does not handle.
type NothingToInterceptError struct {
	Scheme string
}

// Error implements the error interface.
func (e *NothingToInterceptError) Error() string {
	return fmt.Sprintf("scheme %q does not exist", e.Scheme)
}

// CannotInterceptCustomSchemeError is returned when intercepting a scheme
// that already has a registry entry of its own.
type CannotInterceptCustomSchemeError struct {
	Scheme string
}

// Error implements the error interface.
func (e *CannotInterceptCustomSchemeError) Error() string {
	return fmt.Sprintf("cannot intercept custom scheme %q", e.Scheme)
}
