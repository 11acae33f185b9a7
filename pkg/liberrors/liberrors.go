// Package liberrors contains error types returned by the relay.
package liberrors

import "fmt"

// ErrNotFound is returned when a mount path has no matching entry
// in the registry.
type ErrNotFound struct {
	Path string
}

// Error implements the error interface.
func (e ErrNotFound) Error() string {
	return fmt.Sprintf("mount not found: %s", e.Path)
}

// ErrForbidden is returned when a request is syntactically valid but
// not allowed given the current state of the mount or session.
type ErrForbidden struct {
	Reason string
}

// Error implements the error interface.
func (e ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

// ErrUnauthorized is returned when credentials are missing or wrong.
type ErrUnauthorized struct {
	Realm string
}

// Error implements the error interface.
func (e ErrUnauthorized) Error() string {
	return fmt.Sprintf("unauthorized (realm %q)", e.Realm)
}

// ErrConflict is returned when an operation collides with the
// existing state of a mount, e.g. a second ANNOUNCE to an active path.
type ErrConflict struct {
	Path string
}

// Error implements the error interface.
func (e ErrConflict) Error() string {
	return fmt.Sprintf("mount already active: %s", e.Path)
}

// ErrPortUnavailable is returned when a SETUP requests a specific
// server port pair that is not free.
type ErrPortUnavailable struct {
	Port int
}

// Error implements the error interface.
func (e ErrPortUnavailable) Error() string {
	return fmt.Sprintf("UDP port %d is not available", e.Port)
}

// ErrPoolExhausted is returned when the port pool has no free pairs left.
type ErrPoolExhausted struct{}

// Error implements the error interface.
func (e ErrPoolExhausted) Error() string {
	return "port pool exhausted"
}

// ErrTransportInvalid is returned when a Transport header cannot be
// satisfied, e.g. asks for a protocol the mount isn't carrying.
type ErrTransportInvalid struct {
	Reason string
}

// Error implements the error interface.
func (e ErrTransportInvalid) Error() string {
	return fmt.Sprintf("invalid transport: %s", e.Reason)
}

// ErrInternal wraps an unexpected failure that isn't the client's fault.
type ErrInternal struct {
	Err error
}

// Error implements the error interface.
func (e ErrInternal) Error() string {
	return fmt.Sprintf("internal error: %v", e.Err)
}

// Unwrap allows errors.Is/errors.As to see through ErrInternal.
func (e ErrInternal) Unwrap() error {
	return e.Err
}

// ErrSessionNotFound is returned when a Session header references an
// id the server doesn't recognize.
type ErrSessionNotFound struct{}

// Error implements the error interface.
func (e ErrSessionNotFound) Error() string {
	return "session not found"
}

// ErrMethodNotValidInState is returned when a method is sent while the
// session's state machine is in a state that doesn't allow it.
type ErrMethodNotValidInState struct {
	Method string
	State  string
}

// Error implements the error interface.
func (e ErrMethodNotValidInState) Error() string {
	return fmt.Sprintf("method %s is not valid while session is %s", e.Method, e.State)
}
