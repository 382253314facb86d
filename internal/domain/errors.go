package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingScope = errors.New("no active scope")
	ErrTransport    = errors.New("remote call failed")
	ErrValidation   = errors.New("invalid gesture")
	ErrNotFound     = errors.New("not found")
)

// MissingScopeError is returned when an operation is attempted with no active scope.
// It is raised before any remote call is made.
type MissingScopeError struct {
	Op string
}

func (e *MissingScopeError) Error() string {
	if e.Op == "" {
		return ErrMissingScope.Error()
	}
	return fmt.Sprintf("%s: %s", e.Op, ErrMissingScope)
}

func (e *MissingScopeError) Is(target error) bool { return target == ErrMissingScope }

// TransportError wraps a failed remote call.
//
// Status is the HTTP status when the remote answered, 0 when the request
// never completed (network error, timeout, canceled context).
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, ErrTransport)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool {
	if target == ErrTransport {
		return true
	}
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Retryable reports whether repeating the same call may succeed.
func (e *TransportError) Retryable() bool {
	switch {
	case e.Status == 0:
		return true
	case e.Status == http.StatusTooManyRequests:
		return true
	case e.Status >= 500:
		return true
	}
	return false
}

// ValidationError marks a malformed gesture. Gestures failing validation are ignored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func NewMissingScope(op string) error { return &MissingScopeError{Op: op} }

func NewTransport(op string, status int, err error) error {
	return &TransportError{Op: op, Status: status, Err: err}
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsMissingScope(err error) bool { return errors.Is(err, ErrMissingScope) }
func IsTransport(err error) bool    { return errors.Is(err, ErrTransport) }
func IsValidation(err error) bool   { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }

// IsRetryable reports whether err carries a retryable transport failure.
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable()
	}
	return false
}
