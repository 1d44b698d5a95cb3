package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across the service. Handlers map them to HTTP status codes.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state transition")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrPrecondition = errors.New("precondition failed")
	ErrAuth         = errors.New("gateway authentication failed")
	ErrGateway      = errors.New("gateway unavailable")
)

// DomainError carries a machine-readable code and a client-safe message
// alongside the sentinel it classifies as.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewNotFoundError reports a missing entity.
func NewNotFoundError(entity, id string) *DomainError {
	return &DomainError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s '%s' not found", entity, id),
		Err:     ErrNotFound,
	}
}

// NewConflictError reports a concurrent modification or a uniqueness violation.
func NewConflictError(message string) *DomainError {
	return &DomainError{Code: "CONFLICT", Message: message, Err: ErrConflict}
}

// NewInvalidStateError reports a forbidden state transition.
func NewInvalidStateError(from, to string) *DomainError {
	return &DomainError{
		Code:    "INVALID_STATE",
		Message: fmt.Sprintf("cannot transition from '%s' to '%s'", from, to),
		Err:     ErrInvalidState,
	}
}

// NewValidationError reports malformed caller input.
func NewValidationError(message string) *DomainError {
	return &DomainError{Code: "VALIDATION_ERROR", Message: message, Err: ErrValidation}
}

// NewForbiddenError reports an authenticated caller lacking permission.
func NewForbiddenError(message string) *DomainError {
	return &DomainError{Code: "FORBIDDEN", Message: message, Err: ErrForbidden}
}

// NewPreconditionError reports an operation invoked on an entity in the wrong state.
// It signals a programming error and is never retried.
func NewPreconditionError(message string) *DomainError {
	return &DomainError{Code: "PRECONDITION_FAILED", Message: message, Err: ErrPrecondition}
}
