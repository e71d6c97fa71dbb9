package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrInternalServer = errors.New("internal server error")

	// ErrPersistenceUnavailable covers pool exhaustion and connection failures.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)

// Authentication flow errors
var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrDuplicateUsername       = errors.New("username already registered")
	ErrDuplicateEmail          = errors.New("email already registered")
	ErrInvalidSecondFactorCode = errors.New("invalid second factor code")
	ErrUnauthenticated         = errors.New("not authenticated")
	ErrSecondFactorRequired    = errors.New("second factor verification required")
	ErrSetupNotStarted         = errors.New("two-factor setup not started")
)

// ValidationError carries a user-facing hint for a rejected field.
// It matches ErrInvalidInput under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// UniqueViolationError is returned by the persistence layer when a write collides
// with a unique constraint. Field names the user-facing column that collided.
type UniqueViolationError struct {
	Constraint string
	Field      string
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique violation on %s (%s)", e.Field, e.Constraint)
}

func (e *UniqueViolationError) Is(target error) bool {
	return target == ErrConflict
}
