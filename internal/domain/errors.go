/**
 * @description
 * This file defines the error taxonomy shared by every layer of the banking service.
 * Each failure kind is a sentinel; a *Error wraps one kind together with a
 * user-safe message and, for validation failures, the offending field.
 *
 * @notes
 * - Callers inspect errors with errors.Is against the sentinels below.
 * - The API layer maps each kind to exactly one HTTP status.
 */
package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrAuth              = errors.New("authentication failed")
	ErrForbidden         = errors.New("access denied")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoChange          = errors.New("no changes")
	ErrAlreadyVerified   = errors.New("already verified")
)

// Error carries a failure kind with a message that is safe to show to clients.
type Error struct {
	Kind    error
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

// NewError builds an error of the given kind.
func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewValidationError reports invalid input for a single field. Field may be empty.
func NewValidationError(field, message string) *Error {
	return &Error{Kind: ErrValidation, Field: field, Message: message}
}

func NewNotFoundError(message string) *Error {
	return &Error{Kind: ErrNotFound, Message: message}
}

func NewConflictError(message string) *Error {
	return &Error{Kind: ErrConflict, Message: message}
}

// AsError extracts the *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
