package identity

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrCodeNotFound   ErrorCode = "not_found"
	ErrCodeForbidden  ErrorCode = "forbidden"
	ErrCodeValidation ErrorCode = "validation"
	ErrCodeConflict   ErrorCode = "conflict"
	ErrCodeInternal   ErrorCode = "internal"
)

// IdentityError represents a structured error from the identity package
type IdentityError struct {
	code    ErrorCode
	message string
	wrapped error
}

func (e *IdentityError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *IdentityError) Code() ErrorCode { return e.code }
func (e *IdentityError) Unwrap() error   { return e.wrapped }

// NewNotFoundError is returned when no identity is registered for a wallet address.
func NewNotFoundError(msg string) error {
	return &IdentityError{code: ErrCodeNotFound, message: msg}
}

// NewForbiddenError is returned when the acting identity may not perform the operation.
func NewForbiddenError(msg string) error {
	return &IdentityError{code: ErrCodeForbidden, message: msg}
}

// NewValidationError is returned for malformed addresses, unknown roles or jurisdictions that do not fit the role.
func NewValidationError(msg string) error {
	return &IdentityError{code: ErrCodeValidation, message: msg}
}

// NewConflictError is returned when an identity is already registered for the address.
func NewConflictError(msg string) error {
	return &IdentityError{code: ErrCodeConflict, message: msg}
}

// WrapInternalError wraps a storage or unexpected failure.
func WrapInternalError(err error, msg string) error {
	return &IdentityError{code: ErrCodeInternal, message: msg, wrapped: err}
}

// ErrorCodeOf returns the code of an identity error, or "" if err is not one.
func ErrorCodeOf(err error) ErrorCode {
	var ie *IdentityError
	if errors.As(err, &ie) {
		return ie.code
	}
	return ""
}
