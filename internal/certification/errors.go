package certification

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrCodeValidation       ErrorCode = "validation"
	ErrCodeInvalidSignature ErrorCode = "invalid_signature"
	ErrCodeKeyManagement    ErrorCode = "key_management"
	ErrCodeInternal         ErrorCode = "internal"
)

// CertificationError represents a structured error from the certification package
type CertificationError struct {

	// code is the error code
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *CertificationError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *CertificationError) Code() ErrorCode { return e.code }
func (e *CertificationError) Unwrap() error   { return e.wrapped }

// NewValidationError creates a validation error for a malformed payload or domain.
func NewValidationError(msg string) error {
	return &CertificationError{code: ErrCodeValidation, message: msg}
}

// WrapValidationError wraps an existing error as a validation error.
func WrapValidationError(err error, msg string) error {
	return &CertificationError{code: ErrCodeValidation, message: msg, wrapped: err}
}

// NewSignatureError is used when a signature is malformed or was not produced by the payload's certifier.
func NewSignatureError(msg string) error {
	return &CertificationError{code: ErrCodeInvalidSignature, message: msg}
}

// WrapSignatureError wraps an existing error as a signature error.
func WrapSignatureError(err error, msg string) error {
	return &CertificationError{code: ErrCodeInvalidSignature, message: msg, wrapped: err}
}

// NewKeyManagementError is used for key loading failures and unknown certifiers.
func NewKeyManagementError(msg string) error {
	return &CertificationError{code: ErrCodeKeyManagement, message: msg}
}

// WrapKeyManagementError wraps an existing error as a key management error.
func WrapKeyManagementError(err error, msg string) error {
	return &CertificationError{code: ErrCodeKeyManagement, message: msg, wrapped: err}
}

// WrapInternalError wraps an unexpected failure from the signing library.
func WrapInternalError(err error, msg string) error {
	return &CertificationError{code: ErrCodeInternal, message: msg, wrapped: err}
}

// ErrorCodeOf returns the code of a certification error, or "" if err is not one.
func ErrorCodeOf(err error) ErrorCode {
	var ce *CertificationError
	if errors.As(err, &ce) {
		return ce.code
	}
	return ""
}
