package auth

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	// ErrCodeInvalidToken is used when a token is malformed, badly signed, expired or names no wallet
	ErrCodeInvalidToken ErrorCode = "invalid_token"

	// ErrCodeKey is used when the verification key cannot be found or loaded
	ErrCodeKey ErrorCode = "key_error"

	// ErrCodeConfig is used when the verifier is misconfigured
	ErrCodeConfig ErrorCode = "config_error"
)

// AuthError represents a structured error from the auth package.
type AuthError struct {
	code    ErrorCode
	message string
	wrapped error
}

func (e *AuthError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *AuthError) Code() ErrorCode { return e.code }
func (e *AuthError) Unwrap() error   { return e.wrapped }

func NewInvalidTokenError(msg string) error {
	return &AuthError{code: ErrCodeInvalidToken, message: msg}
}

func WrapInvalidTokenError(err error, msg string) error {
	return &AuthError{code: ErrCodeInvalidToken, message: msg, wrapped: err}
}

func NewKeyError(msg string) error {
	return &AuthError{code: ErrCodeKey, message: msg}
}

func WrapKeyError(err error, msg string) error {
	return &AuthError{code: ErrCodeKey, message: msg, wrapped: err}
}

func NewConfigError(msg string) error {
	return &AuthError{code: ErrCodeConfig, message: msg}
}

// ErrorCodeOf returns the auth code of err, or "" if err is not an auth error.
func ErrorCodeOf(err error) ErrorCode {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.code
	}
	return ""
}
