package requests

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrCodeNotFound       ErrorCode = "not_found"
	ErrCodeInvalidState   ErrorCode = "invalid_state"
	ErrCodeDuplicateBatch ErrorCode = "duplicate_batch"
	ErrCodeExpired        ErrorCode = "expired"
	ErrCodeInvalidAmount  ErrorCode = "invalid_amount"
	ErrCodeValidation     ErrorCode = "validation"
	ErrCodeInternal       ErrorCode = "internal"
)

// RequestError represents a structured error from the requests package
type RequestError struct {
	code    ErrorCode
	message string
	wrapped error
}

func (e *RequestError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *RequestError) Code() ErrorCode { return e.code }
func (e *RequestError) Unwrap() error   { return e.wrapped }

func NewNotFoundError(id int64) error {
	return &RequestError{code: ErrCodeNotFound, message: fmt.Sprintf("production request %d not found", id)}
}

// NewInvalidStateError is returned when a transition is attempted from a status that does not allow it.
func NewInvalidStateError(id int64, from, to Status) error {
	return &RequestError{
		code:    ErrCodeInvalidState,
		message: fmt.Sprintf("production request %d is %s and cannot move to %s", id, from, to),
	}
}

// NewDuplicateBatchError does not name the conflicting request.
func NewDuplicateBatchError() error {
	return &RequestError{code: ErrCodeDuplicateBatch, message: "this production batch has already been certified"}
}

func NewExpiredError(id int64) error {
	return &RequestError{code: ErrCodeExpired, message: fmt.Sprintf("certification for production request %d has expired", id)}
}

func NewInvalidAmountError(amount int64) error {
	return &RequestError{code: ErrCodeInvalidAmount, message: fmt.Sprintf("amount must be greater than 0, got %d", amount)}
}

func NewValidationError(msg string) error {
	return &RequestError{code: ErrCodeValidation, message: msg}
}

func WrapInternalError(err error, msg string) error {
	return &RequestError{code: ErrCodeInternal, message: msg, wrapped: err}
}

// ErrorCodeOf returns the code of a requests error, or "" if err is not one.
func ErrorCodeOf(err error) ErrorCode {
	var re *RequestError
	if errors.As(err, &re) {
		return re.code
	}
	return ""
}
