package ledger

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrCodeRejected   ErrorCode = "rejected"
	ErrCodeUnknown    ErrorCode = "unknown"
	ErrCodeNotFound   ErrorCode = "not_found"
	ErrCodeValidation ErrorCode = "validation"
)

// Reason is the collaborator's explanation for refusing a settlement.
type Reason string

const (
	ReasonAlreadySettled            Reason = "ALREADY_SETTLED"
	ReasonExpired                   Reason = "EXPIRED"
	ReasonBadSignature              Reason = "BAD_SIGNATURE"
	ReasonInsufficientAuthorization Reason = "INSUFFICIENT_AUTHORIZATION"
	ReasonFault                     Reason = "FAULT"
)

// ParseReason maps a collaborator reason string onto the known set. Anything else is a generic fault.
func ParseReason(s string) Reason {
	switch r := Reason(s); r {
	case ReasonAlreadySettled, ReasonExpired, ReasonBadSignature, ReasonInsufficientAuthorization:
		return r
	default:
		return ReasonFault
	}
}

// LedgerError represents a structured error from the settlement collaborator
type LedgerError struct {
	code    ErrorCode
	reason  Reason
	message string
	wrapped error
}

func (e *LedgerError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *LedgerError) Code() ErrorCode { return e.code }
func (e *LedgerError) Unwrap() error   { return e.wrapped }

// Reason is set for rejections only.
func (e *LedgerError) Reason() Reason { return e.reason }

// NewRejectionError is a definite refusal: the collaborator did not and will not settle this submission.
func NewRejectionError(reason Reason, msg string) error {
	return &LedgerError{code: ErrCodeRejected, reason: reason, message: msg}
}

// NewUnknownError reports an ambiguous outcome; the settlement may have landed.
func NewUnknownError(msg string) error {
	return &LedgerError{code: ErrCodeUnknown, message: msg}
}

func WrapUnknownError(err error, msg string) error {
	return &LedgerError{code: ErrCodeUnknown, message: msg, wrapped: err}
}

func NewNotFoundError(requestID int64) error {
	return &LedgerError{code: ErrCodeNotFound, message: fmt.Sprintf("no settlement recorded for request %d", requestID)}
}

func NewValidationError(msg string) error {
	return &LedgerError{code: ErrCodeValidation, message: msg}
}

func ErrorCodeOf(err error) ErrorCode {
	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		return ledgerErr.code
	}
	return ""
}

// RejectionReason returns the reason when err is a rejection.
func RejectionReason(err error) (Reason, bool) {
	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) && ledgerErr.code == ErrCodeRejected {
		return ledgerErr.reason, true
	}
	return "", false
}
