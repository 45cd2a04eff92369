package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/hydrocred/hydrocred/internal/certification"
	"github.com/hydrocred/hydrocred/internal/identity"
	"github.com/hydrocred/hydrocred/internal/ledger"
	"github.com/hydrocred/hydrocred/internal/requests"
)

type ErrorCode string

const (
	ErrCodeNotFound           ErrorCode = "not_found"
	ErrCodeForbidden          ErrorCode = "forbidden"
	ErrCodeInvalidState       ErrorCode = "invalid_state"
	ErrCodeDuplicateBatch     ErrorCode = "duplicate_batch"
	ErrCodeExpired            ErrorCode = "expired"
	ErrCodeSettlementRejected ErrorCode = "settlement_rejected"
	ErrCodeSettlementUnknown  ErrorCode = "settlement_unknown"
	ErrCodeInvalidAmount      ErrorCode = "invalid_amount"
	ErrCodeValidation         ErrorCode = "validation"
	ErrCodeUnauthorized       ErrorCode = "unauthorized"
	ErrCodeInternal           ErrorCode = "internal"
)

// Error is the typed outcome of a failed workflow operation.
type Error struct {

	// code is the error code
	code ErrorCode

	// message is a human-readable error message, safe to return to the caller
	message string

	// reason is the ledger rejection reason, set for settlement rejections only
	reason ledger.Reason

	// wrapped is the optional underlying error
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *Error) Code() ErrorCode { return e.code }
func (e *Error) Unwrap() error   { return e.wrapped }

// Message returns the caller-facing message without the wrapped cause.
func (e *Error) Message() string { return e.message }

// SettlementReason returns the collaborator's rejection reason for settlement_rejected errors.
func (e *Error) SettlementReason() ledger.Reason { return e.reason }

// Retryable reports whether the same call may succeed if repeated unchanged.
func (e *Error) Retryable() bool {
	return e.code == ErrCodeSettlementUnknown || e.code == ErrCodeSettlementRejected
}

func newError(code ErrorCode, msg string) error {
	return &Error{code: code, message: msg}
}

func wrapError(code ErrorCode, err error, msg string) error {
	return &Error{code: code, message: msg, wrapped: err}
}

func NewForbiddenError(msg string) error {
	return newError(ErrCodeForbidden, msg)
}

func NewValidationError(msg string) error {
	return newError(ErrCodeValidation, msg)
}

func NewUnauthorizedError(msg string) error {
	return newError(ErrCodeUnauthorized, msg)
}

func WrapInternalError(err error, msg string) error {
	return wrapError(ErrCodeInternal, err, msg)
}

func NewSettlementRejectedError(reason ledger.Reason, err error) error {
	return &Error{
		code:    ErrCodeSettlementRejected,
		message: fmt.Sprintf("the ledger refused the settlement (%s)", reason),
		reason:  reason,
		wrapped: err,
	}
}

func NewSettlementUnknownError(err error) error {
	return wrapError(ErrCodeSettlementUnknown, err, "the settlement outcome is unknown; retry the claim")
}

// ErrorCodeOf returns the workflow code of err, or "" if err is not a workflow error.
func ErrorCodeOf(err error) ErrorCode {
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return wfErr.code
	}
	return ""
}

// outcome is the audit and metrics label for err.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if code := ErrorCodeOf(err); code != "" {
		return string(code)
	}
	return string(ErrCodeInternal)
}

// translate maps the errors of the packages the controller calls onto the workflow taxonomy.
// Messages from the lower layers are kept because they already describe the concrete reason.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return err
	}

	var reqErr *requests.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Code() {
		case requests.ErrCodeNotFound:
			return newError(ErrCodeNotFound, reqErr.Error())
		case requests.ErrCodeInvalidState:
			return newError(ErrCodeInvalidState, reqErr.Error())
		case requests.ErrCodeDuplicateBatch:
			return newError(ErrCodeDuplicateBatch, reqErr.Error())
		case requests.ErrCodeExpired:
			return newError(ErrCodeExpired, reqErr.Error())
		case requests.ErrCodeInvalidAmount:
			return newError(ErrCodeInvalidAmount, reqErr.Error())
		case requests.ErrCodeValidation:
			return newError(ErrCodeValidation, reqErr.Error())
		default:
			return WrapInternalError(err, "production request store failure")
		}
	}

	var idErr *identity.IdentityError
	if errors.As(err, &idErr) {
		switch idErr.Code() {
		case identity.ErrCodeNotFound:
			return newError(ErrCodeNotFound, idErr.Error())
		case identity.ErrCodeForbidden:
			return newError(ErrCodeForbidden, idErr.Error())
		case identity.ErrCodeValidation:
			return newError(ErrCodeValidation, idErr.Error())
		default:
			return WrapInternalError(err, "identity directory failure")
		}
	}

	var certErr *certification.CertificationError
	if errors.As(err, &certErr) {
		switch certErr.Code() {
		case certification.ErrCodeValidation:
			return newError(ErrCodeValidation, certErr.Error())
		default:
			return WrapInternalError(err, "certification signing failure")
		}
	}

	if reason, ok := ledger.RejectionReason(err); ok {
		return NewSettlementRejectedError(reason, err)
	}
	if ledger.ErrorCodeOf(err) == ledger.ErrCodeUnknown || errors.Is(err, context.DeadlineExceeded) {
		return NewSettlementUnknownError(err)
	}

	return WrapInternalError(err, "unexpected failure")
}
