package api

// errors.go defines the error codes returned in API error responses

import "fmt"

// APIError is raised by the HTTP layer itself (request decoding, authentication, rate limiting) before a request
// reaches the workflow.
type APIError struct {
	// code is the API error code
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *APIError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *APIError) Code() ErrorCode { return e.code }
func (e *APIError) Unwrap() error   { return e.wrapped }

// ErrorCode is used in errors returned by the API.
//
//   - 7000-7999 technical errors: the request could not be processed because of the supplied data or a
//     technical failure.
//   - 8000-8999 functional errors: the request was understood but a workflow rule prevents it.
type ErrorCode int

const (
	// ErrCodeMalformedRequest is used when the request body or a path parameter cannot be parsed
	ErrCodeMalformedRequest ErrorCode = 7001

	// ErrCodeValidation is used when a parsed request breaks a field rule (missing evidence, bad checksum, ttl out of range)
	ErrCodeValidation ErrorCode = 7002

	// ErrCodeUnauthorized is used when the session token is missing or cannot be verified
	ErrCodeUnauthorized ErrorCode = 7003

	// ErrCodeRateLimitExceeded is only used in the middleware
	ErrCodeRateLimitExceeded ErrorCode = 7004

	// ErrCodeRequestTooLarge is only used in the middleware
	ErrCodeRequestTooLarge ErrorCode = 7005

	// ErrCodeInternalError is used when an internal server error occurs
	ErrCodeInternalError ErrorCode = 7006

	// ErrCodeSettlementUnknown is used when the ledger did not answer in time. The claim can be retried.
	ErrCodeSettlementUnknown ErrorCode = 7007

	ErrCodeNotFound           ErrorCode = 8001
	ErrCodeForbidden          ErrorCode = 8002
	ErrCodeInvalidState       ErrorCode = 8003
	ErrCodeDuplicateBatch     ErrorCode = 8004
	ErrCodeExpired            ErrorCode = 8005
	ErrCodeSettlementRejected ErrorCode = 8006
	ErrCodeInvalidAmount      ErrorCode = 8007

	// ErrCodeConflict is used when an identity is registered twice
	ErrCodeConflict ErrorCode = 8008
)

// NewMalformedRequestError creates an error for malformed requests.
func NewMalformedRequestError(msg string) error {
	return &APIError{code: ErrCodeMalformedRequest, message: msg}
}

// WrapMalformedRequestError wraps an existing error as a malformed request error.
func WrapMalformedRequestError(err error, msg string) error {
	return &APIError{code: ErrCodeMalformedRequest, message: msg, wrapped: err}
}

func NewValidationError(msg string) error {
	return &APIError{code: ErrCodeValidation, message: msg}
}

// NewUnauthorizedError is returned by the session middleware.
func NewUnauthorizedError(msg string) error {
	return &APIError{code: ErrCodeUnauthorized, message: msg}
}

func WrapUnauthorizedError(err error, msg string) error {
	return &APIError{code: ErrCodeUnauthorized, message: msg, wrapped: err}
}

func NewForbiddenError(msg string) error {
	return &APIError{code: ErrCodeForbidden, message: msg}
}

func NewNotFoundError(msg string) error {
	return &APIError{code: ErrCodeNotFound, message: msg}
}

func NewInternalError(msg string) error {
	return &APIError{code: ErrCodeInternalError, message: msg}
}

func WrapInternalError(err error, msg string) error {
	return &APIError{code: ErrCodeInternalError, message: msg, wrapped: err}
}

// NewRateLimitError creates a rate limit exceeded error.
func NewRateLimitError(msg string) error {
	return &APIError{code: ErrCodeRateLimitExceeded, message: msg}
}

// NewRequestTooLargeError creates a request too large error.
func NewRequestTooLargeError(msg string) error {
	return &APIError{code: ErrCodeRequestTooLarge, message: msg}
}
