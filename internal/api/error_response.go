package api

// error_response.go maps the errors raised while handling a request onto the JSON error body returned to the client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/hydrocred/hydrocred/internal/identity"
	"github.com/hydrocred/hydrocred/internal/logger"
	"github.com/hydrocred/hydrocred/internal/workflow"
)

// ErrorResponse is the error body returned by every endpoint
type ErrorResponse struct {

	// The HTTP method used to make the request e.g. GET, POST, etc
	HTTPMethod string `json:"httpMethod"`

	// The URI that was requested
	RequestURI string `json:"requestUri"`

	// The HTTP status code returned
	StatusCode int `json:"statusCode"`

	// A standard short description corresponding to the HTTP status code
	StatusCodeText string `json:"statusCodeText"`

	// A long description corresponding to the HTTP status code with additional information
	StatusCodeMessage string `json:"statusCodeMessage,omitempty"`

	// The request id assigned by the server; quote it when reporting a problem
	ProviderCorrelationReference string `json:"providerCorrelationReference,omitempty"`

	// The DateTime corresponding to the error occurring
	ErrorDateTime string `json:"errorDateTime"`

	// An array of errors providing more detail about the root cause
	Errors []DetailedError `json:"errors"`
}

// DetailedError represents a detailed error in the error response
type DetailedError struct {
	// error code: 7000-7999 for technical errors, 8000-8999 for functional errors
	ErrorCode        ErrorCode `json:"errorCode"`
	ErrorCodeText    string    `json:"errorCodeText"`
	ErrorCodeMessage string    `json:"errorCodeMessage"`

	// Reason is the ledger's rejection reason for settlement rejections
	Reason string `json:"reason,omitempty"`

	// Retryable is set when repeating the same call may succeed
	Retryable bool `json:"retryable,omitempty"`
}

type mapping struct {
	status int
	code   ErrorCode
	text   string
}

var workflowMappings = map[workflow.ErrorCode]mapping{
	workflow.ErrCodeNotFound:           {http.StatusNotFound, ErrCodeNotFound, "Not found"},
	workflow.ErrCodeForbidden:          {http.StatusForbidden, ErrCodeForbidden, "Forbidden"},
	workflow.ErrCodeInvalidState:       {http.StatusConflict, ErrCodeInvalidState, "Invalid state"},
	workflow.ErrCodeDuplicateBatch:     {http.StatusConflict, ErrCodeDuplicateBatch, "Duplicate batch"},
	workflow.ErrCodeExpired:            {http.StatusGone, ErrCodeExpired, "Certification expired"},
	workflow.ErrCodeSettlementRejected: {http.StatusUnprocessableEntity, ErrCodeSettlementRejected, "Settlement rejected"},
	workflow.ErrCodeSettlementUnknown:  {http.StatusGatewayTimeout, ErrCodeSettlementUnknown, "Settlement outcome unknown"},
	workflow.ErrCodeInvalidAmount:      {http.StatusBadRequest, ErrCodeInvalidAmount, "Invalid amount"},
	workflow.ErrCodeValidation:         {http.StatusBadRequest, ErrCodeValidation, "Validation failed"},
	workflow.ErrCodeUnauthorized:       {http.StatusUnauthorized, ErrCodeUnauthorized, "Unauthorized"},
}

var identityMappings = map[identity.ErrorCode]mapping{
	identity.ErrCodeNotFound:   {http.StatusNotFound, ErrCodeNotFound, "Not found"},
	identity.ErrCodeForbidden:  {http.StatusForbidden, ErrCodeForbidden, "Forbidden"},
	identity.ErrCodeValidation: {http.StatusBadRequest, ErrCodeValidation, "Validation failed"},
	identity.ErrCodeConflict:   {http.StatusConflict, ErrCodeConflict, "Conflict"},
}

var apiMappings = map[ErrorCode]mapping{
	ErrCodeMalformedRequest:  {http.StatusBadRequest, ErrCodeMalformedRequest, "Malformed request"},
	ErrCodeValidation:        {http.StatusBadRequest, ErrCodeValidation, "Validation failed"},
	ErrCodeUnauthorized:      {http.StatusUnauthorized, ErrCodeUnauthorized, "Unauthorized"},
	ErrCodeForbidden:         {http.StatusForbidden, ErrCodeForbidden, "Forbidden"},
	ErrCodeNotFound:          {http.StatusNotFound, ErrCodeNotFound, "Not found"},
	ErrCodeRateLimitExceeded: {http.StatusTooManyRequests, ErrCodeRateLimitExceeded, "Rate limit exceeded"},
	ErrCodeRequestTooLarge:   {http.StatusRequestEntityTooLarge, ErrCodeRequestTooLarge, "Request too large"},
}

var internalMapping = mapping{http.StatusInternalServerError, ErrCodeInternalError, "Internal Error"}

// MapErrorToResponse maps api, workflow and identity errors to an error response.
//
// Internal errors are reported with a generic message; the full error is logged server-side by
// RespondWithErrorResponse.
func MapErrorToResponse(err error, r *http.Request) *ErrorResponse {
	requestID := middleware.GetReqID(r.Context())

	var wfErr *workflow.Error
	if errors.As(err, &wfErr) {
		m, ok := workflowMappings[wfErr.Code()]
		if !ok {
			return newErrorResponse(r, requestID, internalMapping, "An internal error occurred")
		}
		resp := newErrorResponse(r, requestID, m, wfErr.Message())
		resp.Errors[0].Reason = string(wfErr.SettlementReason())
		resp.Errors[0].Retryable = wfErr.Retryable()
		return resp
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		m, ok := apiMappings[apiErr.Code()]
		if !ok {
			return newErrorResponse(r, requestID, internalMapping, "An internal error occurred")
		}
		return newErrorResponse(r, requestID, m, apiErr.message)
	}

	var idErr *identity.IdentityError
	if errors.As(err, &idErr) {
		m, ok := identityMappings[idErr.Code()]
		if !ok {
			return newErrorResponse(r, requestID, internalMapping, "An internal error occurred")
		}
		return newErrorResponse(r, requestID, m, idErr.Error())
	}

	// not expected - log the unmapped error so it can be given a mapping
	logger.ContextRequestLogger(r.Context()).Error("BUG: Unmapped error type in MapErrorToResponse",
		slog.String("error_type", fmt.Sprintf("%T", err)),
		slog.String("error", err.Error()),
		slog.String("request_id", requestID),
	)
	return newErrorResponse(r, requestID, internalMapping, "An internal error occurred")
}

func newErrorResponse(r *http.Request, requestID string, m mapping, message string) *ErrorResponse {
	return &ErrorResponse{
		HTTPMethod:                   r.Method,
		RequestURI:                   r.RequestURI,
		StatusCode:                   m.status,
		StatusCodeText:               http.StatusText(m.status),
		StatusCodeMessage:            m.text,
		ProviderCorrelationReference: requestID,
		ErrorDateTime:                time.Now().UTC().Format(time.RFC3339),
		Errors: []DetailedError{
			{
				ErrorCode:        m.code,
				ErrorCodeText:    m.text,
				ErrorCodeMessage: message,
			},
		},
	}
}
