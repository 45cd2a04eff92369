package api

// responses.go provides helper functions for decoding requests and sending responses from the API handlers.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hydrocred/hydrocred/internal/logger"
)

// RespondWithErrorResponse maps err and sends the error body.
//
// It logs the full error details server-side and sends a sanitized response to the client
func RespondWithErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse := MapErrorToResponse(err, r)

	attrs := []any{
		slog.String("error", err.Error()),
		slog.Int("status_code", errorResponse.StatusCode),
		slog.String("error_code_text", errorResponse.StatusCodeMessage),
		slog.String("request_id", errorResponse.ProviderCorrelationReference),
	}
	reqLogger := logger.ContextRequestLogger(r.Context())
	if errorResponse.StatusCode >= http.StatusInternalServerError {
		reqLogger.Error("Request failed", attrs...)
	} else {
		reqLogger.Warn("Request failed", attrs...)
	}

	RespondWithJSONPayload(w, errorResponse.StatusCode, errorResponse)
}

// RespondWithJSONPayload sends a JSON response with the given status code
func RespondWithJSONPayload(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			// headers are already written
			slog.Error("Failed to encode JSON response",
				slog.String("error", err.Error()),
			)
		}
	}
}

// DecodeJSONBody decodes a single JSON object from the request body into dst. Unknown fields are rejected.
//
// Bodies cut off by the size limit middleware are reported as too large rather than malformed.
func DecodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return NewMalformedRequestError("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return NewRequestTooLargeError(fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		case errors.Is(err, io.EOF):
			return NewMalformedRequestError("request body is required")
		default:
			return WrapMalformedRequestError(err, "request body is not valid JSON")
		}
	}
	if dec.More() {
		return NewMalformedRequestError("request body must contain a single JSON object")
	}
	return nil
}
