package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/nerrad567/coldtag-core/internal/device"
	"github.com/nerrad567/coldtag-core/internal/routecycle"
	"github.com/nerrad567/coldtag-core/internal/telemetry"
)

// Error is the body of an error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error Error `json:"error"`
}

// Error codes.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_error"
	ErrCodeInvalidArgument  = "invalid_argument"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeInvalidState     = "invalid_state"
	ErrCodeIllegalOperation = "illegal_operation"
	ErrCodeInternal         = "internal_error"
	ErrCodeUnavailable      = "unavailable"
	ErrCodeMethodNotAllow   = "method_not_allowed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: Error{Code: code, Message: message}})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeServiceError maps a domain error to its response. Unknown errors are
// logged and answered with a generic 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", requestID(r.Context()),
		)
		writeInternalError(w, "internal server error")
		return
	}
	writeError(w, status, code, err.Error())
}

// statusFor returns the HTTP status and error code for err.
func statusFor(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, routecycle.ErrCycleNotFound):
		return http.StatusNotFound, ErrCodeNotFound

	case errors.Is(err, device.ErrDeviceExists),
		errors.Is(err, routecycle.ErrNodeOccupied):
		return http.StatusConflict, ErrCodeConflict

	case errors.Is(err, routecycle.ErrInvalidState):
		return http.StatusConflict, ErrCodeInvalidState

	case errors.Is(err, routecycle.ErrCycleTerminal),
		errors.Is(err, device.ErrDeviceDeleted):
		return http.StatusUnprocessableEntity, ErrCodeIllegalOperation

	case errors.Is(err, device.ErrNoChange),
		errors.Is(err, routecycle.ErrNoChange):
		return http.StatusBadRequest, ErrCodeInvalidArgument

	case errors.Is(err, device.ErrInvalidAddress),
		errors.Is(err, device.ErrInvalidKind),
		errors.Is(err, device.ErrNotANode),
		errors.Is(err, device.ErrCoreNotFound),
		errors.Is(err, routecycle.ErrInvalidCoordinate),
		errors.Is(err, routecycle.ErrInvalidThreshold),
		errors.Is(err, telemetry.ErrInvalidTime),
		errors.Is(err, telemetry.ErrInvalidCoordinate),
		errors.As(err, &verrs):
		return http.StatusBadRequest, ErrCodeValidation
	}
	return http.StatusInternalServerError, ErrCodeInternal
}
