package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nerrad567/coldtag-core/internal/device"
	"github.com/nerrad567/coldtag-core/internal/telemetry"
)

// newValidator builds the request body validator.
func newValidator() *validator.Validate {
	validate := validator.New()
	device.RegisterAddressValidation(validate)
	return validate
}

// decodeBody reads a JSON body into v and validates it. On failure the
// response has been written and false is returned.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return false
		}
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			// v has no validatable struct, nothing to check.
			return true
		}
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return false
	}
	return true
}

// pathID parses the {id} URL parameter. On failure the response has been
// written and false is returned.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeBadRequest(w, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// eventQuery reads the from, to and limit query parameters.
func eventQuery(r *http.Request) (telemetry.Query, error) {
	var q telemetry.Query
	values := r.URL.Query()

	if v := values.Get("from"); v != "" {
		t, err := telemetry.ParseTime(v)
		if err != nil {
			return q, fmt.Errorf("from: %w", err)
		}
		q.Range.From = &t
	}
	if v := values.Get("to"); v != "" {
		t, err := telemetry.ParseTime(v)
		if err != nil {
			return q, fmt.Errorf("to: %w", err)
		}
		q.Range.To = &t
	}
	if q.Range.From != nil && q.Range.To != nil && q.Range.To.Before(*q.Range.From) {
		return q, errors.New("to is before from")
	}
	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, errors.New("limit must be a non-negative integer")
		}
		q.Limit = n
	}
	return q, nil
}

// writeQueryError answers a bad query parameter with 400.
func writeQueryError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
}
