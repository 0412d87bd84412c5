// Package api provides the JSON helpers and the chart, session and health
// endpoints of the kundali service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/kundali-rag/internal/domain"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// StatusFromError maps the domain error taxonomy onto HTTP status codes.
func StatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrChartUnavailable), errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err with the status chosen by StatusFromError. Server
// faults are logged and their details hidden from the client.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFromError(err)
	message := err.Error()
	switch status {
	case http.StatusInternalServerError:
		slog.Error("Request failed", "error", err)
		message = "internal server error"
	case http.StatusServiceUnavailable:
		slog.Warn("Dependency unavailable", "error", err)
		message = "chart service unavailable, please retry later"
	}
	Error(w, status, message)
}

// DecodeJSON decodes a request body of at most maxBytes into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &domain.InputError{Field: "body", Reason: "request body too large", Err: err}
		}
		return &domain.InputError{Field: "body", Reason: "invalid request body", Err: err}
	}
	return nil
}
