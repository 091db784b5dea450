package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"gpflash/internal/orchestrator"
	"gpflash/pkg/types"
)

// statusFor maps intent errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case orchestrator.IsInvalidSelection(err):
		return http.StatusBadRequest
	case orchestrator.IsBusy(err):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrTerminated):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
