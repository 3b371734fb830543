package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"reporthub-backend/internal/collab"
	"reporthub-backend/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

// handleCollabError maps coordinator errors onto the HTTP surface.
// Forbidden and invalid-input responses must never be retried by
// clients; NotFound/Gone tell the poll client to stop polling.
func handleCollabError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, collab.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Session not found", r))
	case errors.Is(err, collab.ErrGone):
		writeJSON(w, http.StatusGone, errorResp("GONE", "Session link has expired", r))
	case errors.Is(err, collab.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", err.Error(), r))
	case errors.Is(err, collab.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", err.Error(), r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Unexpected error", r))
	}
}
