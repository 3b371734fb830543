package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"reporthub-backend/internal/collab"
	"reporthub-backend/internal/middleware"
)

// CollabHandler is the poll transport binding: it adapts the HTTP API
// onto the session coordinator. Clients discover other users' edits by
// polling "anything new since T?".
type CollabHandler struct {
	coordinator *collab.Coordinator
}

func NewCollabHandler(coordinator *collab.Coordinator) *CollabHandler {
	return &CollabHandler{coordinator: coordinator}
}

func (h *CollabHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		Document   collab.Document   `json:"document"`
		Permission collab.Permission `json:"permission"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.Permission == "" {
		req.Permission = collab.PermissionEdit
	}

	// Viewers may only open view-only sessions.
	if middleware.GetRole(r.Context()) == middleware.RoleViewer && req.Permission == collab.PermissionEdit {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Viewer accounts cannot create editable sessions", r))
		return
	}

	res, err := h.coordinator.Create(req.Document, req.Permission, userID)
	if err != nil {
		handleCollabError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

func (h *CollabHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "id")

	// Body is optional; io.EOF means no body was sent. Gating on
	// ContentLength would lose chunked payloads.
	var req struct {
		Document collab.Document `json:"document"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	res, err := h.coordinator.Join(r.Context(), sessionID, userID, req.Document)
	if err != nil {
		handleCollabError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *CollabHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "id")

	if err := h.coordinator.Leave(r.Context(), sessionID, userID); err != nil {
		handleCollabError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Left session"})
}

func (h *CollabHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "id")

	var req collab.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := h.coordinator.Update(r.Context(), sessionID, userID, req); err != nil {
		handleCollabError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Update applied"})
}

func (h *CollabHandler) Poll(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "id")

	since := int64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "since must be a millisecond timestamp", r))
			return
		}
		since = parsed
	}

	res, err := h.coordinator.Poll(sessionID, userID, since)
	if err != nil {
		handleCollabError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *CollabHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	res, err := h.coordinator.Snapshot(sessionID)
	if err != nil {
		handleCollabError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *CollabHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	deadline, err := h.coordinator.Refresh(sessionID)
	if err != nil {
		handleCollabError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"expires_at": deadline})
}

func (h *CollabHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "id")

	if err := h.coordinator.Delete(sessionID, userID); err != nil {
		handleCollabError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Session deleted"})
}
