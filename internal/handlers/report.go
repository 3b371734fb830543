package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"reporthub-backend/internal/collab"
	"reporthub-backend/internal/middleware"
	"reporthub-backend/internal/models"
	"reporthub-backend/internal/repository"
)

// ReportHandler persists finished documents out of live sessions and
// serves them back. Live session state never touches the database.
type ReportHandler struct {
	coordinator *collab.Coordinator
	repo        *repository.ReportRepo
}

func NewReportHandler(coordinator *collab.Coordinator, repo *repository.ReportRepo) *ReportHandler {
	return &ReportHandler{coordinator: coordinator, repo: repo}
}

// Save copies the session's current document into the saved_reports
// table. Saving the same session again overwrites the earlier copy.
func (h *ReportHandler) Save(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "id")

	// Body is optional; io.EOF means no body was sent.
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	snap, err := h.coordinator.Snapshot(sessionID)
	if err != nil {
		handleCollabError(w, r, err)
		return
	}

	docJSON, err := json.Marshal(snap.Document)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to serialize document", r))
		return
	}

	report := &models.SavedReport{
		SessionID: sessionID,
		UserID:    userID,
		Title:     req.Title,
		Document:  docJSON,
	}
	if err := h.repo.Save(r.Context(), report); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to save report", r))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"report": report})
}

func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	reportID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid report ID", r))
		return
	}

	report, err := h.repo.FindByID(r.Context(), reportID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Report not found", r))
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load report", r))
		return
	}
	if report.UserID != userID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Report belongs to another user", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"report": report})
}

func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	reports, err := h.repo.ListByUser(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list reports", r))
		return
	}
	if reports == nil {
		reports = []*models.SavedReport{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": reports})
}
