package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"studyflow/internal/middleware"
	"studyflow/internal/models"
	"studyflow/internal/repository"
)

type studySessionRepository interface {
	Create(ctx context.Context, s *models.StudySession) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.StudySession, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*models.StudySession, error)
	UpdateStatus(ctx context.Context, id, userID uuid.UUID, update models.StatusUpdate) (*models.StudySession, error)
	Complete(ctx context.Context, id, userID uuid.UUID, summary models.CompletionSummary) (*models.StudySession, error)
}

type planLookup interface {
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.StudyPlan, error)
}

type sessionEvents interface {
	PublishSession(ctx context.Context, s *models.StudySession) error
	EnqueuePlanProgress(ctx context.Context, s *models.StudySession) error
}

type StudySessionHandler struct {
	repo   studySessionRepository
	plans  planLookup
	events sessionEvents
}

func NewStudySessionHandler(repo studySessionRepository, plans planLookup, events sessionEvents) *StudySessionHandler {
	return &StudySessionHandler{repo: repo, plans: plans, events: events}
}

func (h *StudySessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	fields := make(map[string]string)
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		fields["title"] = "Title is required"
	}
	if req.EstimatedDurationSeconds < 0 {
		fields["estimated_duration_seconds"] = "Must not be negative"
	}
	seen := make(map[string]bool, len(req.Objectives))
	for i := range req.Objectives {
		if req.Objectives[i].ID == "" {
			req.Objectives[i].ID = strconv.Itoa(i + 1)
		}
		if seen[req.Objectives[i].ID] {
			fields["objectives"] = "Objective IDs must be unique"
		}
		seen[req.Objectives[i].ID] = true
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	if req.StudyPlanID != nil {
		if _, err := h.plans.GetByID(r.Context(), *req.StudyPlanID, userID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Study plan not found", r))
				return
			}
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load study plan", r))
			return
		}
	}

	session := &models.StudySession{
		UserID:                   userID,
		StudyPlanID:              req.StudyPlanID,
		Title:                    req.Title,
		ScheduledFor:             req.ScheduledFor,
		EstimatedDurationSeconds: req.EstimatedDurationSeconds,
		Objectives:               req.Objectives,
	}

	if err := h.repo.Create(r.Context(), session); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create study session", r))
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (h *StudySessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	status := r.URL.Query().Get("status")
	if status != "" && !models.SessionStatus(status).Valid() {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Unknown status filter", r))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	sessions, err := h.repo.ListByUser(r.Context(), userID, status, limit, offset)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list study sessions", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *StudySessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	session, err := h.repo.GetByID(r.Context(), sessionID, userID)
	if err != nil {
		writeSessionError(w, r, err, "Failed to load study session")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// UpdateStatus handles start, resume and pause. The body carries the
// client's elapsed counter so a pause persists the time studied so far.
func (h *StudySessionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	var req models.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if req.Status != models.StatusActive && req.Status != models.StatusPaused {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"status": "Must be active or paused"}, r))
		return
	}
	if req.ElapsedSeconds < 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"elapsed_seconds": "Must not be negative"}, r))
		return
	}

	session, err := h.repo.UpdateStatus(r.Context(), sessionID, userID, req)
	if err != nil {
		writeSessionError(w, r, err, "Failed to update study session")
		return
	}

	h.publish(r.Context(), session)
	writeJSON(w, http.StatusOK, session)
}

func (h *StudySessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	var req models.CompletionSummary
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if fields := normalizeSummary(&req); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	session, err := h.repo.Complete(r.Context(), sessionID, userID, req)
	if err != nil {
		writeSessionError(w, r, err, "Failed to complete study session")
		return
	}

	h.publish(r.Context(), session)
	if err := h.events.EnqueuePlanProgress(r.Context(), session); err != nil {
		log.Printf("Failed to enqueue plan progress for session %s: %v", session.ID, err)
	}

	writeJSON(w, http.StatusOK, session)
}

// publish is best effort: the write already succeeded.
func (h *StudySessionHandler) publish(ctx context.Context, s *models.StudySession) {
	if err := h.events.PublishSession(ctx, s); err != nil {
		log.Printf("Failed to publish update for session %s: %v", s.ID, err)
	}
}

// normalizeSummary fills unset ratings with the default and reports ratings
// that fall outside the allowed range.
func normalizeSummary(s *models.CompletionSummary) map[string]string {
	fields := make(map[string]string)
	for name, v := range map[string]*int{
		"confidence_rating":    &s.ConfidenceRating,
		"focus_level":          &s.FocusLevel,
		"effectiveness_rating": &s.EffectivenessRating,
	} {
		if *v == 0 {
			*v = models.DefaultRating
			continue
		}
		if *v < models.MinRating || *v > models.MaxRating {
			fields[name] = "Must be between 1 and 5"
		}
	}
	if s.ElapsedSeconds < 0 {
		fields["elapsed_seconds"] = "Must not be negative"
	}
	s.Notes = strings.TrimSpace(s.Notes)
	return fields
}

func sessionIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return uuid.Nil, false
	}
	return id, true
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Study session not found", r))
	case errors.Is(err, repository.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "Session cannot move to that status from its current one", r))
	default:
		log.Printf("%s: %v", fallback, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", fallback, r))
	}
}
