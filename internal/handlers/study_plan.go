package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"studyflow/internal/middleware"
	"studyflow/internal/models"
)

type studyPlanRepository interface {
	Create(ctx context.Context, p *models.StudyPlan) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.StudyPlan, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.StudyPlan, int, error)
}

type planSessionLister interface {
	ListByPlan(ctx context.Context, planID, userID uuid.UUID) ([]*models.StudySession, error)
}

type StudyPlanHandler struct {
	planRepo    studyPlanRepository
	sessionRepo planSessionLister
}

func NewStudyPlanHandler(planRepo studyPlanRepository, sessionRepo planSessionLister) *StudyPlanHandler {
	return &StudyPlanHandler{planRepo: planRepo, sessionRepo: sessionRepo}
}

func (h *StudyPlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	fields := make(map[string]string)
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		fields["title"] = "Title is required"
	}
	if req.TargetMinutes < 0 {
		fields["target_minutes"] = "Must not be negative"
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	plan := &models.StudyPlan{
		UserID:        userID,
		Title:         req.Title,
		Description:   strings.TrimSpace(req.Description),
		TargetMinutes: req.TargetMinutes,
	}
	if err := h.planRepo.Create(r.Context(), plan); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create study plan", r))
		return
	}

	writeJSON(w, http.StatusCreated, plan)
}

func (h *StudyPlanHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	plans, total, err := h.planRepo.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list study plans", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"plans":  plans,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *StudyPlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	plan, ok := h.loadPlan(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *StudyPlanHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	plan, ok := h.loadPlan(w, r)
	if !ok {
		return
	}

	sessions, err := h.sessionRepo.ListByPlan(r.Context(), plan.ID, plan.UserID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list plan sessions", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (h *StudyPlanHandler) loadPlan(w http.ResponseWriter, r *http.Request) (*models.StudyPlan, bool) {
	userID := middleware.GetUserID(r.Context())
	planID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid plan ID", r))
		return nil, false
	}

	plan, err := h.planRepo.GetByID(r.Context(), planID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Study plan not found", r))
		} else {
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load study plan", r))
		}
		return nil, false
	}
	return plan, true
}
