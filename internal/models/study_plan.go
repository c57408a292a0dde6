package models

import (
	"time"

	"github.com/google/uuid"
)

type StudyPlan struct {
	ID                uuid.UUID `json:"id"`
	UserID            uuid.UUID `json:"user_id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	TargetMinutes     int       `json:"target_minutes"`
	CompletedMinutes  int       `json:"completed_minutes"`
	CompletedSessions int       `json:"completed_sessions"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type CreatePlanRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	TargetMinutes int    `json:"target_minutes"`
}

// PlanProgress is the aggregate recomputed after a session completes.
type PlanProgress struct {
	PlanID            uuid.UUID `json:"plan_id"`
	CompletedMinutes  int       `json:"completed_minutes"`
	CompletedSessions int       `json:"completed_sessions"`
	TargetMinutes     int       `json:"target_minutes"`
}
