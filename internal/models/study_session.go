package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusActive, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// CanTransition reports whether a session may move from one status to another.
// Only active and paused toggle; completed is terminal.
func CanTransition(from, to SessionStatus) bool {
	switch from {
	case StatusScheduled:
		return to == StatusActive
	case StatusActive:
		return to == StatusPaused || to == StatusCompleted
	case StatusPaused:
		return to == StatusActive || to == StatusCompleted
	}
	return false
}

type Objective struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type StudySession struct {
	ID                       uuid.UUID     `json:"id"`
	UserID                   uuid.UUID     `json:"user_id"`
	StudyPlanID              *uuid.UUID    `json:"study_plan_id,omitempty"`
	Title                    string        `json:"title"`
	Status                   SessionStatus `json:"status"`
	ScheduledFor             *time.Time    `json:"scheduled_for,omitempty"`
	StartTime                *time.Time    `json:"start_time,omitempty"`
	ResumedAt                *time.Time    `json:"resumed_at,omitempty"`
	ElapsedSeconds           int           `json:"elapsed_seconds"`
	EstimatedDurationSeconds int           `json:"estimated_duration_seconds"`
	Objectives               []Objective   `json:"objectives"`
	CompletedObjectiveIDs    []string      `json:"completed_objective_ids"`
	Notes                    string        `json:"notes"`
	ConfidenceRating         *int          `json:"confidence_rating,omitempty"`
	FocusLevel               *int          `json:"focus_level,omitempty"`
	EffectivenessRating      *int          `json:"effectiveness_rating,omitempty"`
	TechniquesUsed           []string      `json:"techniques_used"`
	RemindedAt               *time.Time    `json:"-"`
	CompletedAt              *time.Time    `json:"completed_at,omitempty"`
	CreatedAt                time.Time     `json:"created_at"`
	UpdatedAt                time.Time     `json:"updated_at"`
}

// StatusUpdate is the partial update used for start and pause.
type StatusUpdate struct {
	Status         SessionStatus `json:"status"`
	ElapsedSeconds int           `json:"elapsed_seconds"`
}

// CompletionSummary carries everything persisted with the terminal transition.
type CompletionSummary struct {
	Notes                 string   `json:"notes"`
	ConfidenceRating      int      `json:"confidence_rating"`
	FocusLevel            int      `json:"focus_level"`
	EffectivenessRating   int      `json:"effectiveness_rating"`
	CompletedObjectiveIDs []string `json:"completed_objective_ids"`
	TechniquesUsed        []string `json:"techniques_used"`
	ElapsedSeconds        int      `json:"elapsed_seconds"`
}

const (
	MinRating     = 1
	MaxRating     = 5
	DefaultRating = 3
)

type CreateSessionRequest struct {
	StudyPlanID              *uuid.UUID  `json:"study_plan_id"`
	Title                    string      `json:"title"`
	ScheduledFor             *time.Time  `json:"scheduled_for"`
	EstimatedDurationSeconds int         `json:"estimated_duration_seconds"`
	Objectives               []Objective `json:"objectives"`
}
