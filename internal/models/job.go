package models

import (
	"time"

	"github.com/google/uuid"
)

const PlanProgressQueue = "queue:plan-progress"

// PlanProgressJob is pushed onto the Redis queue when a session completes.
type PlanProgressJob struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	PlanID     uuid.UUID `json:"plan_id"`
	SessionID  uuid.UUID `json:"session_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// WebSocket message types
const (
	WSSessionUpdated  = "session_updated"
	WSSessionReminder = "session_reminder"
	WSPlanProgress    = "plan_progress"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type SessionReminder struct {
	SessionID    uuid.UUID `json:"session_id"`
	Title        string    `json:"title"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
