package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyflow/internal/models"
)

// ErrInvalidTransition is returned when a status change is not allowed from
// the session's current status.
var ErrInvalidTransition = errors.New("invalid session status transition")

type StudySessionRepo struct {
	pool *pgxpool.Pool
}

// SessionReminderTarget is a scheduled session due for a reminder, joined with
// its owner's contact details.
type SessionReminderTarget struct {
	SessionID    uuid.UUID
	UserID       uuid.UUID
	Title        string
	ScheduledFor time.Time
	Email        string
	FullName     string
}

func NewStudySessionRepo(pool *pgxpool.Pool) *StudySessionRepo {
	return &StudySessionRepo{pool: pool}
}

const sessionColumns = `id, user_id, study_plan_id, title, status, scheduled_for, start_time,
	resumed_at, elapsed_seconds, estimated_duration_seconds, objectives, completed_objective_ids, notes,
	confidence_rating, focus_level, effectiveness_rating, techniques_used, reminded_at,
	completed_at, created_at, updated_at`

func scanSession(row pgx.Row) (*models.StudySession, error) {
	s := &models.StudySession{}
	err := row.Scan(
		&s.ID, &s.UserID, &s.StudyPlanID, &s.Title, &s.Status, &s.ScheduledFor, &s.StartTime,
		&s.ResumedAt, &s.ElapsedSeconds, &s.EstimatedDurationSeconds, &s.Objectives, &s.CompletedObjectiveIDs, &s.Notes,
		&s.ConfidenceRating, &s.FocusLevel, &s.EffectivenessRating, &s.TechniquesUsed, &s.RemindedAt,
		&s.CompletedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if s.Objectives == nil {
		s.Objectives = []models.Objective{}
	}
	if s.CompletedObjectiveIDs == nil {
		s.CompletedObjectiveIDs = []string{}
	}
	if s.TechniquesUsed == nil {
		s.TechniquesUsed = []string{}
	}
	return s, nil
}

func (r *StudySessionRepo) Create(ctx context.Context, s *models.StudySession) error {
	if s.Objectives == nil {
		s.Objectives = []models.Objective{}
	}
	s.Status = models.StatusScheduled

	query := `
		INSERT INTO study_sessions (user_id, study_plan_id, title, status, scheduled_for, estimated_duration_seconds, objectives)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + sessionColumns

	created, err := scanSession(r.pool.QueryRow(ctx, query,
		s.UserID, s.StudyPlanID, s.Title, s.Status, s.ScheduledFor, s.EstimatedDurationSeconds, s.Objectives,
	))
	if err != nil {
		return err
	}
	*s = *created
	return nil
}

// GetByID returns pgx.ErrNoRows when the session does not exist or belongs to
// someone else.
func (r *StudySessionRepo) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.StudySession, error) {
	query := `SELECT ` + sessionColumns + ` FROM study_sessions WHERE id = $1 AND user_id = $2`
	return scanSession(r.pool.QueryRow(ctx, query, id, userID))
}

func (r *StudySessionRepo) ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*models.StudySession, error) {
	query := `SELECT ` + sessionColumns + ` FROM study_sessions
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY COALESCE(scheduled_for, created_at) DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, query, userID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

func (r *StudySessionRepo) ListByPlan(ctx context.Context, planID, userID uuid.UUID) ([]*models.StudySession, error) {
	query := `SELECT ` + sessionColumns + ` FROM study_sessions
		WHERE study_plan_id = $1 AND user_id = $2
		ORDER BY COALESCE(scheduled_for, created_at) ASC`

	rows, err := r.pool.Query(ctx, query, planID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

func collectSessions(rows pgx.Rows) ([]*models.StudySession, error) {
	sessions := make([]*models.StudySession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// UpdateStatus applies a start or pause transition. start_time is set on the
// first move into active and never overwritten, resumed_at on every move into
// active; elapsed_seconds never decreases.
func (r *StudySessionRepo) UpdateStatus(ctx context.Context, id, userID uuid.UUID, update models.StatusUpdate) (*models.StudySession, error) {
	if update.Status != models.StatusActive && update.Status != models.StatusPaused {
		return nil, ErrInvalidTransition
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current models.SessionStatus
	err = tx.QueryRow(ctx,
		"SELECT status FROM study_sessions WHERE id = $1 AND user_id = $2 FOR UPDATE",
		id, userID,
	).Scan(&current)
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(current, update.Status) {
		return nil, ErrInvalidTransition
	}

	query := `
		UPDATE study_sessions
		SET status = $3,
			start_time = CASE WHEN $3 = 'active' THEN COALESCE(start_time, NOW()) ELSE start_time END,
			resumed_at = CASE WHEN $3 = 'active' THEN NOW() ELSE resumed_at END,
			elapsed_seconds = GREATEST(elapsed_seconds, $4),
			updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + sessionColumns

	s, err := scanSession(tx.QueryRow(ctx, query, id, userID, update.Status, update.ElapsedSeconds))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}
	return s, nil
}

// Complete is the terminal transition. Only sessions that are active or paused
// match, so a repeated call cannot overwrite an earlier summary.
func (r *StudySessionRepo) Complete(ctx context.Context, id, userID uuid.UUID, summary models.CompletionSummary) (*models.StudySession, error) {
	if summary.CompletedObjectiveIDs == nil {
		summary.CompletedObjectiveIDs = []string{}
	}
	if summary.TechniquesUsed == nil {
		summary.TechniquesUsed = []string{}
	}

	query := `
		UPDATE study_sessions
		SET status = 'completed',
			notes = $3,
			confidence_rating = $4,
			focus_level = $5,
			effectiveness_rating = $6,
			completed_objective_ids = $7,
			techniques_used = $8,
			elapsed_seconds = GREATEST(elapsed_seconds, $9),
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
		  AND user_id = $2
		  AND status IN ('active', 'paused')
		RETURNING ` + sessionColumns

	s, err := scanSession(r.pool.QueryRow(ctx, query,
		id, userID, summary.Notes, summary.ConfidenceRating, summary.FocusLevel, summary.EffectivenessRating,
		summary.CompletedObjectiveIDs, summary.TechniquesUsed, summary.ElapsedSeconds,
	))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// Distinguish a missing session from one in the wrong state.
	if _, getErr := r.GetByID(ctx, id, userID); getErr != nil {
		return nil, getErr
	}
	return nil, ErrInvalidTransition
}

func (r *StudySessionRepo) ListDueReminders(ctx context.Context, now time.Time, leadTime time.Duration) ([]SessionReminderTarget, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.user_id, s.title, s.scheduled_for, u.email, u.full_name
		FROM study_sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.status = 'scheduled'
		  AND s.reminded_at IS NULL
		  AND s.scheduled_for IS NOT NULL
		  AND s.scheduled_for > $1
		  AND s.scheduled_for <= $2
		  AND u.is_active = TRUE
		ORDER BY s.scheduled_for
	`, now, now.Add(leadTime))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	targets := make([]SessionReminderTarget, 0)
	for rows.Next() {
		var t SessionReminderTarget
		if err := rows.Scan(&t.SessionID, &t.UserID, &t.Title, &t.ScheduledFor, &t.Email, &t.FullName); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (r *StudySessionRepo) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, "UPDATE study_sessions SET reminded_at = $1 WHERE id = $2", at, id)
	return err
}
