package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyflow/internal/models"
)

type StudyPlanRepo struct {
	pool *pgxpool.Pool
}

func NewStudyPlanRepo(pool *pgxpool.Pool) *StudyPlanRepo {
	return &StudyPlanRepo{pool: pool}
}

func (r *StudyPlanRepo) Create(ctx context.Context, p *models.StudyPlan) error {
	p.ID = uuid.New()

	query := `INSERT INTO study_plans (id, user_id, title, description, target_minutes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		p.ID, p.UserID, p.Title, p.Description, p.TargetMinutes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *StudyPlanRepo) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.StudyPlan, error) {
	p := &models.StudyPlan{}
	query := `SELECT id, user_id, title, description, target_minutes, completed_minutes, completed_sessions, created_at, updated_at
		FROM study_plans WHERE id = $1 AND user_id = $2`

	err := r.pool.QueryRow(ctx, query, id, userID).Scan(
		&p.ID, &p.UserID, &p.Title, &p.Description, &p.TargetMinutes,
		&p.CompletedMinutes, &p.CompletedSessions, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *StudyPlanRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.StudyPlan, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM study_plans WHERE user_id = $1", userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, title, description, target_minutes, completed_minutes, completed_sessions, created_at, updated_at
		FROM study_plans
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	plans := make([]*models.StudyPlan, 0)
	for rows.Next() {
		p := &models.StudyPlan{}
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.Title, &p.Description, &p.TargetMinutes,
			&p.CompletedMinutes, &p.CompletedSessions, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		plans = append(plans, p)
	}
	return plans, total, rows.Err()
}

// RecomputeProgress rebuilds the plan aggregates from its completed sessions.
func (r *StudyPlanRepo) RecomputeProgress(ctx context.Context, planID uuid.UUID) (*models.PlanProgress, error) {
	progress := &models.PlanProgress{PlanID: planID}
	err := r.pool.QueryRow(ctx, `
		UPDATE study_plans p
		SET completed_minutes = agg.seconds / 60,
			completed_sessions = agg.sessions,
			updated_at = NOW()
		FROM (
			SELECT COALESCE(SUM(elapsed_seconds), 0)::INT AS seconds, COUNT(*)::INT AS sessions
			FROM study_sessions
			WHERE study_plan_id = $1 AND status = 'completed'
		) agg
		WHERE p.id = $1
		RETURNING p.completed_minutes, p.completed_sessions, p.target_minutes
	`, planID).Scan(&progress.CompletedMinutes, &progress.CompletedSessions, &progress.TargetMinutes)
	if err != nil {
		return nil, err
	}
	return progress, nil
}
