package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studyflow/internal/models"
)

// UserUpdatesChannel is the Redis pub/sub channel the websocket hub relays to
// a user's open connections.
func UserUpdatesChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user_updates:%s", userID.String())
}

// EventPublisher fans session events out over Redis: pub/sub for live
// updates and a list queue for plan progress jobs.
type EventPublisher struct {
	redis *redis.Client
}

func NewEventPublisher(redisClient *redis.Client) *EventPublisher {
	return &EventPublisher{redis: redisClient}
}

// PublishUpdate sends a WebSocket update via Redis pub/sub
func (p *EventPublisher) PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", msg.Type, err)
	}
	return p.redis.Publish(ctx, UserUpdatesChannel(userID), string(data)).Err()
}

func (p *EventPublisher) PublishSession(ctx context.Context, s *models.StudySession) error {
	return p.PublishUpdate(ctx, s.UserID, models.WSMessage{Type: models.WSSessionUpdated, Payload: s})
}

// EnqueuePlanProgress queues a recompute of the session's parent plan. Sessions
// without a plan are ignored.
func (p *EventPublisher) EnqueuePlanProgress(ctx context.Context, s *models.StudySession) error {
	if s.StudyPlanID == nil {
		return nil
	}
	job := models.PlanProgressJob{
		ID:         uuid.New(),
		UserID:     s.UserID,
		PlanID:     *s.StudyPlanID,
		SessionID:  s.ID,
		EnqueuedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode plan progress job: %w", err)
	}
	return p.redis.LPush(ctx, models.PlanProgressQueue, string(data)).Err()
}
