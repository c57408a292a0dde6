package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"studyflow/internal/models"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestEnqueuePlanProgress(t *testing.T) {
	mr, client := newMiniredisClient(t)
	pub := NewEventPublisher(client)

	planID := uuid.New()
	session := &models.StudySession{ID: uuid.New(), UserID: uuid.New(), StudyPlanID: &planID}

	require.NoError(t, pub.EnqueuePlanProgress(context.Background(), session))

	items, err := mr.List(models.PlanProgressQueue)
	require.NoError(t, err)
	require.Len(t, items, 1)

	var job models.PlanProgressJob
	require.NoError(t, json.Unmarshal([]byte(items[0]), &job))
	require.Equal(t, planID, job.PlanID)
	require.Equal(t, session.ID, job.SessionID)
	require.Equal(t, session.UserID, job.UserID)
}

func TestEnqueuePlanProgress_NoPlan(t *testing.T) {
	mr, client := newMiniredisClient(t)
	pub := NewEventPublisher(client)

	session := &models.StudySession{ID: uuid.New(), UserID: uuid.New()}
	require.NoError(t, pub.EnqueuePlanProgress(context.Background(), session))
	require.False(t, mr.Exists(models.PlanProgressQueue))
}

func TestPublishSession(t *testing.T) {
	_, client := newMiniredisClient(t)
	pub := NewEventPublisher(client)
	ctx := context.Background()

	session := &models.StudySession{ID: uuid.New(), UserID: uuid.New(), Status: models.StatusPaused}

	sub := client.Subscribe(ctx, UserUpdatesChannel(session.UserID))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, pub.PublishSession(ctx, session))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var decoded struct {
		Type    string              `json:"type"`
		Payload models.StudySession `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &decoded))
	require.Equal(t, models.WSSessionUpdated, decoded.Type)
	require.Equal(t, session.ID, decoded.Payload.ID)
	require.Equal(t, models.StatusPaused, decoded.Payload.Status)
}
