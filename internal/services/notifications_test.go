package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyflow/internal/common/clock"
	"studyflow/internal/models"
	"studyflow/internal/repository"
)

type stubReminderStore struct {
	due      []repository.SessionReminderTarget
	listErr  error
	reminded map[uuid.UUID]time.Time
	gotLead  time.Duration
}

func (s *stubReminderStore) ListDueReminders(ctx context.Context, now time.Time, leadTime time.Duration) ([]repository.SessionReminderTarget, error) {
	s.gotLead = leadTime
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]repository.SessionReminderTarget, 0)
	for _, t := range s.due {
		if _, done := s.reminded[t.SessionID]; !done {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *stubReminderStore) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.reminded[id] = at
	return nil
}

type sentReminder struct {
	to       string
	startsIn time.Duration
}

type stubMailer struct {
	sent []sentReminder
	err  error
}

func (m *stubMailer) SendSessionReminderEmail(to, fullName, title string, startsIn time.Duration, sessionID string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentReminder{to: to, startsIn: startsIn})
	return nil
}

type stubPublisher struct {
	msgs []models.WSMessage
	err  error
}

func (p *stubPublisher) PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestSessionReminderScheduler_RunOnce(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	target := repository.SessionReminderTarget{
		SessionID:    uuid.New(),
		UserID:       uuid.New(),
		Title:        "Organic chemistry",
		ScheduledFor: now.Add(15 * time.Minute),
		Email:        "ada@example.com",
		FullName:     "Ada",
	}
	store := &stubReminderStore{due: []repository.SessionReminderTarget{target}, reminded: make(map[uuid.UUID]time.Time)}
	mailer := &stubMailer{}
	pub := &stubPublisher{}

	s := NewSessionReminderScheduler(store, mailer, pub, 30*time.Minute, time.Minute)
	s.clock = &clock.Fixed{T: now}

	assert.Equal(t, 1, s.runOnce(context.Background()))
	assert.Equal(t, 30*time.Minute, store.gotLead)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ada@example.com", mailer.sent[0].to)
	assert.Equal(t, 15*time.Minute, mailer.sent[0].startsIn)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, models.WSSessionReminder, pub.msgs[0].Type)
	assert.Equal(t, now, store.reminded[target.SessionID])

	// already reminded sessions are not picked up again
	assert.Equal(t, 0, s.runOnce(context.Background()))
	assert.Len(t, mailer.sent, 1)
}

func TestSessionReminderScheduler_EmailFailurePublishesOnce(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	target := repository.SessionReminderTarget{SessionID: uuid.New(), UserID: uuid.New(), ScheduledFor: now.Add(time.Minute)}
	store := &stubReminderStore{due: []repository.SessionReminderTarget{target}, reminded: make(map[uuid.UUID]time.Time)}
	pub := &stubPublisher{}

	s := NewSessionReminderScheduler(store, &stubMailer{err: errors.New("smtp down")}, pub, time.Hour, time.Minute)
	s.clock = &clock.Fixed{T: now}

	assert.Equal(t, 1, s.runOnce(context.Background()))
	assert.Equal(t, now, store.reminded[target.SessionID])

	// the next poll finds nothing left to send
	assert.Equal(t, 0, s.runOnce(context.Background()))
	assert.Len(t, pub.msgs, 1)
}

func TestSessionReminderScheduler_AllChannelsFailLeavesUnmarked(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	target := repository.SessionReminderTarget{SessionID: uuid.New(), UserID: uuid.New(), ScheduledFor: now.Add(time.Minute)}
	store := &stubReminderStore{due: []repository.SessionReminderTarget{target}, reminded: make(map[uuid.UUID]time.Time)}

	s := NewSessionReminderScheduler(store, &stubMailer{err: errors.New("smtp down")},
		&stubPublisher{err: errors.New("redis down")}, time.Hour, time.Minute)
	s.clock = &clock.Fixed{T: now}

	assert.Equal(t, 0, s.runOnce(context.Background()))
	assert.Empty(t, store.reminded)
}

func TestSessionReminderScheduler_ListFailure(t *testing.T) {
	store := &stubReminderStore{listErr: errors.New("db gone"), reminded: make(map[uuid.UUID]time.Time)}
	s := NewSessionReminderScheduler(store, &stubMailer{}, &stubPublisher{}, time.Hour, time.Minute)

	assert.Equal(t, 0, s.runOnce(context.Background()))
}

func TestSessionReminderScheduler_StartStop(t *testing.T) {
	store := &stubReminderStore{reminded: make(map[uuid.UUID]time.Time)}
	s := NewSessionReminderScheduler(store, &stubMailer{}, &stubPublisher{}, time.Hour, 10*time.Millisecond)

	s.Start()
	s.Stop()
	s.Stop()
}

func TestStartsInPhrase(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{-time.Minute, "now"},
		{20 * time.Second, "now"},
		{time.Minute, "in 1 minute"},
		{14*time.Minute + 40*time.Second, "in 15 minutes"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, startsInPhrase(tc.in), "startsInPhrase(%s)", tc.in)
	}
}

func TestSessionReminderEmail(t *testing.T) {
	svc := NewEmailService("", "", "", "", "noreply@example.com", "http://localhost:5173/")
	id := uuid.NewString()

	subject, body := svc.sessionReminderEmail("", "Calc <II>", 10*time.Minute, id)

	assert.Equal(t, "Starting soon: Calc <II>", subject)
	assert.Contains(t, body, "Hi there")
	assert.Contains(t, body, "Calc &lt;II&gt;")
	assert.Contains(t, body, "http://localhost:5173/study-sessions/"+id)
	assert.True(t, strings.Contains(body, "in 10 minutes"))
}
