package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"studyflow/internal/common/clock"
	"studyflow/internal/models"
	"studyflow/internal/repository"
)

type reminderStore interface {
	ListDueReminders(ctx context.Context, now time.Time, leadTime time.Duration) ([]repository.SessionReminderTarget, error)
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error
}

type reminderMailer interface {
	SendSessionReminderEmail(to, fullName, title string, startsIn time.Duration, sessionID string) error
}

type reminderPublisher interface {
	PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error
}

// SessionReminderScheduler polls for scheduled sessions that begin within the
// lead time and reminds their owners once, over the websocket and by email.
type SessionReminderScheduler struct {
	sessions     reminderStore
	email        reminderMailer
	events       reminderPublisher
	clock        clock.Clock
	leadTime     time.Duration
	pollInterval time.Duration
	stopChan     chan struct{}
	stopOnce     sync.Once
	done         chan struct{}
}

func NewSessionReminderScheduler(
	sessions reminderStore,
	email reminderMailer,
	events reminderPublisher,
	leadTime, pollInterval time.Duration,
) *SessionReminderScheduler {
	return &SessionReminderScheduler{
		sessions:     sessions,
		email:        email,
		events:       events,
		clock:        &clock.DefaultClock{},
		leadTime:     leadTime,
		pollInterval: pollInterval,
		stopChan:     make(chan struct{}),
	}
}

func (s *SessionReminderScheduler) Start() {
	if s.sessions == nil || s.pollInterval <= 0 {
		return
	}

	s.done = make(chan struct{})
	go s.loop()
	log.Printf("Session reminder scheduler started (lead time %s, every %s)", s.leadTime, s.pollInterval)
}

func (s *SessionReminderScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	if s.done != nil {
		<-s.done
	}
}

func (s *SessionReminderScheduler) loop() {
	defer close(s.done)

	// Run on startup as well as by interval.
	s.runOnce(context.Background())

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runOnce(context.Background())
		}
	}
}

// runOnce sends every due reminder and returns how many were delivered. A
// session is marked once any channel delivered, so a failed email does not
// republish the websocket event on the next poll.
func (s *SessionReminderScheduler) runOnce(ctx context.Context) int {
	now := s.clock.Now().UTC()

	targets, err := s.sessions.ListDueReminders(ctx, now, s.leadTime)
	if err != nil {
		log.Printf("session reminders: failed to list due sessions: %v", err)
		return 0
	}

	sent := 0
	for _, target := range targets {
		delivered := false
		if err := s.events.PublishUpdate(ctx, target.UserID, models.WSMessage{
			Type: models.WSSessionReminder,
			Payload: models.SessionReminder{
				SessionID:    target.SessionID,
				Title:        target.Title,
				ScheduledFor: target.ScheduledFor,
			},
		}); err != nil {
			log.Printf("session reminders: failed to publish for session %s: %v", target.SessionID, err)
		} else {
			delivered = true
		}

		if s.email != nil {
			startsIn := target.ScheduledFor.Sub(now)
			if err := s.email.SendSessionReminderEmail(target.Email, target.FullName, target.Title, startsIn, target.SessionID.String()); err != nil {
				log.Printf("session reminders: failed to email %s: %v", target.Email, err)
			} else {
				delivered = true
			}
		}

		if !delivered {
			continue
		}

		if err := s.sessions.MarkReminded(ctx, target.SessionID, now); err != nil {
			log.Printf("session reminders: failed to mark session %s: %v", target.SessionID, err)
			continue
		}
		sent++
	}
	return sent
}
