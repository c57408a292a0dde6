package studysession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyflow/internal/common/clock"
	"studyflow/internal/models"
)

type stubStore struct {
	mu      sync.Mutex
	clock   clock.Clock
	session models.StudySession

	readErr     error
	updateErr   error
	completeErr error

	updates     []models.StatusUpdate
	completions []models.CompletionSummary

	completeEntered chan struct{}
	completeRelease chan struct{}
}

func (s *stubStore) ReadSession(ctx context.Context, id uuid.UUID) (*models.StudySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	rec := s.session
	return &rec, nil
}

func (s *stubStore) UpdateSessionStatus(ctx context.Context, id uuid.UUID, update models.StatusUpdate) (*models.StudySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update)
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	s.session.Status = update.Status
	if update.Status == models.StatusActive {
		now := s.clock.Now()
		if s.session.StartTime == nil {
			s.session.StartTime = &now
		}
		s.session.ResumedAt = &now
	}
	if update.ElapsedSeconds > s.session.ElapsedSeconds {
		s.session.ElapsedSeconds = update.ElapsedSeconds
	}
	rec := s.session
	return &rec, nil
}

func (s *stubStore) CompleteSession(ctx context.Context, id uuid.UUID, summary models.CompletionSummary) (*models.StudySession, error) {
	if s.completeEntered != nil {
		s.completeEntered <- struct{}{}
		<-s.completeRelease
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completions = append(s.completions, summary)
	if s.completeErr != nil {
		return nil, s.completeErr
	}
	s.session.Status = models.StatusCompleted
	s.session.Notes = summary.Notes
	rec := s.session
	return &rec, nil
}

type fakeTicker struct {
	ch chan time.Time

	mu      sync.Mutex
	stopped bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }

func (f *fakeTicker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeTicker) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type tickerFactory struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (f *tickerFactory) New(time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time)}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *tickerFactory) last() *fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tickers) == 0 {
		return nil
	}
	return f.tickers[len(f.tickers)-1]
}

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestController(t *testing.T, session models.StudySession) (*Controller, *stubStore, *tickerFactory, *clock.Fixed) {
	t.Helper()

	clk := &clock.Fixed{T: testNow}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	store := &stubStore{clock: clk, session: session}
	tickers := &tickerFactory{}

	c, err := New(&Config{
		SessionID: session.ID,
		Store:     store,
		Clock:     clk,
		NewTicker: tickers.New,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	_, err = c.Load(context.Background())
	require.NoError(t, err)
	return c, store, tickers, clk
}

func scheduledSession() models.StudySession {
	planID := uuid.New()
	return models.StudySession{
		StudyPlanID:              &planID,
		Title:                    "Linear algebra review",
		Status:                   models.StatusScheduled,
		EstimatedDurationSeconds: 1800,
		Objectives: []models.Objective{
			{ID: "o1", Title: "Eigenvalues"},
			{ID: "o2", Title: "Diagonalization"},
		},
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(&Config{SessionID: uuid.New()})
	assert.ErrorIs(t, err, ErrNilStore)

	_, err = New(&Config{Store: &stubStore{}})
	assert.ErrorIs(t, err, ErrNilSessionID)
}

func TestProgressPercentage(t *testing.T) {
	tests := []struct {
		name      string
		elapsed   int
		estimated int
		expected  float64
	}{
		{"zero elapsed", 0, 600, 0},
		{"half way", 300, 600, 50},
		{"exactly done", 600, 600, 100},
		{"overtime is clamped", 5000, 600, 100},
		{"no estimate", 120, 0, 0},
		{"negative estimate", 120, -10, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, ProgressPercentage(tc.elapsed, tc.estimated), 0.0001)
		})
	}
}

func TestStartTicksThenPause(t *testing.T) {
	c, store, tickers, _ := newTestController(t, scheduledSession())
	ctx := context.Background()

	st, err := c.Start(ctx)
	require.NoError(t, err)
	assert.True(t, st.IsActive)
	assert.Equal(t, models.StatusActive, st.Status)

	for i := 0; i < 65; i++ {
		c.Tick()
	}

	st, err = c.Pause(ctx)
	require.NoError(t, err)
	assert.Equal(t, 65, st.ElapsedSeconds)
	assert.False(t, st.IsActive)
	assert.Equal(t, models.StatusPaused, st.Status)

	require.Len(t, store.updates, 2)
	assert.Equal(t, models.StatusActive, store.updates[0].Status)
	assert.Equal(t, models.StatusPaused, store.updates[1].Status)
	assert.Equal(t, 65, store.updates[1].ElapsedSeconds)
	assert.Equal(t, models.StatusPaused, store.session.Status)

	require.NotNil(t, tickers.last())
	assert.True(t, tickers.last().isStopped())
}

func TestElapsedOnlyGrowsWhileActive(t *testing.T) {
	c, _, _, _ := newTestController(t, scheduledSession())
	ctx := context.Background()

	c.Tick()
	assert.Equal(t, 0, c.State().ElapsedSeconds, "scheduled session must not accumulate")

	_, err := c.Start(ctx)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		c.Tick()
	}
	_, err = c.Pause(ctx)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		c.Tick()
	}
	assert.Equal(t, 10, c.State().ElapsedSeconds, "paused session must not accumulate")

	_, err = c.Start(ctx)
	require.NoError(t, err)
	prev := c.State().ElapsedSeconds
	for i := 0; i < 5; i++ {
		st := c.Tick()
		assert.Greater(t, st.ElapsedSeconds, prev)
		prev = st.ElapsedSeconds
	}
	assert.Equal(t, 15, c.State().ElapsedSeconds)
}

func TestStartThenComplete(t *testing.T) {
	session := scheduledSession()
	c, store, tickers, _ := newTestController(t, session)
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)
	c.Tick()
	c.Tick()

	done, err := c.Complete(ctx, models.CompletionSummary{
		Notes:                 "done",
		ConfidenceRating:      4,
		FocusLevel:            5,
		EffectivenessRating:   2,
		CompletedObjectiveIDs: []string{"o1"},
		TechniquesUsed:        []string{"active recall"},
	})
	require.NoError(t, err)

	require.Len(t, store.completions, 1)
	sent := store.completions[0]
	assert.Equal(t, "done", sent.Notes)
	assert.Equal(t, 4, sent.ConfidenceRating)
	assert.Equal(t, 5, sent.FocusLevel)
	assert.Equal(t, 2, sent.EffectivenessRating)
	assert.Equal(t, []string{"o1"}, sent.CompletedObjectiveIDs)
	assert.Equal(t, []string{"active recall"}, sent.TechniquesUsed)
	assert.Equal(t, 2, sent.ElapsedSeconds)
	assert.Equal(t, models.StatusCompleted, store.session.Status)

	assert.Equal(t, models.StatusCompleted, done.State.Status)
	assert.False(t, done.State.IsActive)
	assert.Equal(t, "/plans/"+session.StudyPlanID.String(), done.NavigateTo)
	assert.True(t, tickers.last().isStopped())
}

func TestCompleteDefaultsAndPlanlessNavigation(t *testing.T) {
	session := scheduledSession()
	session.StudyPlanID = nil
	c, store, _, _ := newTestController(t, session)
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)
	_, err = c.ToggleObjective("o2")
	require.NoError(t, err)

	done, err := c.Complete(ctx, models.CompletionSummary{})
	require.NoError(t, err)
	assert.Equal(t, "/plans", done.NavigateTo)

	sent := store.completions[0]
	assert.Equal(t, models.DefaultRating, sent.ConfidenceRating)
	assert.Equal(t, models.DefaultRating, sent.FocusLevel)
	assert.Equal(t, models.DefaultRating, sent.EffectivenessRating)
	assert.Equal(t, []string{"o2"}, sent.CompletedObjectiveIDs)
	assert.NotNil(t, sent.TechniquesUsed)
}

func TestCompleteTwiceDoesNotResubmit(t *testing.T) {
	c, store, _, _ := newTestController(t, scheduledSession())
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)

	_, err = c.Complete(ctx, models.CompletionSummary{Notes: "first"})
	require.NoError(t, err)

	_, err = c.Complete(ctx, models.CompletionSummary{Notes: "second"})
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	assert.Len(t, store.completions, 1)

	_, err = c.Start(ctx)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestCompleteWhileInFlight(t *testing.T) {
	c, store, _, _ := newTestController(t, scheduledSession())
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)

	store.completeEntered = make(chan struct{})
	store.completeRelease = make(chan struct{})

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Complete(ctx, models.CompletionSummary{Notes: "slow"})
		errCh <- err
	}()
	<-store.completeEntered

	_, err = c.Complete(ctx, models.CompletionSummary{Notes: "impatient"})
	assert.ErrorIs(t, err, ErrCompletionInFlight)
	assert.True(t, c.State().Finalizing)

	close(store.completeRelease)
	require.NoError(t, <-errCh)
	assert.Len(t, store.completions, 1)
	assert.False(t, c.State().Finalizing)
}

func TestCompleteRequiresStart(t *testing.T) {
	c, store, _, _ := newTestController(t, scheduledSession())

	_, err := c.Complete(context.Background(), models.CompletionSummary{Notes: "skipped"})
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Empty(t, store.completions)
}

func TestCompleteFromPaused(t *testing.T) {
	c, store, _, _ := newTestController(t, scheduledSession())
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)
	_, err = c.Pause(ctx)
	require.NoError(t, err)

	_, err = c.Complete(ctx, models.CompletionSummary{})
	require.NoError(t, err)
	assert.Len(t, store.completions, 1)
}

func TestPauseRejectedKeepsRunning(t *testing.T) {
	c, store, tickers, _ := newTestController(t, scheduledSession())
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)
	c.Tick()

	store.updateErr = errors.New("network down")
	_, err = c.Pause(ctx)

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "pause", remote.Op)
	assert.ErrorIs(t, err, store.updateErr)

	st := c.State()
	assert.True(t, st.IsActive)
	assert.Equal(t, models.StatusActive, st.Status)
	assert.False(t, tickers.last().isStopped())

	c.Tick()
	assert.Equal(t, 2, c.State().ElapsedSeconds)
}

func TestStartRejectedLeavesStateUntouched(t *testing.T) {
	c, store, tickers, _ := newTestController(t, scheduledSession())
	store.updateErr = errors.New("503")

	_, err := c.Start(context.Background())
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "start", remote.Op)

	st := c.State()
	assert.False(t, st.IsActive)
	assert.Equal(t, models.StatusScheduled, st.Status)
	assert.Nil(t, tickers.last())

	c.Tick()
	assert.Equal(t, 0, c.State().ElapsedSeconds)
}

func TestCompleteRejectedKeepsRunning(t *testing.T) {
	c, store, tickers, _ := newTestController(t, scheduledSession())
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)

	store.completeErr = errors.New("timeout")
	_, err = c.Complete(ctx, models.CompletionSummary{Notes: "retry me"})
	require.Error(t, err)

	st := c.State()
	assert.True(t, st.IsActive)
	assert.Equal(t, models.StatusActive, st.Status)
	assert.False(t, st.Finalizing)
	assert.False(t, tickers.last().isStopped())

	store.completeErr = nil
	_, err = c.Complete(ctx, models.CompletionSummary{Notes: "retry me"})
	require.NoError(t, err)
	assert.Len(t, store.completions, 2)
}

func TestLoadResumesActiveSession(t *testing.T) {
	session := scheduledSession()
	started := testNow.Add(-10 * time.Minute)
	session.Status = models.StatusActive
	session.StartTime = &started
	session.ResumedAt = &started

	c, _, tickers, _ := newTestController(t, session)

	st := c.State()
	assert.True(t, st.IsActive)
	assert.Equal(t, 600, st.ElapsedSeconds)
	assert.InDelta(t, 600.0/1800.0*100, st.ProgressPercentage, 0.0001)
	require.NotNil(t, tickers.last())
	assert.False(t, tickers.last().isStopped())
}

func TestLoadWithoutResumedAtFallsBackToStartTime(t *testing.T) {
	session := scheduledSession()
	started := testNow.Add(-10 * time.Minute)
	session.Status = models.StatusActive
	session.StartTime = &started
	session.ElapsedSeconds = 30

	c, _, _, _ := newTestController(t, session)
	assert.Equal(t, 600, c.State().ElapsedSeconds)
}

func TestReloadAfterResumeExcludesBreak(t *testing.T) {
	c, store, _, clk := newTestController(t, scheduledSession())
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)
	for i := 0; i < 600; i++ {
		c.Tick()
	}
	_, err = c.Pause(ctx)
	require.NoError(t, err)

	clk.Advance(70 * time.Minute)
	_, err = c.Start(ctx)
	require.NoError(t, err)
	c.Close()

	reloaded, err := New(&Config{
		SessionID: store.session.ID,
		Store:     store,
		Clock:     clk,
		NewTicker: (&tickerFactory{}).New,
	})
	require.NoError(t, err)
	defer reloaded.Close()

	st, err := reloaded.Load(ctx)
	require.NoError(t, err)
	assert.True(t, st.IsActive)
	assert.Equal(t, 600, st.ElapsedSeconds)

	clk.Advance(90 * time.Second)
	st, err = reloaded.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 690, st.ElapsedSeconds)
}

func TestLoadPausedSessionKeepsPersistedElapsed(t *testing.T) {
	session := scheduledSession()
	started := testNow.Add(-2 * time.Hour)
	session.Status = models.StatusPaused
	session.StartTime = &started
	session.ElapsedSeconds = 420

	c, _, tickers, _ := newTestController(t, session)

	st := c.State()
	assert.False(t, st.IsActive)
	assert.Equal(t, 420, st.ElapsedSeconds)
	assert.Nil(t, tickers.last())
}

func TestLoadFailure(t *testing.T) {
	store := &stubStore{readErr: errors.New("not found")}
	c, err := New(&Config{SessionID: uuid.New(), Store: store})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Load(context.Background())
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "read", remote.Op)

	_, err = c.Start(context.Background())
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestTickerDrivesElapsed(t *testing.T) {
	c, _, tickers, _ := newTestController(t, scheduledSession())

	_, err := c.Start(context.Background())
	require.NoError(t, err)

	tk := tickers.last()
	for i := 0; i < 3; i++ {
		tk.ch <- testNow
	}

	require.Eventually(t, func() bool {
		return c.State().ElapsedSeconds == 3
	}, time.Second, 5*time.Millisecond)
}

func TestCloseReleasesTicker(t *testing.T) {
	c, _, tickers, _ := newTestController(t, scheduledSession())

	_, err := c.Start(context.Background())
	require.NoError(t, err)

	c.Close()
	assert.True(t, tickers.last().isStopped())

	_, err = c.Pause(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestGuards(t *testing.T) {
	c, store, _, _ := newTestController(t, scheduledSession())
	ctx := context.Background()

	_, err := c.Pause(ctx)
	assert.ErrorIs(t, err, ErrNotActive)

	_, err = c.Start(ctx)
	require.NoError(t, err)
	_, err = c.Start(ctx)
	assert.ErrorIs(t, err, ErrAlreadyActive)
	assert.Len(t, store.updates, 1)

	_, err = c.ToggleObjective("missing")
	assert.ErrorIs(t, err, ErrUnknownObjective)
}

func TestObjectivesAndNotes(t *testing.T) {
	c, _, _, _ := newTestController(t, scheduledSession())

	st, err := c.ToggleObjective("o2")
	require.NoError(t, err)
	assert.Equal(t, []string{"o2"}, st.CompletedObjectiveIDs)

	st, err = c.ToggleObjective("o1")
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o2"}, st.CompletedObjectiveIDs)

	st, err = c.ToggleObjective("o2")
	require.NoError(t, err)
	assert.Equal(t, []string{"o1"}, st.CompletedObjectiveIDs)

	st, err = c.SetNotes("chapter 4 is tricky")
	require.NoError(t, err)
	assert.Equal(t, "chapter 4 is tricky", st.Notes)
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	session := scheduledSession()
	session.ID = uuid.New()
	store := &stubStore{clock: &clock.Fixed{T: testNow}, session: session}

	var mu sync.Mutex
	var seen []State
	c, err := New(&Config{
		SessionID: session.ID,
		Store:     store,
		Clock:     &clock.Fixed{T: testNow},
		NewTicker: (&tickerFactory{}).New,
		OnChange: func(st State) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, st)
		},
	})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, err = c.Load(ctx)
	require.NoError(t, err)
	_, err = c.Start(ctx)
	require.NoError(t, err)
	c.Tick()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.Equal(t, models.StatusScheduled, seen[0].Status)
	assert.True(t, seen[1].IsActive)
	assert.Equal(t, 1, seen[2].ElapsedSeconds)
}

func TestSnapshotVersionsOrderLateDeliveries(t *testing.T) {
	session := scheduledSession()
	session.ID = uuid.New()
	clk := &clock.Fixed{T: testNow}
	store := &stubStore{clock: clk, session: session}

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var delivered []State

	c, err := New(&Config{
		SessionID: session.ID,
		Store:     store,
		Clock:     clk,
		NewTicker: (&tickerFactory{}).New,
		OnChange: func(st State) {
			if st.IsActive && st.ElapsedSeconds == 1 {
				entered <- struct{}{}
				<-release
			}
			mu.Lock()
			defer mu.Unlock()
			delivered = append(delivered, st)
		},
	})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, err = c.Load(ctx)
	require.NoError(t, err)
	_, err = c.Start(ctx)
	require.NoError(t, err)

	tickDone := make(chan State, 1)
	go func() { tickDone <- c.Tick() }()
	<-entered

	paused, err := c.Pause(ctx)
	require.NoError(t, err)
	close(release)
	tick := <-tickDone

	assert.Greater(t, paused.Version, tick.Version)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, delivered)
	assert.True(t, delivered[len(delivered)-1].IsActive, "tick snapshot arrives last")

	latest := delivered[0]
	for _, st := range delivered {
		if st.Version > latest.Version {
			latest = st
		}
	}
	assert.Equal(t, models.StatusPaused, latest.Status)
	assert.False(t, latest.IsActive)
}
