// Package studysession drives a single study session through its lifecycle:
// scheduled, active, paused and completed. It keeps the running timer and the
// elapsed-time accumulator locally and persists every status transition to a
// remote Store. Local state only changes after the store acknowledges a call.
package studysession

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"studyflow/internal/common/clock"
	"studyflow/internal/models"
)

// Store is the remote session-record store.
type Store interface {
	ReadSession(ctx context.Context, id uuid.UUID) (*models.StudySession, error)
	UpdateSessionStatus(ctx context.Context, id uuid.UUID, update models.StatusUpdate) (*models.StudySession, error)
	CompleteSession(ctx context.Context, id uuid.UUID, summary models.CompletionSummary) (*models.StudySession, error)
}

type Config struct {
	SessionID uuid.UUID
	Store     Store

	// Optional
	Clock        clock.Clock
	NewTicker    func(time.Duration) Ticker
	TickInterval time.Duration
	OnChange     func(State)
}

// State is the view-friendly snapshot handed to display code.
type State struct {
	SessionID                uuid.UUID            `json:"session_id"`
	Title                    string               `json:"title"`
	Status                   models.SessionStatus `json:"status"`
	IsActive                 bool                 `json:"is_active"`
	ElapsedSeconds           int                  `json:"elapsed_seconds"`
	EstimatedDurationSeconds int                  `json:"estimated_duration_seconds"`
	ProgressPercentage       float64              `json:"progress_percentage"`
	Objectives               []models.Objective   `json:"objectives"`
	CompletedObjectiveIDs    []string             `json:"completed_objective_ids"`
	Notes                    string               `json:"notes"`
	StudyPlanID              *uuid.UUID           `json:"study_plan_id,omitempty"`
	Finalizing               bool                 `json:"finalizing"`

	// Version increases with every snapshot. Hooks may run concurrently, so
	// consumers drop a snapshot older than the one they hold.
	Version uint64 `json:"version"`
}

// Completion is returned by a successful Complete.
type Completion struct {
	State      State
	NavigateTo string
}

type Controller struct {
	id        uuid.UUID
	store     Store
	clock     clock.Clock
	newTicker func(time.Duration) Ticker
	interval  time.Duration
	onChange  func(State)

	mu         sync.Mutex
	loaded     bool
	closed     bool
	finalizing bool
	title      string
	status     models.SessionStatus
	startTime  *time.Time
	isActive   bool
	elapsed    int
	estimated  int
	objectives []models.Objective
	done       map[string]bool
	notes      string
	planID     *uuid.UUID

	ticker     Ticker
	tickStop   chan struct{}
	generation int
	version    uint64
}

func New(cfg *Config) (*Controller, error) {
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	if cfg.SessionID == uuid.Nil {
		return nil, ErrNilSessionID
	}

	c := &Controller{
		id:        cfg.SessionID,
		store:     cfg.Store,
		clock:     cfg.Clock,
		newTicker: cfg.NewTicker,
		interval:  cfg.TickInterval,
		onChange:  cfg.OnChange,
		done:      make(map[string]bool),
	}
	if c.clock == nil {
		c.clock = &clock.DefaultClock{}
	}
	if c.newTicker == nil {
		c.newTicker = NewTicker
	}
	if c.interval <= 0 {
		c.interval = time.Second
	}
	return c, nil
}

// Load reads the persisted session. An already-active record resumes with the
// time since its last move into active added to the persisted elapsed time, so
// a reload mid-session keeps counting without charging earlier breaks.
func (c *Controller) Load(ctx context.Context) (State, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return State{}, ErrClosed
	}
	c.mu.Unlock()

	rec, err := c.store.ReadSession(ctx, c.id)
	if err != nil {
		return State{}, &RemoteError{Op: "read", Err: err}
	}

	c.mu.Lock()
	c.loaded = true
	c.title = rec.Title
	c.status = rec.Status
	c.startTime = rec.StartTime
	c.estimated = rec.EstimatedDurationSeconds
	c.objectives = append([]models.Objective(nil), rec.Objectives...)
	c.done = make(map[string]bool, len(rec.CompletedObjectiveIDs))
	for _, id := range rec.CompletedObjectiveIDs {
		c.done[id] = true
	}
	c.notes = rec.Notes
	c.planID = rec.StudyPlanID

	recovered := rec.ElapsedSeconds
	if rec.Status == models.StatusActive {
		now := c.clock.Now()
		switch {
		case rec.ResumedAt != nil:
			recovered += secondsSince(now, *rec.ResumedAt)
		case rec.StartTime != nil:
			// records written before resumed_at existed
			if since := secondsSince(now, *rec.StartTime); since > recovered {
				recovered = since
			}
		}
	}
	if recovered > c.elapsed {
		c.elapsed = recovered
	}

	if rec.Status == models.StatusActive {
		c.isActive = true
		c.startTickerLocked()
	} else {
		c.isActive = false
		c.stopTickerLocked()
	}

	st := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(st)
	return st, nil
}

// Start moves a scheduled or paused session to active.
func (c *Controller) Start(ctx context.Context) (State, error) {
	c.mu.Lock()
	if err := c.checkUsableLocked(); err != nil {
		c.mu.Unlock()
		return State{}, err
	}
	if c.finalizing {
		c.mu.Unlock()
		return State{}, ErrCompletionInFlight
	}
	if c.isActive {
		c.mu.Unlock()
		return State{}, ErrAlreadyActive
	}
	update := models.StatusUpdate{Status: models.StatusActive, ElapsedSeconds: c.elapsed}
	c.mu.Unlock()

	rec, err := c.store.UpdateSessionStatus(ctx, c.id, update)
	if err != nil {
		return State{}, &RemoteError{Op: "start", Err: err}
	}

	c.mu.Lock()
	if c.status == models.StatusCompleted || c.closed {
		c.mu.Unlock()
		return State{}, ErrAlreadyCompleted
	}
	c.status = models.StatusActive
	if c.startTime == nil {
		if rec.StartTime != nil {
			c.startTime = rec.StartTime
		} else {
			now := c.clock.Now()
			c.startTime = &now
		}
	}
	if rec.ElapsedSeconds > c.elapsed {
		c.elapsed = rec.ElapsedSeconds
	}
	c.isActive = true
	c.startTickerLocked()
	st := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(st)
	return st, nil
}

// Pause freezes the timer once the store has accepted the paused status. If
// the store rejects the call the session keeps running.
func (c *Controller) Pause(ctx context.Context) (State, error) {
	c.mu.Lock()
	if err := c.checkUsableLocked(); err != nil {
		c.mu.Unlock()
		return State{}, err
	}
	if c.finalizing {
		c.mu.Unlock()
		return State{}, ErrCompletionInFlight
	}
	if !c.isActive {
		c.mu.Unlock()
		return State{}, ErrNotActive
	}
	update := models.StatusUpdate{Status: models.StatusPaused, ElapsedSeconds: c.elapsed}
	c.mu.Unlock()

	if _, err := c.store.UpdateSessionStatus(ctx, c.id, update); err != nil {
		return State{}, &RemoteError{Op: "pause", Err: err}
	}

	c.mu.Lock()
	if c.status == models.StatusCompleted {
		c.mu.Unlock()
		return State{}, ErrAlreadyCompleted
	}
	c.status = models.StatusPaused
	c.isActive = false
	c.stopTickerLocked()
	st := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(st)
	return st, nil
}

// Tick advances the elapsed counter by one second. It is a no-op unless the
// session is active.
func (c *Controller) Tick() State {
	c.mu.Lock()
	return c.tickLocked()
}

func (c *Controller) tickGeneration(gen int) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.tickLocked()
}

// tickLocked releases the mutex before notifying.
func (c *Controller) tickLocked() State {
	if !c.isActive {
		st := c.snapshotLocked()
		c.mu.Unlock()
		return st
	}
	c.elapsed++
	st := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(st)
	return st
}

// Complete finalizes the session with the user's summary in a single store
// call. Zero ratings fall back to models.DefaultRating and a nil objective list
// falls back to the objectives toggled during the session.
func (c *Controller) Complete(ctx context.Context, summary models.CompletionSummary) (*Completion, error) {
	c.mu.Lock()
	if err := c.checkUsableLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.finalizing {
		c.mu.Unlock()
		return nil, ErrCompletionInFlight
	}
	if c.startTime == nil && c.status == models.StatusScheduled {
		c.mu.Unlock()
		return nil, ErrNotStarted
	}
	c.finalizing = true
	summary = c.fillSummaryLocked(summary)
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(st)

	if _, err := c.store.CompleteSession(ctx, c.id, summary); err != nil {
		c.mu.Lock()
		c.finalizing = false
		st := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(st)
		return nil, &RemoteError{Op: "complete", Err: err}
	}

	c.mu.Lock()
	c.finalizing = false
	c.status = models.StatusCompleted
	c.isActive = false
	c.stopTickerLocked()
	c.notes = summary.Notes
	c.done = make(map[string]bool, len(summary.CompletedObjectiveIDs))
	for _, id := range summary.CompletedObjectiveIDs {
		c.done[id] = true
	}
	st = c.snapshotLocked()
	nav := "/plans"
	if c.planID != nil {
		nav = "/plans/" + c.planID.String()
	}
	c.mu.Unlock()

	c.notify(st)
	return &Completion{State: st, NavigateTo: nav}, nil
}

// ToggleObjective marks an objective done, or undone if it already was.
func (c *Controller) ToggleObjective(objectiveID string) (State, error) {
	c.mu.Lock()
	if err := c.checkUsableLocked(); err != nil {
		c.mu.Unlock()
		return State{}, err
	}
	known := false
	for _, o := range c.objectives {
		if o.ID == objectiveID {
			known = true
			break
		}
	}
	if !known {
		c.mu.Unlock()
		return State{}, ErrUnknownObjective
	}
	if c.done[objectiveID] {
		delete(c.done, objectiveID)
	} else {
		c.done[objectiveID] = true
	}
	st := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(st)
	return st, nil
}

func (c *Controller) SetNotes(notes string) (State, error) {
	c.mu.Lock()
	if err := c.checkUsableLocked(); err != nil {
		c.mu.Unlock()
		return State{}, err
	}
	c.notes = notes
	st := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(st)
	return st, nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close releases the ticker. The controller cannot be used afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopTickerLocked()
}

func (c *Controller) checkUsableLocked() error {
	if c.closed {
		return ErrClosed
	}
	if !c.loaded {
		return ErrNotLoaded
	}
	if c.status == models.StatusCompleted {
		return ErrAlreadyCompleted
	}
	return nil
}

func (c *Controller) fillSummaryLocked(s models.CompletionSummary) models.CompletionSummary {
	if s.ConfidenceRating == 0 {
		s.ConfidenceRating = models.DefaultRating
	}
	if s.FocusLevel == 0 {
		s.FocusLevel = models.DefaultRating
	}
	if s.EffectivenessRating == 0 {
		s.EffectivenessRating = models.DefaultRating
	}
	if s.CompletedObjectiveIDs == nil {
		s.CompletedObjectiveIDs = c.completedIDsLocked()
	}
	if s.TechniquesUsed == nil {
		s.TechniquesUsed = []string{}
	}
	s.ElapsedSeconds = c.elapsed
	return s
}

func (c *Controller) completedIDsLocked() []string {
	ids := make([]string, 0, len(c.done))
	for _, o := range c.objectives {
		if c.done[o.ID] {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

func (c *Controller) snapshotLocked() State {
	c.version++
	return State{
		SessionID:                c.id,
		Title:                    c.title,
		Status:                   c.status,
		IsActive:                 c.isActive,
		ElapsedSeconds:           c.elapsed,
		EstimatedDurationSeconds: c.estimated,
		ProgressPercentage:       ProgressPercentage(c.elapsed, c.estimated),
		Objectives:               append([]models.Objective(nil), c.objectives...),
		CompletedObjectiveIDs:    c.completedIDsLocked(),
		Notes:                    c.notes,
		StudyPlanID:              c.planID,
		Finalizing:               c.finalizing,
		Version:                  c.version,
	}
}

func secondsSince(now, t time.Time) int {
	if d := now.Sub(t); d > 0 {
		return int(d / time.Second)
	}
	return 0
}

// startTickerLocked acquires the ticker if none is running. Each ticker gets
// its own generation so a loop that outlives its Stop cannot tick.
func (c *Controller) startTickerLocked() {
	if c.ticker != nil {
		return
	}
	c.generation++
	gen := c.generation
	t := c.newTicker(c.interval)
	stop := make(chan struct{})
	c.ticker = t
	c.tickStop = stop

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-t.C():
				c.tickGeneration(gen)
			}
		}
	}()
}

func (c *Controller) stopTickerLocked() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	close(c.tickStop)
	c.ticker = nil
	c.tickStop = nil
	c.generation++
}

func (c *Controller) notify(st State) {
	if c.onChange != nil {
		c.onChange(st)
	}
}
