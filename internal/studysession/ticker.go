package studysession

import "time"

// Ticker is the repeating timer owned by a Controller while a session is active.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

// NewTicker returns a Ticker backed by time.Ticker.
func NewTicker(d time.Duration) Ticker {
	return &timeTicker{t: time.NewTicker(d)}
}

func (t *timeTicker) C() <-chan time.Time {
	return t.t.C
}

func (t *timeTicker) Stop() {
	t.t.Stop()
}

// ProgressPercentage derives the display percentage of a session. It is
// clamped to [0, 100]; elapsed time itself is never capped.
func ProgressPercentage(elapsedSeconds, estimatedDurationSeconds int) float64 {
	if estimatedDurationSeconds <= 0 || elapsedSeconds <= 0 {
		return 0
	}
	pct := float64(elapsedSeconds) / float64(estimatedDurationSeconds) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
