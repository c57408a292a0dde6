package clock

import "time"

type Clock interface {
	Now() time.Time
}

// DefaultClock implements the Clock interface using the system clock
type DefaultClock struct{}

// Now returns the current time
func (c *DefaultClock) Now() time.Time {
	return time.Now()
}

// Fixed is a Clock that always reports the same instant until moved.
type Fixed struct {
	T time.Time
}

func (f *Fixed) Now() time.Time {
	return f.T
}

// Advance moves the fixed clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.T = f.T.Add(d)
}
