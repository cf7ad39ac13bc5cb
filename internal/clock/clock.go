package clock

import "time"

// Clock supplies the current instant to the evaluation pass. Injected so
// tests can drive ticks and elapsed-time boundaries deterministically.
type Clock interface {
	Now() time.Time
}

type wallClock struct {
	loc *time.Location
}

// In returns a wall clock that reports time in loc.
func In(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return wallClock{loc: loc}
}

func (c wallClock) Now() time.Time { return time.Now().In(c.loc) }

// Fixed is a manually-driven clock for tests.
type Fixed struct {
	at time.Time
}

func NewFixed(at time.Time) *Fixed { return &Fixed{at: at} }

func (f *Fixed) Now() time.Time { return f.at }

func (f *Fixed) Set(at time.Time) { f.at = at }

func (f *Fixed) Advance(d time.Duration) { f.at = f.at.Add(d) }
