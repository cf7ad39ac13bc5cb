package sched

import "time"

// Snapshot is a point-in-time view of the scheduler, surfaced by the
// health endpoint.
type Snapshot struct {
	Enabled      bool      `json:"enabled"`
	Timezone     string    `json:"timezone"`
	Running      bool      `json:"running"`
	Ticks        uint64    `json:"ticks"`
	SkippedTicks uint64    `json:"skipped_ticks"`
	Transitions  uint64    `json:"transitions"`
	GuardEntries int       `json:"guard_entries"`
	LastPass     time.Time `json:"last_pass,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	tz := s.loc.String()
	lastPass := s.lastPass
	lastErr := s.lastErr
	s.mu.Unlock()

	return Snapshot{
		Enabled:      enabled,
		Timezone:     tz,
		Running:      s.running.Load(),
		Ticks:        s.ticks.Load(),
		SkippedTicks: s.skips.Load(),
		Transitions:  s.transitions.Load(),
		GuardEntries: s.guard.Len(),
		LastPass:     lastPass,
		LastError:    lastErr,
	}
}
