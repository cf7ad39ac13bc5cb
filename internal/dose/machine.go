package dose

import "time"

// Decision is the outcome of evaluating one dose at one instant.
type Decision int

const (
	NoAction Decision = iota
	ToPending
	ToLate
	ToMissed
)

func (d Decision) String() string {
	switch d {
	case ToPending:
		return "pending"
	case ToLate:
		return "late"
	case ToMissed:
		return "missed"
	default:
		return "none"
	}
}

// Lifecycle thresholds, measured from the scheduled instant.
// The on-time window is a single evaluation slot wide: the driver ticks
// once a minute, and a dose gets exactly one such window per day.
const (
	PendingWindow = time.Minute
	LateAfter     = 30 * time.Minute
	MissedAfter   = 120 * time.Minute
)

// Evaluate maps a dose's current status and the elapsed time since its
// scheduled instant to a transition decision. Pure; both instants must
// be in the owner's local timezone.
//
// Transitions are gated on status, not just elapsed time: a dose that
// never made it to "pending" (say the on-time tick landed during a
// restart) stays "scheduled" for the rest of the day instead of jumping
// straight to "late". Catch-up is time-based only once the dose is past
// the on-time window.
func Evaluate(status Status, scheduledAt, now time.Time) Decision {
	if status == StatusTaken {
		return NoAction
	}
	elapsed := now.Sub(scheduledAt)
	switch {
	case elapsed >= 0 && elapsed < PendingWindow && (status == StatusScheduled || status == ""):
		return ToPending
	case elapsed >= LateAfter && elapsed < MissedAfter && status == StatusPending:
		return ToLate
	case elapsed >= MissedAfter && status == StatusLate:
		return ToMissed
	}
	return NoAction
}

// Transition describes the committed effect of a non-NoAction decision:
// the status to persist, the timestamp column recording when it
// happened, and the notification kind to dispatch.
type Transition struct {
	To    Status
	Stamp string
	Kind  Kind
}

func (d Decision) Transition() (Transition, bool) {
	switch d {
	case ToPending:
		return Transition{To: StatusPending, Stamp: "reminded_at", Kind: KindReminder}, true
	case ToLate:
		return Transition{To: StatusLate, Stamp: "late_at", Kind: KindLate}, true
	case ToMissed:
		return Transition{To: StatusMissed, Stamp: "missed_at", Kind: KindMissed}, true
	default:
		return Transition{}, false
	}
}
