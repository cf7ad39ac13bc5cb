package dose

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a single dose.
//
// Within a day a dose only moves forward along
// scheduled -> pending -> late -> missed; "taken" is reachable from any
// non-terminal state and is always terminal.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusPending   Status = "pending"
	StatusLate      Status = "late"
	StatusMissed    Status = "missed"
	StatusTaken     Status = "taken"
)

// Kind tags a status-advancing event as surfaced to the owner.
type Kind string

const (
	KindReminder Kind = "reminder"
	KindLate     Kind = "late"
	KindMissed   Kind = "missed"
)

// Dose is one scheduled administration event for a medication on a
// specific date. Recurring schedules materialize as independent rows,
// one per date, at schedule time.
type Dose struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
	Dosage  string `json:"dosage"`

	// Date is the scheduled calendar date (YYYY-MM-DD) and Time the
	// scheduled local time of day (HH:MM), both owner-local wall clock.
	Date string `json:"date"`
	Time string `json:"time"`

	Status Status `json:"status"`

	RemindedAt *time.Time `json:"reminded_at,omitempty"`
	LateAt     *time.Time `json:"late_at,omitempty"`
	MissedAt   *time.Time `json:"missed_at,omitempty"`
	TakenAt    *time.Time `json:"taken_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

// ScheduledAt resolves the dose's date + time fields into a wall-clock
// instant in loc. It fails on malformed fields; callers skip such doses
// rather than aborting a whole evaluation pass.
func (d *Dose) ScheduledAt(loc *time.Location) (time.Time, error) {
	day, err := ParseDate(d.Date)
	if err != nil {
		return time.Time{}, err
	}
	h, m, err := ParseClock(d.Time)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc), nil
}

const DateLayout = "2006-01-02"

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

func ParseClock(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
