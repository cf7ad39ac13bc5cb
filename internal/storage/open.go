package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"dosewatch/internal/dose"
	logx "dosewatch/pkg/logx"
)

var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("store closed")

	// ErrStaleStatus is returned by UpdateDoseStatus when the dose's
	// stored status no longer matches the status the caller read. The
	// write is discarded; the dose gets re-evaluated on the next pass.
	ErrStaleStatus = errors.New("dose status changed since read")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (modernc, no cgo)
//   - "memory": in-process maps; data is lost on restart
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Owner is the account doses and notifications are namespaced under.
// Phone and TelegramChatID address the outbound notification channels;
// either may be empty, which silently disables that channel for the owner.
type Owner struct {
	ID             string    `json:"id"`
	Phone          string    `json:"phone,omitempty"`
	TelegramChatID int64     `json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Notification is a record of a dose transition surfaced to the owner.
// Immutable except for the Read/ReadAt pair.
type Notification struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	Message   string     `json:"message"`
	Kind      dose.Kind  `json:"kind"`
	CreatedAt time.Time  `json:"created_at"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// Store is the persistence API consumed by the scheduler and the HTTP
// surface. Dates are YYYY-MM-DD strings in the owner's local timezone.
type Store interface {
	CreateOwner(ctx context.Context, o Owner) error
	// GetOwner returns ErrNotFound for unknown ids.
	GetOwner(ctx context.Context, id string) (Owner, error)
	ListOwners(ctx context.Context) ([]Owner, error)

	CreateDose(ctx context.Context, d dose.Dose) error
	ListDosesForDate(ctx context.Context, ownerID, date string) ([]dose.Dose, error)
	// UpdateDoseStatus advances a dose from one status to another and
	// records the instant in the named timestamp column (reminded_at,
	// late_at, missed_at, taken_at). The write is a compare-and-set:
	// if the stored status no longer equals from, nothing is written
	// and ErrStaleStatus is returned. This keeps "taken" terminal even
	// when a concurrent mark-taken lands between an evaluation pass's
	// read and its write.
	UpdateDoseStatus(ctx context.Context, ownerID, doseID string, from, to dose.Status, stamp string, at time.Time) error
	MarkDoseTaken(ctx context.Context, ownerID, doseID string, at time.Time) error

	CreateNotification(ctx context.Context, n Notification) error
	// ListNotifications returns the owner's notifications newest-first.
	ListNotifications(ctx context.Context, ownerID string) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, ownerID, id string, at time.Time) error

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func validStamp(stamp string) bool {
	switch stamp {
	case "reminded_at", "late_at", "missed_at", "taken_at":
		return true
	}
	return false
}
