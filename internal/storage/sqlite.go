package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dosewatch/internal/dose"
	logx "dosewatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) CreateOwner(ctx context.Context, o Owner) error {
	if o.ID == "" {
		return fmt.Errorf("owner id is required")
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO owners(id, phone, telegram_chat_id, created_at) VALUES(?,?,?,?)`,
		o.ID, o.Phone, o.TelegramChatID, o.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) GetOwner(ctx context.Context, id string) (Owner, error) {
	var o Owner
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, phone, telegram_chat_id, created_at FROM owners WHERE id = ?`, id).
		Scan(&o.ID, &o.Phone, &o.TelegramChatID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Owner{}, ErrNotFound
	}
	if err != nil {
		return Owner{}, err
	}
	o.CreatedAt = parseTime(created)
	return o, nil
}

func (s *sqliteStore) ListOwners(ctx context.Context) ([]Owner, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phone, telegram_chat_id, created_at FROM owners ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Owner
	for rows.Next() {
		var o Owner
		var created string
		if err := rows.Scan(&o.ID, &o.Phone, &o.TelegramChatID, &created); err != nil {
			return nil, err
		}
		o.CreatedAt = parseTime(created)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CreateDose(ctx context.Context, d dose.Dose) error {
	if d.ID == "" || d.OwnerID == "" {
		return fmt.Errorf("dose id and owner id are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO doses(id, owner_id, name, dosage, date, time, status,
		                   reminded_at, late_at, missed_at, taken_at, created_at, active)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.OwnerID, d.Name, d.Dosage, d.Date, d.Time, string(d.Status),
		nullTime(d.RemindedAt), nullTime(d.LateAt), nullTime(d.MissedAt), nullTime(d.TakenAt),
		d.CreatedAt.Format(time.RFC3339Nano), boolInt(d.Active),
	)
	return err
}

func (s *sqliteStore) ListDosesForDate(ctx context.Context, ownerID, date string) ([]dose.Dose, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, name, dosage, date, time, status,
		        reminded_at, late_at, missed_at, taken_at, created_at, active
		   FROM doses WHERE owner_id = ? AND date = ? ORDER BY time, id`,
		ownerID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dose.Dose
	for rows.Next() {
		var d dose.Dose
		var status, created string
		var reminded, late, missed, taken sql.NullString
		var active int
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Name, &d.Dosage, &d.Date, &d.Time, &status,
			&reminded, &late, &missed, &taken, &created, &active); err != nil {
			return nil, err
		}
		d.Status = dose.Status(status)
		d.RemindedAt = parseNullTime(reminded)
		d.LateAt = parseNullTime(late)
		d.MissedAt = parseNullTime(missed)
		d.TakenAt = parseNullTime(taken)
		d.CreatedAt = parseTime(created)
		d.Active = active != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateDoseStatus(ctx context.Context, ownerID, doseID string, from, to dose.Status, stamp string, at time.Time) error {
	// Column name is interpolated; the whitelist keeps it safe.
	if !validStamp(stamp) {
		return fmt.Errorf("invalid timestamp field %q", stamp)
	}
	// Compare-and-set on the status the caller read, so a concurrent
	// mark-taken is never overwritten by a slower evaluation pass.
	q := fmt.Sprintf(`UPDATE doses SET status = ?, %s = ? WHERE owner_id = ? AND id = ? AND status = ?`, stamp)
	res, err := s.db.ExecContext(ctx, q, string(to), at.Format(time.RFC3339Nano), ownerID, doseID, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either missing or the status moved underneath us.
		var one int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM doses WHERE owner_id = ? AND id = ?`, ownerID, doseID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrStaleStatus
	}
	return nil
}

func (s *sqliteStore) MarkDoseTaken(ctx context.Context, ownerID, doseID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE doses SET status = ?, taken_at = ? WHERE owner_id = ? AND id = ? AND status != ?`,
		string(dose.StatusTaken), at.Format(time.RFC3339Nano), ownerID, doseID, string(dose.StatusTaken))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either missing or already taken; distinguish for the caller.
		var one int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM doses WHERE owner_id = ? AND id = ?`, ownerID, doseID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *sqliteStore) CreateNotification(ctx context.Context, n Notification) error {
	if n.ID == "" || n.OwnerID == "" {
		return fmt.Errorf("notification id and owner id are required")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications(id, owner_id, message, kind, created_at, read, read_at)
		 VALUES(?,?,?,?,?,?,?)`,
		n.ID, n.OwnerID, n.Message, string(n.Kind), n.CreatedAt.Format(time.RFC3339Nano),
		boolInt(n.Read), nullTime(n.ReadAt),
	)
	return err
}

func (s *sqliteStore) ListNotifications(ctx context.Context, ownerID string) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, message, kind, created_at, read, read_at
		   FROM notifications WHERE owner_id = ? ORDER BY created_at DESC, id`,
		ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var kind, created string
		var read int
		var readAt sql.NullString
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Message, &kind, &created, &read, &readAt); err != nil {
			return nil, err
		}
		n.Kind = dose.Kind(kind)
		n.CreatedAt = parseTime(created)
		n.Read = read != 0
		n.ReadAt = parseNullTime(readAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *sqliteStore) MarkNotificationRead(ctx context.Context, ownerID, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1, read_at = ? WHERE owner_id = ? AND id = ? AND read = 0`,
		at.Format(time.RFC3339Nano), ownerID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var one int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM notifications WHERE owner_id = ? AND id = ?`, ownerID, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
