package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dosewatch/internal/dose"
)

// memoryStore keeps everything in process-local maps. Default driver;
// also what the tests run against.
type memoryStore struct {
	mu sync.Mutex

	owners map[string]Owner
	doses  map[string]map[string]dose.Dose    // ownerID -> doseID -> dose
	notifs map[string][]Notification          // ownerID -> notifications, append order
	closed bool
}

func NewMemory() Store {
	return &memoryStore{
		owners: map[string]Owner{},
		doses:  map[string]map[string]dose.Dose{},
		notifs: map[string][]Notification{},
	}
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memoryStore) CreateOwner(ctx context.Context, o Owner) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if o.ID == "" {
		return fmt.Errorf("owner id is required")
	}
	if _, ok := s.owners[o.ID]; ok {
		return fmt.Errorf("owner %q already exists", o.ID)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	s.owners[o.ID] = o
	return nil
}

func (s *memoryStore) GetOwner(ctx context.Context, id string) (Owner, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Owner{}, ErrClosed
	}
	o, ok := s.owners[id]
	if !ok {
		return Owner{}, ErrNotFound
	}
	return o, nil
}

func (s *memoryStore) ListOwners(ctx context.Context) ([]Owner, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]Owner, 0, len(s.owners))
	for _, o := range s.owners {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) CreateDose(ctx context.Context, d dose.Dose) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if d.ID == "" || d.OwnerID == "" {
		return fmt.Errorf("dose id and owner id are required")
	}
	m := s.doses[d.OwnerID]
	if m == nil {
		m = map[string]dose.Dose{}
		s.doses[d.OwnerID] = m
	}
	if _, ok := m[d.ID]; ok {
		return fmt.Errorf("dose %q already exists", d.ID)
	}
	m[d.ID] = d
	return nil
}

func (s *memoryStore) ListDosesForDate(ctx context.Context, ownerID, date string) ([]dose.Dose, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []dose.Dose
	for _, d := range s.doses[ownerID] {
		if d.Date == date {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryStore) UpdateDoseStatus(ctx context.Context, ownerID, doseID string, from, to dose.Status, stamp string, at time.Time) error {
	_ = ctx
	if !validStamp(stamp) {
		return fmt.Errorf("invalid timestamp field %q", stamp)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	d, ok := s.doses[ownerID][doseID]
	if !ok {
		return ErrNotFound
	}
	if d.Status != from {
		return ErrStaleStatus
	}
	d.Status = to
	t := at
	switch stamp {
	case "reminded_at":
		d.RemindedAt = &t
	case "late_at":
		d.LateAt = &t
	case "missed_at":
		d.MissedAt = &t
	case "taken_at":
		d.TakenAt = &t
	}
	s.doses[ownerID][doseID] = d
	return nil
}

func (s *memoryStore) MarkDoseTaken(ctx context.Context, ownerID, doseID string, at time.Time) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	d, ok := s.doses[ownerID][doseID]
	if !ok {
		return ErrNotFound
	}
	if d.Status == dose.StatusTaken {
		return nil
	}
	d.Status = dose.StatusTaken
	t := at
	d.TakenAt = &t
	s.doses[ownerID][doseID] = d
	return nil
}

func (s *memoryStore) CreateNotification(ctx context.Context, n Notification) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if n.ID == "" || n.OwnerID == "" {
		return fmt.Errorf("notification id and owner id are required")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	s.notifs[n.OwnerID] = append(s.notifs[n.OwnerID], n)
	return nil
}

func (s *memoryStore) ListNotifications(ctx context.Context, ownerID string) ([]Notification, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	src := s.notifs[ownerID]
	out := make([]Notification, len(src))
	copy(out, src)
	// Newest first.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryStore) MarkNotificationRead(ctx context.Context, ownerID, id string, at time.Time) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	list := s.notifs[ownerID]
	for i := range list {
		if list[i].ID == id {
			if !list[i].Read {
				t := at
				list[i].Read = true
				list[i].ReadAt = &t
			}
			return nil
		}
	}
	return ErrNotFound
}
