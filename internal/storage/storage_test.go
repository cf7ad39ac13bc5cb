package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"dosewatch/internal/dose"
	logx "dosewatch/pkg/logx"
)

func openTestStores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "dosewatch.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func TestDoseRoundTrip(t *testing.T) {
	for name, st := range openTestStores(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			defer st.Close()
			ctx := context.Background()

			owner := Owner{ID: "u1", Phone: "+15550100", CreatedAt: time.Now()}
			if err := st.CreateOwner(ctx, owner); err != nil {
				t.Fatalf("CreateOwner: %v", err)
			}
			owners, err := st.ListOwners(ctx)
			if err != nil || len(owners) != 1 || owners[0].ID != "u1" {
				t.Fatalf("ListOwners = %v, %v", owners, err)
			}
			if owners[0].Phone != "+15550100" {
				t.Fatalf("Phone = %q", owners[0].Phone)
			}
			got1, err := st.GetOwner(ctx, "u1")
			if err != nil || got1.Phone != "+15550100" {
				t.Fatalf("GetOwner = %+v, %v", got1, err)
			}
			if _, err := st.GetOwner(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}

			d := dose.Dose{
				ID: "d1", OwnerID: "u1", Name: "aspirin", Dosage: "500mg",
				Date: "2025-03-10", Time: "09:00", Status: dose.StatusScheduled,
				CreatedAt: time.Now(), Active: true,
			}
			if err := st.CreateDose(ctx, d); err != nil {
				t.Fatalf("CreateDose: %v", err)
			}

			got, err := st.ListDosesForDate(ctx, "u1", "2025-03-10")
			if err != nil {
				t.Fatalf("ListDosesForDate: %v", err)
			}
			if len(got) != 1 || got[0].Name != "aspirin" || got[0].Status != dose.StatusScheduled {
				t.Fatalf("unexpected doses: %+v", got)
			}
			if !got[0].Active {
				t.Fatal("Active not persisted")
			}

			// Other dates and owners stay empty.
			if ds, _ := st.ListDosesForDate(ctx, "u1", "2025-03-11"); len(ds) != 0 {
				t.Fatalf("wrong-date doses: %+v", ds)
			}
			if ds, _ := st.ListDosesForDate(ctx, "u2", "2025-03-10"); len(ds) != 0 {
				t.Fatalf("wrong-owner doses: %+v", ds)
			}
		})
	}
}

func TestUpdateDoseStatus(t *testing.T) {
	for name, st := range openTestStores(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			defer st.Close()
			ctx := context.Background()
			seedDose(t, st, "u1", "d1")

			at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
			if err := st.UpdateDoseStatus(ctx, "u1", "d1", dose.StatusScheduled, dose.StatusPending, "reminded_at", at); err != nil {
				t.Fatalf("UpdateDoseStatus: %v", err)
			}
			got := fetchDose(t, st, "u1", "d1")
			if got.Status != dose.StatusPending {
				t.Fatalf("Status = %s", got.Status)
			}
			if got.RemindedAt == nil || !got.RemindedAt.Equal(at) {
				t.Fatalf("RemindedAt = %v", got.RemindedAt)
			}

			// The stored status is now pending; a write still expecting
			// scheduled must be rejected and leave the row untouched.
			err := st.UpdateDoseStatus(ctx, "u1", "d1", dose.StatusScheduled, dose.StatusLate, "late_at", at)
			if !errors.Is(err, ErrStaleStatus) {
				t.Fatalf("err = %v, want ErrStaleStatus", err)
			}
			if got := fetchDose(t, st, "u1", "d1"); got.Status != dose.StatusPending || got.LateAt != nil {
				t.Fatalf("stale write leaked: %+v", got)
			}

			if err := st.UpdateDoseStatus(ctx, "u1", "d1", dose.StatusPending, dose.StatusPending, "nope", at); err == nil {
				t.Fatal("expected error for invalid stamp column")
			}
			if err := st.UpdateDoseStatus(ctx, "u1", "missing", dose.StatusScheduled, dose.StatusPending, "reminded_at", at); !errors.Is(err, ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestMarkDoseTaken(t *testing.T) {
	for name, st := range openTestStores(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			defer st.Close()
			ctx := context.Background()
			seedDose(t, st, "u1", "d1")

			at := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
			if err := st.MarkDoseTaken(ctx, "u1", "d1", at); err != nil {
				t.Fatalf("MarkDoseTaken: %v", err)
			}
			got := fetchDose(t, st, "u1", "d1")
			if got.Status != dose.StatusTaken || got.TakenAt == nil {
				t.Fatalf("after taken: %+v", got)
			}

			// Second call is a no-op, not an error.
			if err := st.MarkDoseTaken(ctx, "u1", "d1", at.Add(time.Minute)); err != nil {
				t.Fatalf("second MarkDoseTaken: %v", err)
			}
			if err := st.MarkDoseTaken(ctx, "u1", "missing", at); !errors.Is(err, ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}

			// A transition write that read the pre-taken status must not
			// drag the dose out of taken.
			err := st.UpdateDoseStatus(ctx, "u1", "d1", dose.StatusPending, dose.StatusLate, "late_at", at)
			if !errors.Is(err, ErrStaleStatus) {
				t.Fatalf("err = %v, want ErrStaleStatus", err)
			}
			if got := fetchDose(t, st, "u1", "d1"); got.Status != dose.StatusTaken {
				t.Fatalf("Status = %s, want taken", got.Status)
			}
		})
	}
}

func TestNotificationsNewestFirst(t *testing.T) {
	for name, st := range openTestStores(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			defer st.Close()
			ctx := context.Background()
			if err := st.CreateOwner(ctx, Owner{ID: "u1", CreatedAt: time.Now()}); err != nil {
				t.Fatalf("CreateOwner: %v", err)
			}

			base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
			for i, kind := range []dose.Kind{dose.KindReminder, dose.KindLate, dose.KindMissed} {
				n := Notification{
					ID:      string(rune('a' + i)),
					OwnerID: "u1",
					Message: "m",
					Kind:    kind,
					CreatedAt: base.Add(time.Duration(i) * time.Minute),
				}
				if err := st.CreateNotification(ctx, n); err != nil {
					t.Fatalf("CreateNotification: %v", err)
				}
			}

			got, err := st.ListNotifications(ctx, "u1")
			if err != nil {
				t.Fatalf("ListNotifications: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("len = %d", len(got))
			}
			if got[0].Kind != dose.KindMissed || got[2].Kind != dose.KindReminder {
				t.Fatalf("order wrong: %v %v %v", got[0].Kind, got[1].Kind, got[2].Kind)
			}

			at := base.Add(time.Hour)
			if err := st.MarkNotificationRead(ctx, "u1", "a", at); err != nil {
				t.Fatalf("MarkNotificationRead: %v", err)
			}
			got, _ = st.ListNotifications(ctx, "u1")
			for _, n := range got {
				if n.ID == "a" {
					if !n.Read || n.ReadAt == nil {
						t.Fatalf("read not recorded: %+v", n)
					}
				} else if n.Read {
					t.Fatalf("unexpected read flag: %+v", n)
				}
			}

			if err := st.MarkNotificationRead(ctx, "u1", "zz", at); !errors.Is(err, ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	st, err := Open(Config{}, logx.Nop())
	if err != nil || st == nil {
		t.Fatalf("empty driver should default to memory: %v", err)
	}
}

func seedDose(t *testing.T, st Store, ownerID, doseID string) {
	t.Helper()
	ctx := context.Background()
	if err := st.CreateOwner(ctx, Owner{ID: ownerID, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}
	d := dose.Dose{
		ID: doseID, OwnerID: ownerID, Name: "aspirin", Dosage: "500mg",
		Date: "2025-03-10", Time: "09:00", Status: dose.StatusScheduled,
		CreatedAt: time.Now(), Active: true,
	}
	if err := st.CreateDose(ctx, d); err != nil {
		t.Fatalf("CreateDose: %v", err)
	}
}

func fetchDose(t *testing.T, st Store, ownerID, doseID string) dose.Dose {
	t.Helper()
	ds, err := st.ListDosesForDate(context.Background(), ownerID, "2025-03-10")
	if err != nil {
		t.Fatalf("ListDosesForDate: %v", err)
	}
	for _, d := range ds {
		if d.ID == doseID {
			return d
		}
	}
	t.Fatalf("dose %s not found", doseID)
	return dose.Dose{}
}
