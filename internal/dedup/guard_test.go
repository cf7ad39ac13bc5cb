package dedup

import (
	"sync"
	"testing"

	"dosewatch/internal/dose"
)

func TestGuardGates(t *testing.T) {
	t.Parallel()
	g := NewGuard()
	k := Key{Owner: "u1", Dose: "d1", Date: "2025-03-10", Kind: dose.KindReminder}

	if !g.ShouldAct(k) {
		t.Fatal("fresh key should be actionable")
	}
	g.Record(k)
	if g.ShouldAct(k) {
		t.Fatal("recorded key should be gated")
	}

	// Same dose, different transition kind, is independent.
	late := k
	late.Kind = dose.KindLate
	if !g.ShouldAct(late) {
		t.Fatal("different kind should be actionable")
	}

	// Same transition on a future date is independent.
	tomorrow := k
	tomorrow.Date = "2025-03-11"
	if !g.ShouldAct(tomorrow) {
		t.Fatal("different date should be actionable")
	}
}

func TestGuardResetDaily(t *testing.T) {
	t.Parallel()
	g := NewGuard()
	k := Key{Owner: "u1", Dose: "d1", Date: "2025-03-10", Kind: dose.KindMissed}
	g.Record(k)
	if g.Len() != 1 {
		t.Fatalf("Len = %d, want 1", g.Len())
	}
	g.ResetDaily()
	if g.Len() != 0 {
		t.Fatalf("Len after reset = %d, want 0", g.Len())
	}
	if !g.ShouldAct(k) {
		t.Fatal("key should be actionable again after reset")
	}
}

func TestGuardConcurrentAccess(t *testing.T) {
	t.Parallel()
	g := NewGuard()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			k := Key{Owner: "u1", Dose: "d1", Date: "2025-03-10", Kind: dose.KindReminder}
			for j := 0; j < 500; j++ {
				if g.ShouldAct(k) {
					g.Record(k)
				}
				if n%2 == 0 && j%100 == 0 {
					g.ResetDaily()
				}
			}
		}(i)
	}
	wg.Wait()
}
