// Package dedup provides an in-memory at-most-once gate for dose
// transition side effects.
//
// The state machine's status gating already prevents most double sends;
// the guard narrows the remaining window where two passes could both
// observe a pre-transition status before either commits its write,
// without requiring a transactional read-modify-write in the store.
package dedup

import (
	"sync"

	"dosewatch/internal/dose"
)

// Key identifies one transition side effect for one dose on one day.
type Key struct {
	Owner string
	Dose  string
	Date  string // YYYY-MM-DD, owner-local
	Kind  dose.Kind
}

// Guard records keys already acted upon during the current day.
// Process-local; rebuilt empty on restart. Safe for concurrent use.
type Guard struct {
	mu   sync.Mutex
	seen map[Key]struct{}
}

func NewGuard() *Guard {
	return &Guard{seen: map[Key]struct{}{}}
}

// ShouldAct reports whether key has not been recorded today.
func (g *Guard) ShouldAct(k Key) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.seen[k]
	return !ok
}

// Record marks key as acted upon.
func (g *Guard) Record(k Key) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[k] = struct{}{}
}

// ResetDaily clears all entries. Invoked once at each local-midnight
// boundary; bounds memory and re-arms recurring doses for their next
// date.
func (g *Guard) ResetDaily() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = map[Key]struct{}{}
}

// Len reports the number of recorded entries (surfaced in snapshots).
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
