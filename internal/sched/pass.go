package sched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dosewatch/internal/dedup"
	"dosewatch/internal/dose"
	"dosewatch/internal/storage"
	logx "dosewatch/pkg/logx"
)

// runPass evaluates every active dose dated today, once. Only a failure
// to list owners aborts the pass; everything narrower is logged and
// skipped so one bad record or flaky channel cannot starve the rest.
func (s *Service) runPass(ctx context.Context) error {
	loc := s.Location()
	now := s.clk.Now().In(loc)
	today := now.Format(dose.DateLayout)
	start := time.Now()

	owners, err := s.store.ListOwners(ctx)
	if err != nil {
		err = fmt.Errorf("list owners: %w", err)
		s.log.Error("evaluation pass aborted", logx.Err(err))
		s.notePass(now, err)
		return err
	}

	var evaluated, transitioned int
	for _, o := range owners {
		doses, err := s.store.ListDosesForDate(ctx, o.ID, today)
		if err != nil {
			// These doses stay untouched and get re-evaluated next tick.
			s.log.Warn("dose list failed, skipping owner this tick",
				logx.String("owner", o.ID), logx.Err(err))
			continue
		}
		for i := range doses {
			evaluated++
			if s.evalDose(ctx, now, today, o, doses[i]) {
				transitioned++
			}
		}
	}

	s.notePass(now, nil)
	s.log.Debug("evaluation pass done",
		logx.Int("owners", len(owners)),
		logx.Int("doses", evaluated),
		logx.Int("transitions", transitioned),
		logx.Duration("took", time.Since(start)))
	return nil
}

// evalDose applies the state machine to one dose and, when a threshold
// was crossed, dispatches notifications and commits the new status.
// Reports whether a transition was committed.
func (s *Service) evalDose(ctx context.Context, now time.Time, today string, o storage.Owner, d dose.Dose) bool {
	if !d.Active {
		return false
	}

	scheduledAt, err := d.ScheduledAt(now.Location())
	if err != nil {
		s.log.Warn("malformed dose record, skipping",
			logx.String("owner", o.ID), logx.String("dose", d.ID), logx.Err(err))
		return false
	}

	dec := dose.Evaluate(d.Status, scheduledAt, now)
	tr, ok := dec.Transition()
	if !ok {
		return false
	}

	key := dedup.Key{Owner: o.ID, Dose: d.ID, Date: today, Kind: tr.Kind}
	if !s.guard.ShouldAct(key) {
		s.log.Debug("transition already handled today",
			logx.String("owner", o.ID), logx.String("dose", d.ID), logx.String("kind", string(tr.Kind)))
		return false
	}

	// Side effects first, then the authoritative write, then the guard.
	// If the write fails the key stays unrecorded and the dose is
	// re-evaluated on the next tick.
	res := s.disp.Dispatch(ctx, o, tr.Kind, d)
	if failed := res.Failed(); len(failed) > 0 {
		s.log.Warn("some notification channels failed",
			logx.String("owner", o.ID), logx.String("dose", d.ID), logx.Any("channels", failed))
	}

	if err := s.store.UpdateDoseStatus(ctx, o.ID, d.ID, d.Status, tr.To, tr.Stamp, now); err != nil {
		if errors.Is(err, storage.ErrStaleStatus) {
			// Someone else moved the dose (typically mark-taken) between
			// our read and this write; their status wins.
			s.log.Debug("dose status changed mid-pass, skipping",
				logx.String("owner", o.ID), logx.String("dose", d.ID))
			return false
		}
		s.log.Warn("status write failed, will re-evaluate next tick",
			logx.String("owner", o.ID), logx.String("dose", d.ID),
			logx.String("status", string(tr.To)), logx.Err(err))
		return false
	}
	s.guard.Record(key)
	s.transitions.Add(1)

	s.log.Info("dose transitioned",
		logx.String("owner", o.ID),
		logx.String("dose", d.ID),
		logx.String("medication", d.Name),
		logx.String("from", string(d.Status)),
		logx.String("to", string(tr.To)))
	return true
}
