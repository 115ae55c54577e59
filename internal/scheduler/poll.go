package scheduler

import (
	"context"
	"errors"
	"time"

	"reminderd/internal/reminder"
	"reminderd/internal/ring"
	"reminderd/pkg/logx"
)

func (s *Service) pollLoop() {
	defer s.workerWG.Done()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.runCtx.Done():
			return
		case <-ticker.C:
			if err := s.scanOnce(s.runCtx); err != nil {
				s.scanErrors.Add(1)
				if s.scanLog.Allow() {
					s.log.Warn("reminder scan failed", logx.Err(err))
				}
			}
		}
	}
}

// scanOnce reads the owned range, selects the adaptive bucket of rows due
// within the look-ahead window, and queues them for delivery.
func (s *Service) scanOnce(ctx context.Context) error {
	owned := s.ringp.OwnedRange()
	rows, err := s.store.ReadRange(ctx, owned.Begin, owned.End)
	if err != nil {
		return err
	}
	s.polled.Add(uint64(len(rows)))

	now := s.cfg.Now()
	horizon := now.Add(s.cfg.LookAheadWindow)
	candidates := make([]*reminder.Row, 0, len(rows))
	for i := range rows {
		if reminder.PrepareForScheduling(&rows[i], now, horizon) {
			candidates = append(candidates, &rows[i])
		}
	}

	selected := SelectTopCandidates(candidates, s.BucketSize(), s.cfg.PriorityEnabled)
	for _, row := range selected {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.tryQueueNoWait(row)
	}
	return nil
}

func (s *Service) repairLoop() {
	defer s.workerWG.Done()
	ticker := time.NewTicker(s.cfg.RepairInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.runCtx.Done():
			return
		case <-ticker.C:
			if err := s.repairOnce(s.runCtx); err != nil {
				s.scanErrors.Add(1)
				if s.scanLog.Allow() {
					s.log.Warn("reminder repair pass failed", logx.Err(err))
				}
			}
		}
	}
}

// repairOnce advances rows whose due time fell far enough into the past
// that the normal pipeline clearly lost them. It only ever rewrites the
// schedule; it never fires. Rows without a due time are left alone.
func (s *Service) repairOnce(ctx context.Context) error {
	owned := s.ringp.OwnedRange()
	rows, err := s.store.ReadRange(ctx, owned.Begin, owned.End)
	if err != nil {
		return err
	}
	now := s.cfg.Now()
	repaired := 0
	for i := range rows {
		row := &rows[i]
		if row.NextDue == nil {
			continue
		}
		if now.Sub(row.NextDue.UTC()) <= s.cfg.RepairTolerance {
			continue
		}
		next, ok := reminder.CalculateNextDue(row, now)
		if !ok {
			continue
		}
		row.NextDue = &next
		if _, err := s.store.Upsert(ctx, row); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				s.conflicts.Add(1)
				continue
			}
			// Transient write failure on one row must not abandon the
			// rest of the pass.
			s.log.Debug("reminder repair write failed",
				logx.String("owner", row.OwnerID),
				logx.String("name", row.Name),
				logx.Err(err))
			continue
		}
		repaired++
	}
	if repaired > 0 {
		s.log.Info("repaired stale reminders", logx.Int("count", repaired))
	}
	return nil
}

// rangeLoop reacts to partition changes: pending work for owners that left
// the range is pruned, and a supplemental scan picks up owners that just
// arrived.
func (s *Service) rangeLoop(ch <-chan ring.RangeChange) {
	defer s.workerWG.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.runCtx.Done():
			return
		case change, ok := <-ch:
			if !ok {
				return
			}
			s.onRangeChange(change)
		}
	}
}

func (s *Service) onRangeChange(change ring.RangeChange) {
	pruned := s.inflight.PruneOutside(change.New)
	s.dropped.Add(uint64(pruned))
	s.log.Info("owned partition range changed",
		logx.String("old", change.Old.String()),
		logx.String("new", change.New.String()),
		logx.Bool("grew", change.Grew),
		logx.Int("pruned", pruned))
	if err := s.scanOnce(s.runCtx); err != nil {
		s.scanErrors.Add(1)
		if s.scanLog.Allow() {
			s.log.Warn("post-range-change scan failed", logx.Err(err))
		}
	}
}
