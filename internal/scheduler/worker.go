package scheduler

import (
	"context"
	"errors"
	"time"

	"reminderd/internal/eventbus"
	"reminderd/internal/reminder"
	"reminderd/pkg/logx"
)

func (s *Service) workerLoop(id int) {
	defer s.workerWG.Done()
	log := s.log.With(logx.Int("worker", id))
	for {
		key, ok := s.queue.Dequeue(s.runCtx)
		if !ok {
			return
		}
		row := s.inflight.Take(key)
		if row == nil {
			// pruned after a range change
			continue
		}
		s.deliver(s.runCtx, log, row)
	}
}

// deliver waits out the pre-fire delay, decides whether the tick was
// missed, fires or skips accordingly, and advances the persisted schedule.
// A lost version race, an invocation failure, or an unreachable next
// occurrence all abandon the row quietly; the poll and repair loops will
// see it again if it still matters.
func (s *Service) deliver(ctx context.Context, log logx.Logger, row *reminder.Row) {
	owned := s.ringp.OwnedRange()
	if !owned.Contains(reminder.OwnerHash(row.OwnerID)) {
		s.dropped.Add(1)
		return
	}
	if row.NextDue == nil {
		return
	}
	due := row.NextDue.UTC()

	if wait := due.Sub(s.cfg.Now()); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}

	now := s.cfg.Now()
	missed := now.Sub(due) > s.cfg.MissedTolerance
	action := row.MissedAction.Normalize()

	if missed && action != reminder.MissedFireImmediately {
		s.missed.Add(1)
		if action == reminder.MissedNotify {
			s.publish(eventbus.TypeMissed, eventbus.ReminderEvent{
				OwnerID: row.OwnerID,
				Name:    row.Name,
				Due:     due,
				Missed:  true,
			})
		}
		s.advance(ctx, log, row, now, due, false)
		return
	}

	status := reminder.TickStatus{
		CurrentTick: due,
		FirstTick:   row.LastFire == nil,
		Period:      row.Period,
	}
	if err := s.invoker.InvokeReminder(ctx, row.OwnerID, row.Name, status); err != nil {
		log.Debug("reminder invocation failed",
			logx.String("owner", row.OwnerID),
			logx.String("name", row.Name),
			logx.Err(err))
		return
	}
	s.delivered.Add(1)
	s.publish(eventbus.TypeFired, eventbus.ReminderEvent{
		OwnerID: row.OwnerID,
		Name:    row.Name,
		Due:     due,
	})
	s.advance(ctx, log, row, now, due, true)
}

// advance persists the next occurrence. When fired is set the tick is also
// recorded as the last successful fire.
func (s *Service) advance(ctx context.Context, log logx.Logger, row *reminder.Row, now, due time.Time, fired bool) {
	from := now
	if due.After(from) {
		from = due
	}
	next, ok := reminder.CalculateNextDue(row, from)
	if !ok {
		return
	}
	row.NextDue = &next
	if fired {
		fireAt := due
		row.LastFire = &fireAt
	}
	if _, err := s.store.Upsert(ctx, row); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			s.conflicts.Add(1)
			return
		}
		log.Debug("reminder schedule advance failed",
			logx.String("owner", row.OwnerID),
			logx.String("name", row.Name),
			logx.Err(err))
	}
}
