package reminder

import (
	"time"

	"reminderd/pkg/cronexpr"
)

// CalculateNextDue computes the first occurrence strictly after from.
// ok is false when the row has no resolvable future occurrence (no
// schedule, unparseable expression, unknown zone, or nothing reachable);
// such rows are left unscheduled, never deleted.
func CalculateNextDue(r *Row, from time.Time) (time.Time, bool) {
	if r == nil {
		return time.Time{}, false
	}
	from = from.UTC()

	if r.HasCron() {
		expr, err := cronexpr.Parse(r.CronExpression)
		if err != nil {
			return time.Time{}, false
		}
		loc := time.UTC
		if r.TimeZoneID != "" {
			loc, err = time.LoadLocation(r.TimeZoneID)
			if err != nil {
				return time.Time{}, false
			}
		}
		next, ok, err := expr.NextInZone(from, loc)
		if err != nil || !ok {
			return time.Time{}, false
		}
		return next, true
	}

	if r.Period > 0 {
		anchor := r.StartAt.UTC()
		if r.NextDue != nil {
			anchor = r.NextDue.UTC()
		}
		// Integer division keeps this O(1) no matter how far behind the
		// anchor is.
		steps := from.Sub(anchor) / r.Period
		next := anchor.Add(steps * r.Period)
		if !next.After(from) {
			next = next.Add(r.Period)
		}
		return next, true
	}

	return time.Time{}, false
}

// PrepareForScheduling normalizes a freshly scanned row and reports
// whether it is due at or before horizon. Enum fields snap to their
// defaults, NextDue is coerced to UTC and filled in when absent. A nil
// row or an unresolvable schedule returns false.
func PrepareForScheduling(r *Row, now, horizon time.Time) bool {
	if r == nil {
		return false
	}

	r.Priority = r.Priority.Normalize()
	r.MissedAction = r.MissedAction.Normalize()

	if r.NextDue != nil {
		t := r.NextDue.UTC()
		r.NextDue = &t
	} else {
		next, ok := CalculateNextDue(r, now.UTC())
		if !ok {
			return false
		}
		r.NextDue = &next
	}

	return !r.NextDue.After(horizon.UTC())
}
