package cronexpr

import (
	"errors"
	"iter"
	"time"
)

// searchYears bounds the forward scan. Anything that cannot fire within
// this window (e.g. "0 0 30 2 *") is treated as unreachable.
const searchYears = 5

// Next returns the first occurrence strictly after from.
// ok is false when the expression has no reachable occurrence.
func (e *Expression) Next(from time.Time) (next time.Time, ok bool, err error) {
	if err := requireUTC(from); err != nil {
		return time.Time{}, false, err
	}
	next, ok = e.nextIn(from, time.UTC, false)
	return next, ok, nil
}

// NextInclusive returns the first occurrence at or after from.
func (e *Expression) NextInclusive(from time.Time) (next time.Time, ok bool, err error) {
	if err := requireUTC(from); err != nil {
		return time.Time{}, false, err
	}
	next, ok = e.nextIn(from, time.UTC, true)
	return next, ok, nil
}

// NextInZone evaluates the schedule against loc's wall clock and returns
// the next occurrence converted back to UTC. Wall times skipped by a DST
// transition are resolved by advancing to the next instant that exists.
func (e *Expression) NextInZone(from time.Time, loc *time.Location) (next time.Time, ok bool, err error) {
	if err := requireUTC(from); err != nil {
		return time.Time{}, false, err
	}
	if loc == nil {
		loc = time.UTC
	}
	next, ok = e.nextIn(from, loc, false)
	return next, ok, nil
}

// OccurrenceOptions tunes Occurrences. The zero value means UTC
// evaluation, inclusive lower bound and exclusive upper bound.
type OccurrenceOptions struct {
	Zone          *time.Location
	FromExclusive bool
	ToInclusive   bool
}

// Occurrences returns a lazy ascending sequence of occurrences between
// from and to. The sequence is restartable: each range-over starts again
// at from.
func (e *Expression) Occurrences(from, to time.Time, opt *OccurrenceOptions) (iter.Seq[time.Time], error) {
	if err := requireUTC(from); err != nil {
		return nil, err
	}
	if err := requireUTC(to); err != nil {
		return nil, err
	}
	if from.After(to) {
		return nil, errors.New("cronexpr: from is after to")
	}

	var o OccurrenceOptions
	if opt != nil {
		o = *opt
	}
	loc := o.Zone
	if loc == nil {
		loc = time.UTC
	}

	return func(yield func(time.Time) bool) {
		cur := from
		inclusive := !o.FromExclusive
		for {
			t, ok := e.nextIn(cur, loc, inclusive)
			if !ok || t.After(to) || (t.Equal(to) && !o.ToInclusive) {
				return
			}
			if !yield(t) {
				return
			}
			cur, inclusive = t, false
		}
	}, nil
}

// nextIn scans forward from fromUTC for the first matching instant,
// evaluating calendar fields against loc's wall clock.
func (e *Expression) nextIn(fromUTC time.Time, loc *time.Location, inclusive bool) (time.Time, bool) {
	start := fromUTC.In(loc)
	if !inclusive {
		start = start.Add(time.Second)
	}
	start = start.Add(-time.Duration(start.Nanosecond()))

	year, month, day := start.Date()
	h0, m0, s0 := start.Clock()

	first := true
	for i := 0; i <= searchYears*366; i++ {
		if e.dayMatches(year, month, day) {
			sh, sm, ss := 0, 0, 0
			if first {
				sh, sm, ss = h0, m0, s0
			}
			if t, ok := e.nextClock(year, month, day, sh, sm, ss, loc, fromUTC, inclusive); ok {
				return t.UTC(), true
			}
		}
		first = false
		day++
		if day > daysIn(year, month) {
			day = 1
			month++
			if month > time.December {
				month = time.January
				year++
			}
		}
	}
	return time.Time{}, false
}

// nextClock finds the earliest matching wall time on the given day, at or
// after (sh, sm, ss). Wall times that do not exist in loc (DST gaps) are
// skipped.
func (e *Expression) nextClock(year int, month time.Month, day, sh, sm, ss int, loc *time.Location, fromUTC time.Time, inclusive bool) (time.Time, bool) {
	for h := sh; h < 24; h++ {
		if e.hours&(1<<uint(h)) == 0 {
			continue
		}
		mStart := 0
		if h == sh {
			mStart = sm
		}
		for m := mStart; m < 60; m++ {
			if e.minutes&(1<<uint(m)) == 0 {
				continue
			}
			sStart := 0
			if h == sh && m == sm {
				sStart = ss
			}
			for s := sStart; s < 60; s++ {
				if e.seconds&(1<<uint(s)) == 0 {
					continue
				}
				cand := time.Date(year, month, day, h, m, s, 0, loc)
				cy, cmo, cd := cand.Date()
				ch, cm, cs := cand.Clock()
				if cy != year || cmo != month || cd != day || ch != h || cm != m || cs != s {
					// The wall time was skipped by a DST transition.
					continue
				}
				if cand.After(fromUTC) || (inclusive && cand.Equal(fromUTC)) {
					return cand, true
				}
			}
		}
	}
	return time.Time{}, false
}

// dayMatches applies month, day-of-month and day-of-week constraints.
// When both day fields are restrictive the day must satisfy both.
func (e *Expression) dayMatches(year int, month time.Month, day int) bool {
	if e.months&(1<<uint(month)) == 0 {
		return false
	}

	last := daysIn(year, month)
	wd := weekdayOf(year, month, day)

	domOK := e.domAny
	if !domOK {
		domOK = e.dom&(1<<uint(day)) != 0
		if !domOK && e.domLast {
			domOK = day == last
		}
		for _, off := range e.domLastOffset {
			if domOK {
				break
			}
			domOK = day == last-off
		}
		for _, n := range e.domNearest {
			if domOK {
				break
			}
			domOK = day == nearestWeekday(year, month, n, last)
		}
	}
	if !domOK {
		return false
	}

	if e.dowAny {
		return true
	}
	if e.dow&(1<<uint(wd)) != 0 {
		return true
	}
	if e.dowLast&(1<<uint(wd)) != 0 && day+7 > last {
		return true
	}
	for _, nth := range e.dowNths {
		if int(wd) == nth.weekday && (day-1)/7+1 == nth.nth {
			return true
		}
	}
	return false
}

// nearestWeekday returns the weekday closest to day n without leaving the
// month, or 0 when the month has no day n.
func nearestWeekday(year int, month time.Month, n, last int) int {
	if n > last {
		return 0
	}
	switch weekdayOf(year, month, n) {
	case time.Saturday:
		if n == 1 {
			return 3 // Monday the 3rd
		}
		return n - 1
	case time.Sunday:
		if n == last {
			return n - 2
		}
		return n + 1
	default:
		return n
	}
}

func weekdayOf(year int, month time.Month, day int) time.Weekday {
	return time.Date(year, month, day, 12, 0, 0, 0, time.UTC).Weekday()
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 12, 0, 0, 0, time.UTC).Day()
}
