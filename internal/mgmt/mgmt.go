// Package mgmt is the operator-facing query and repair surface over the
// reminder table. Reads are paginated with opaque continuation tokens and
// never touch the scheduler's in-memory state; writes go through the same
// optimistic concurrency as the scheduler, so a lost race surfaces
// instead of clobbering.
package mgmt

import (
	"context"
	"errors"
	"iter"
	"sort"
	"strings"
	"time"

	"reminderd/internal/reminder"
	"reminderd/internal/storage"
	"reminderd/pkg/logx"
)

// ErrReminderNotFound is returned by targeted operations on a reminder
// that does not exist.
var ErrReminderNotFound = errors.New("reminder not found")

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// Status classifies a row relative to the clock; values combine as a
// bitmask in Filter. A row can be both Overdue and Missed.
type Status uint8

const (
	// StatusOverdue matches rows whose effective due time precedes
	// now minus the OverdueBy threshold.
	StatusOverdue Status = 1 << iota
	// StatusMissed matches rows overdue beyond the MissedBy threshold
	// (the missed tolerance when unset).
	StatusMissed
	// StatusUpcoming matches rows due now or later, optionally bounded
	// by UpcomingWithin.
	StatusUpcoming
)

// ScheduleKind narrows a listing to one schedule form.
type ScheduleKind uint8

const (
	KindAny ScheduleKind = iota
	KindInterval
	KindCron
)

// Filter narrows a listing. Zero values match everything. Every field is
// validated; a bad filter raises a ValidationError, not an empty page.
type Filter struct {
	Owner      string
	NamePrefix string
	Priority   reminder.Priority
	Action     reminder.MissedAction
	Kind       ScheduleKind

	// DueFrom/DueTo bound the effective due time, inclusive on both ends.
	// Effective due is NextDue, falling back to StartAt for rows left
	// unscheduled.
	DueFrom *time.Time
	DueTo   *time.Time

	Status Status
	// Thresholds for the status bits; zero selects the defaults
	// (OverdueBy 0, MissedBy = missed tolerance, UpcomingWithin unbounded).
	OverdueBy      time.Duration
	MissedBy       time.Duration
	UpcomingWithin time.Duration
}

func (f Filter) validate() error {
	if f.Priority != "" && !f.Priority.Valid() {
		return validationErrorf("unknown priority %q", f.Priority)
	}
	if f.Action != "" && !f.Action.Valid() {
		return validationErrorf("unknown missed action %q", f.Action)
	}
	if f.Kind > KindCron {
		return validationErrorf("unknown schedule kind %d", f.Kind)
	}
	if f.OverdueBy < 0 || f.MissedBy < 0 || f.UpcomingWithin < 0 {
		return validationErrorf("status thresholds must not be negative")
	}
	for _, b := range []*time.Time{f.DueFrom, f.DueTo} {
		if b != nil && b.Location() != time.UTC {
			return validationErrorf("due bound %v must be UTC", *b)
		}
	}
	if f.DueFrom != nil && f.DueTo != nil && f.DueFrom.After(*f.DueTo) {
		return validationErrorf("due window start %v after end %v", *f.DueFrom, *f.DueTo)
	}
	return nil
}

// Page is one slice of a listing. NextToken is empty on the final page.
type Page struct {
	Rows      []reminder.Row
	NextToken string
}

// Config tunes the management surface.
type Config struct {
	// MissedTolerance mirrors the scheduler's notion of a missed tick so
	// both surfaces classify rows identically.
	MissedTolerance time.Duration

	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MissedTolerance <= 0 {
		c.MissedTolerance = 2 * time.Second
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// Service answers management queries against the reminder store.
type Service struct {
	cfg   Config
	store storage.Store
	log   logx.Logger
}

func New(cfg Config, store storage.Store, log logx.Logger) *Service {
	return &Service{cfg: cfg.withDefaults(), store: store, log: log}
}

// effectiveDue is the due time a listing reasons about: the scheduled
// occurrence, or the intended start for rows left unscheduled.
func effectiveDue(row *reminder.Row) time.Time {
	if row.NextDue != nil {
		return row.NextDue.UTC()
	}
	return row.StartAt.UTC()
}

// List returns one page of rows matching the filter, ordered by
// (owner, name). Pass the previous page's NextToken to continue.
func (s *Service) List(ctx context.Context, filter Filter, pageSize int, token string) (Page, error) {
	if err := filter.validate(); err != nil {
		return Page{}, err
	}
	return s.page(ctx, pageSize, token, s.matcherFor(filter))
}

// ListAll pages through every reminder in the cluster.
func (s *Service) ListAll(ctx context.Context, pageSize int, token string) (Page, error) {
	return s.List(ctx, Filter{}, pageSize, token)
}

// ListOverdue pages through rows whose effective due time precedes
// now minus overdueBy.
func (s *Service) ListOverdue(ctx context.Context, overdueBy time.Duration, pageSize int, token string) (Page, error) {
	if overdueBy < 0 {
		return Page{}, validationErrorf("overdue threshold %v must not be negative", overdueBy)
	}
	return s.List(ctx, Filter{Status: StatusOverdue, OverdueBy: overdueBy}, pageSize, token)
}

// ListDueInRange pages through rows due within [from, to], inclusive on
// both ends. Bounds must be UTC and from must not exceed to.
func (s *Service) ListDueInRange(ctx context.Context, from, to time.Time, pageSize int, token string) (Page, error) {
	return s.List(ctx, Filter{DueFrom: &from, DueTo: &to}, pageSize, token)
}

// Upcoming returns up to limit rows due within the horizon, ordered by
// priority descending, then due time ascending.
func (s *Service) Upcoming(ctx context.Context, horizon time.Duration, limit int) ([]reminder.Row, error) {
	if horizon < 0 {
		return nil, validationErrorf("horizon %v must not be negative", horizon)
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	rows, err := s.store.ReadRange(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	now := s.cfg.Now()
	end := now.Add(horizon)
	out := rows[:0]
	for _, row := range rows {
		due := effectiveDue(&row)
		if due.Before(now) || due.After(end) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if ri, rj := out[i].Priority.Rank(), out[j].Priority.Rank(); ri != rj {
			return ri > rj
		}
		di, dj := effectiveDue(&out[i]), effectiveDue(&out[j])
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		if out[i].OwnerID != out[j].OwnerID {
			return out[i].OwnerID < out[j].OwnerID
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountAll reports the total number of reminder rows.
func (s *Service) CountAll(ctx context.Context) (int, error) {
	rows, err := s.store.ReadRange(ctx, 0, 0)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Iterate walks every row matching the filter across page boundaries,
// fetching the next page only when consumed, until exhaustion or the
// first error.
func (s *Service) Iterate(ctx context.Context, filter Filter, pageSize int) iter.Seq2[reminder.Row, error] {
	return func(yield func(reminder.Row, error) bool) {
		token := ""
		for {
			page, err := s.List(ctx, filter, pageSize, token)
			if err != nil {
				yield(reminder.Row{}, err)
				return
			}
			for _, row := range page.Rows {
				if !yield(row, nil) {
					return
				}
			}
			if page.NextToken == "" {
				return
			}
			token = page.NextToken
		}
	}
}

// SetPriority rewrites one row's priority under optimistic concurrency.
func (s *Service) SetPriority(ctx context.Context, owner, name string, p reminder.Priority) error {
	if !p.Valid() {
		return validationErrorf("unknown priority %q", p)
	}
	return s.mutate(ctx, owner, name, func(row *reminder.Row) { row.Priority = p })
}

// SetAction rewrites one row's missed-tick action.
func (s *Service) SetAction(ctx context.Context, owner, name string, a reminder.MissedAction) error {
	if !a.Valid() {
		return validationErrorf("unknown missed action %q", a)
	}
	return s.mutate(ctx, owner, name, func(row *reminder.Row) { row.MissedAction = a })
}

// Repair recomputes one row's next occurrence without firing it. Healthy
// rows come out unchanged and are not rewritten; an unresolvable schedule
// is a no-op.
func (s *Service) Repair(ctx context.Context, owner, name string) error {
	row, err := s.store.Read(ctx, owner, name)
	if err != nil {
		return err
	}
	if row == nil {
		return ErrReminderNotFound
	}
	next, ok := reminder.CalculateNextDue(row, s.cfg.Now())
	if !ok {
		return nil
	}
	if row.NextDue != nil && row.NextDue.Equal(next) {
		return nil
	}
	row.NextDue = &next
	if _, err := s.store.Upsert(ctx, row); err != nil {
		return err
	}
	s.log.Info("reminder repaired",
		logx.String("owner", owner),
		logx.String("name", name),
		logx.Time("next_due", next))
	return nil
}

// Delete removes one reminder. storage.ErrVersionConflict surfaces when a
// concurrent writer wins the race.
func (s *Service) Delete(ctx context.Context, owner, name string) error {
	row, err := s.store.Read(ctx, owner, name)
	if err != nil {
		return err
	}
	if row == nil {
		return ErrReminderNotFound
	}
	ok, err := s.store.Remove(ctx, owner, name, row.Version)
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrVersionConflict
	}
	s.log.Info("reminder deleted",
		logx.String("owner", owner),
		logx.String("name", name))
	return nil
}

func (s *Service) mutate(ctx context.Context, owner, name string, apply func(*reminder.Row)) error {
	row, err := s.store.Read(ctx, owner, name)
	if err != nil {
		return err
	}
	if row == nil {
		return ErrReminderNotFound
	}
	apply(row)
	_, err = s.store.Upsert(ctx, row)
	return err
}

func (s *Service) matcherFor(filter Filter) func(*reminder.Row, time.Time) bool {
	return func(row *reminder.Row, now time.Time) bool {
		if filter.Owner != "" && row.OwnerID != filter.Owner {
			return false
		}
		if filter.NamePrefix != "" && !strings.HasPrefix(row.Name, filter.NamePrefix) {
			return false
		}
		if filter.Priority != "" && row.Priority.Normalize() != filter.Priority {
			return false
		}
		if filter.Action != "" && row.MissedAction.Normalize() != filter.Action {
			return false
		}
		switch filter.Kind {
		case KindInterval:
			if !row.HasInterval() {
				return false
			}
		case KindCron:
			if !row.HasCron() {
				return false
			}
		}
		due := effectiveDue(row)
		if filter.DueFrom != nil && due.Before(*filter.DueFrom) {
			return false
		}
		if filter.DueTo != nil && due.After(*filter.DueTo) {
			return false
		}
		if filter.Status != 0 && filter.Status&s.classify(due, now, filter) == 0 {
			return false
		}
		return true
	}
}

// classify places an effective due time into the status bitmask using the
// filter's thresholds.
func (s *Service) classify(due, now time.Time, f Filter) Status {
	var st Status
	if due.Before(now.Add(-f.OverdueBy)) {
		st |= StatusOverdue
	}
	missedBy := f.MissedBy
	if missedBy == 0 {
		missedBy = s.cfg.MissedTolerance
	}
	if due.Before(now.Add(-missedBy)) {
		st |= StatusMissed
	}
	if !due.Before(now) && (f.UpcomingWithin <= 0 || !due.After(now.Add(f.UpcomingWithin))) {
		st |= StatusUpcoming
	}
	return st
}

// page reads the full keyspace in (owner, name) order and returns the
// first pageSize matches after the token position.
func (s *Service) page(ctx context.Context, pageSize int, token string, match func(*reminder.Row, time.Time) bool) (Page, error) {
	cont, err := decodeToken(token)
	if err != nil {
		return Page{}, err
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	rows, err := s.store.ReadRange(ctx, 0, 0)
	if err != nil {
		return Page{}, err
	}
	now := s.cfg.Now()

	var page Page
	for i := range rows {
		row := &rows[i]
		if cont != nil && !afterKey(row, cont) {
			continue
		}
		if !match(row, now) {
			continue
		}
		if len(page.Rows) == pageSize {
			page.NextToken = encodeToken(page.Rows[pageSize-1].OwnerID, page.Rows[pageSize-1].Name)
			return page, nil
		}
		page.Rows = append(page.Rows, *row)
	}
	return page, nil
}

func afterKey(row *reminder.Row, c *continuation) bool {
	if row.OwnerID != c.Owner {
		return row.OwnerID > c.Owner
	}
	return row.Name > c.Name
}
