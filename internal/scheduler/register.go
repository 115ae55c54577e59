package scheduler

import (
	"context"
	"strings"
	"time"

	"reminderd/internal/eventbus"
	"reminderd/internal/reminder"
	"reminderd/pkg/cronexpr"
	"reminderd/pkg/logx"
)

// RegisterIn registers or updates an interval reminder first due after the
// given offset from now.
func (s *Service) RegisterIn(ctx context.Context, owner, name string, due, period time.Duration, opts RegisterOptions) (*reminder.Row, error) {
	if due < 0 {
		return nil, errInvalidf("due offset %v must not be negative", due)
	}
	return s.RegisterAt(ctx, owner, name, s.cfg.Now().Add(due), period, opts)
}

// RegisterAt registers or updates an interval reminder first due at the
// given UTC instant.
func (s *Service) RegisterAt(ctx context.Context, owner, name string, dueAt time.Time, period time.Duration, opts RegisterOptions) (*reminder.Row, error) {
	if err := validateIdentity(owner, name); err != nil {
		return nil, err
	}
	if dueAt.Location() != time.UTC {
		return nil, errInvalidf("due time %v must be UTC", dueAt)
	}
	if period < s.cfg.MinReminderPeriod {
		return nil, errInvalidf("period %v below minimum %v", period, s.cfg.MinReminderPeriod)
	}
	if opts.TimeZoneID != "" {
		return nil, errInvalidf("time zone applies to cron reminders only")
	}
	row := &reminder.Row{
		OwnerID: owner,
		Name:    name,
		StartAt: dueAt,
		Period:  period,
		NextDue: &dueAt,
	}
	return s.register(ctx, row, opts)
}

// RegisterCron registers or updates a cron reminder. The expression is
// validated up front; an optional IANA zone in opts evaluates the calendar
// in that zone while stored instants stay UTC.
func (s *Service) RegisterCron(ctx context.Context, owner, name, expr string, opts RegisterOptions) (*reminder.Row, error) {
	if err := validateIdentity(owner, name); err != nil {
		return nil, err
	}
	parsed, err := cronexpr.Parse(expr)
	if err != nil {
		return nil, errInvalidf("cron expression %q: %v", expr, err)
	}
	if opts.TimeZoneID != "" {
		if _, err := time.LoadLocation(opts.TimeZoneID); err != nil {
			return nil, errInvalidf("time zone %q: %v", opts.TimeZoneID, err)
		}
	}
	now := s.cfg.Now()
	row := &reminder.Row{
		OwnerID:        owner,
		Name:           name,
		StartAt:        now,
		CronExpression: parsed.String(),
		TimeZoneID:     opts.TimeZoneID,
	}
	if next, ok := reminder.CalculateNextDue(row, now); ok {
		row.NextDue = &next
	}
	return s.register(ctx, row, opts)
}

func validateIdentity(owner, name string) error {
	if strings.TrimSpace(owner) == "" {
		return errInvalidf("owner identity must not be blank")
	}
	if strings.TrimSpace(name) == "" {
		return errInvalidf("reminder name must not be blank")
	}
	return nil
}

// register persists the row, replacing any existing schedule for the same
// (owner, name) while preserving its fire history, and queues it directly
// when it falls inside the look-ahead window. Direct registrations bypass
// bucket competition.
func (s *Service) register(ctx context.Context, row *reminder.Row, opts RegisterOptions) (*reminder.Row, error) {
	if opts.Priority != "" && !opts.Priority.Valid() {
		return nil, errInvalidf("unknown priority %q", opts.Priority)
	}
	if opts.MissedAction != "" && !opts.MissedAction.Valid() {
		return nil, errInvalidf("unknown missed action %q", opts.MissedAction)
	}
	row.Priority = opts.Priority.Normalize()
	row.MissedAction = opts.MissedAction.Normalize()

	if err := s.awaitStarted(ctx); err != nil {
		return nil, err
	}

	existing, err := s.store.Read(ctx, row.OwnerID, row.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		row.Version = existing.Version
		row.LastFire = existing.LastFire
	}

	version, err := s.store.Upsert(ctx, row)
	if err != nil {
		return nil, err
	}
	row.Version = version

	if row.NextDue != nil && !row.NextDue.After(s.cfg.Now().Add(s.cfg.LookAheadWindow)) {
		s.tryQueue(ctx, row)
	}

	s.publish(eventbus.TypeRegistered, eventbus.ReminderEvent{
		OwnerID: row.OwnerID,
		Name:    row.Name,
		Due:     derefTime(row.NextDue),
	})
	s.log.Debug("reminder registered",
		logx.String("owner", row.OwnerID),
		logx.String("name", row.Name))
	return row.Clone(), nil
}

// Unregister removes a reminder by name. The latest row is re-read first
// so the caller never has to track versions; a concurrent writer winning
// the race surfaces as ErrVersionConflict.
func (s *Service) Unregister(ctx context.Context, owner, name string) error {
	if err := validateIdentity(owner, name); err != nil {
		return err
	}
	if err := s.awaitStarted(ctx); err != nil {
		return err
	}
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
		return ErrVersionConflict
	}
	s.inflight.Remove(row.Key())
	s.publish(eventbus.TypeUnregistered, eventbus.ReminderEvent{
		OwnerID: owner,
		Name:    name,
	})
	return nil
}

// EnsureDeclared installs the reminders an actor declares at activation.
// Existing rows are left untouched, so repeated activations are idempotent
// and never clobber a schedule a caller has since adjusted.
func (s *Service) EnsureDeclared(ctx context.Context, owner string, decls []Declaration) error {
	if strings.TrimSpace(owner) == "" {
		return errInvalidf("owner identity must not be blank")
	}
	if err := s.awaitStarted(ctx); err != nil {
		return err
	}
	for _, d := range decls {
		existing, err := s.store.Read(ctx, owner, d.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		opts := RegisterOptions{
			Priority:     d.Priority,
			MissedAction: d.MissedAction,
			TimeZoneID:   d.TimeZoneID,
		}
		if strings.TrimSpace(d.Cron) != "" {
			_, err = s.RegisterCron(ctx, owner, d.Name, d.Cron, opts)
		} else {
			_, err = s.RegisterIn(ctx, owner, d.Name, d.Due, d.Period, opts)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
