// Package reminder defines the durable reminder row shared by the
// scheduler, the storage layer and the management surface, together with
// the next-due calendar arithmetic.
package reminder

import (
	"hash/fnv"
	"strings"
	"time"
)

// Priority orders reminders inside a poll bucket. Unrecognized values
// normalize to Normal.
type Priority string

const (
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Normalize maps unknown or empty values to PriorityNormal.
func (p Priority) Normalize() Priority {
	if p.Valid() {
		return p
	}
	return PriorityNormal
}

// Rank returns an ordering weight; higher fires first when prioritized
// selection is enabled.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 2
	case PriorityHigh:
		return 1
	default:
		return 0
	}
}

// MissedAction decides what happens when a tick is found overdue beyond
// tolerance. Unrecognized values normalize to Skip.
type MissedAction string

const (
	MissedSkip            MissedAction = "skip"
	MissedNotify          MissedAction = "notify"
	MissedFireImmediately MissedAction = "fire_immediately"
)

func (a MissedAction) Valid() bool {
	switch a {
	case MissedSkip, MissedNotify, MissedFireImmediately:
		return true
	}
	return false
}

// Normalize maps unknown or empty values to MissedSkip.
func (a MissedAction) Normalize() MissedAction {
	if a.Valid() {
		return a
	}
	return MissedSkip
}

// Row is one durable reminder: a named timer owned by a single actor
// identity. Exactly one of Period > 0 or a non-blank CronExpression
// determines the schedule kind. All timestamps carry UTC semantics.
type Row struct {
	OwnerID string
	Name    string

	StartAt        time.Time
	Period         time.Duration
	CronExpression string
	TimeZoneID     string

	NextDue  *time.Time
	LastFire *time.Time

	Priority     Priority
	MissedAction MissedAction

	// Version is the optimistic concurrency token; it changes on every
	// successful write and is required for update/delete.
	Version string
}

// Key identifies the row inside a cluster: (OwnerID, Name) is globally
// unique.
func (r *Row) Key() string { return r.OwnerID + "/" + r.Name }

// HasCron reports whether the row carries a cron-driven schedule.
func (r *Row) HasCron() bool { return strings.TrimSpace(r.CronExpression) != "" }

// HasInterval reports whether the row carries an interval schedule.
func (r *Row) HasInterval() bool { return r.Period > 0 }

// Clone returns an independent deep copy.
func (r *Row) Clone() *Row {
	if r == nil {
		return nil
	}
	cp := *r
	if r.NextDue != nil {
		t := *r.NextDue
		cp.NextDue = &t
	}
	if r.LastFire != nil {
		t := *r.LastFire
		cp.LastFire = &t
	}
	return &cp
}

// OwnerHash returns the stable 64-bit hash that places an owner identity
// on the partition ring.
func OwnerHash(owner string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(owner))
	return h.Sum64()
}

// TickStatus is handed to the owning actor's reminder callback.
type TickStatus struct {
	CurrentTick time.Time
	FirstTick   bool
	Period      time.Duration
}
