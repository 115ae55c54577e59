package scheduler

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"reminderd/internal/reminder"
)

// Invoker resolves an actor reference by owner identity and delivers the
// reminder callback.
type Invoker interface {
	InvokeReminder(ctx context.Context, owner, name string, status reminder.TickStatus) error
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, owner, name string, status reminder.TickStatus) error

func (f InvokerFunc) InvokeReminder(ctx context.Context, owner, name string, status reminder.TickStatus) error {
	return f(ctx, owner, name, status)
}

// Config controls the adaptive scheduler.
//
// All knobs are validated at startup; violations are fatal.
type Config struct {
	// MinReminderPeriod is the smallest interval an interval reminder may use.
	MinReminderPeriod time.Duration
	// InitTimeout bounds how long registration calls wait for startup to
	// complete.
	InitTimeout time.Duration
	// LookAheadWindow is the horizon within which due reminders are
	// proactively queued.
	LookAheadWindow time.Duration
	// PollInterval is the cadence of the owned-range scan.
	PollInterval time.Duration
	// RepairInterval is the cadence of the stale-row repair scan.
	RepairInterval time.Duration
	// RepairTolerance is how far past due a row must be before the repair
	// loop rewrites it.
	RepairTolerance time.Duration
	// MissedTolerance is how far past due a tick counts as missed.
	MissedTolerance time.Duration
	// BaseBucketSize seeds the adaptive bucket formula.
	BaseBucketSize int
	// PriorityEnabled orders bucket selection by priority before due time.
	PriorityEnabled bool

	Workers   int
	QueueSize int

	// Hooks below exist for deterministic tests; zero values select the
	// production implementations.
	Now          func() time.Time
	MemoryLoad   func() float64 // fraction in [0, 1]
	CPUCount     int
	ActiveActors func() int
}

func (c Config) withDefaults() Config {
	if c.MinReminderPeriod <= 0 {
		c.MinReminderPeriod = time.Minute
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = 30 * time.Second
	}
	if c.LookAheadWindow <= 0 {
		c.LookAheadWindow = time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.RepairInterval <= 0 {
		c.RepairInterval = 5 * time.Minute
	}
	if c.RepairTolerance <= 0 {
		c.RepairTolerance = 2 * time.Minute
	}
	if c.MissedTolerance <= 0 {
		c.MissedTolerance = 2 * time.Second
	}
	if c.BaseBucketSize <= 0 {
		c.BaseBucketSize = 1024
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	if c.MemoryLoad == nil {
		c.MemoryLoad = systemMemoryLoad
	}
	if c.CPUCount <= 0 {
		c.CPUCount = runtime.NumCPU()
	}
	if c.ActiveActors == nil {
		c.ActiveActors = func() int { return 0 }
	}
	return c
}

// Validate rejects configurations the scheduler cannot run with.
func (c Config) Validate() error {
	if c.MinReminderPeriod < 0 {
		return errInvalidf("min reminder period %v must not be negative", c.MinReminderPeriod)
	}
	if c.InitTimeout < 0 {
		return errInvalidf("init timeout %v must not be negative", c.InitTimeout)
	}
	if c.LookAheadWindow < 0 {
		return errInvalidf("look-ahead window %v must not be negative", c.LookAheadWindow)
	}
	if c.PollInterval < 0 {
		return errInvalidf("poll interval %v must not be negative", c.PollInterval)
	}
	if c.BaseBucketSize < 0 {
		return errInvalidf("base bucket size %d must not be negative", c.BaseBucketSize)
	}
	if c.Workers < 0 {
		return errInvalidf("workers %d must not be negative", c.Workers)
	}
	if c.QueueSize < 0 {
		return errInvalidf("queue size %d must not be negative", c.QueueSize)
	}
	return nil
}

// systemMemoryLoad samples the OS memory usage fraction; failures read as
// an unloaded host.
func systemMemoryLoad() float64 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm == nil {
		return 0
	}
	return vm.UsedPercent / 100
}

// RegisterOptions carries the optional knobs shared by all registration
// entry points. Zero values select the defaults; invalid enum values are
// rejected (registration is a validation boundary, scanning is not).
type RegisterOptions struct {
	Priority     reminder.Priority
	MissedAction reminder.MissedAction
	TimeZoneID   string // cron registrations only
}

// Declaration describes a reminder an actor expects to exist after
// activation. Exactly one of Period > 0 or a non-blank Cron must be set.
type Declaration struct {
	Name         string
	Due          time.Duration // offset from activation
	Period       time.Duration
	Cron         string
	TimeZoneID   string
	Priority     reminder.Priority
	MissedAction reminder.MissedAction
}

// State is the scheduler lifecycle.
type State int32

const (
	StateBooting State = iota
	StateStarted
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateBooting:
		return "booting"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	State    State
	QueueLen int
	QueueCap int
	InFlight int

	Polled     uint64
	Queued     uint64
	Delivered  uint64
	Missed     uint64
	Conflicts  uint64
	Dropped    uint64
	ScanErrors uint64
}
