package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Partition pins this process to a static slice of the hash ring.
	// Omitted means the full keyspace (single-node deployment).
	Partition *PartitionConfig `json:"partition,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the reminder table backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./reminders.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerConfig tunes the delivery pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - min_reminder_period: "1m"
//   - init_timeout: "30s"
//   - look_ahead_window: "1m"
//   - poll_interval: "10s"
//   - repair_interval: "5m"
//   - repair_tolerance: "2m"
//   - missed_tolerance: "2s"
//   - base_bucket_size: 1024
//   - workers: 2
//   - queue_size: 256
type SchedulerConfig struct {
	MinReminderPeriod string `json:"min_reminder_period,omitempty"`
	InitTimeout       string `json:"init_timeout,omitempty"`
	LookAheadWindow   string `json:"look_ahead_window,omitempty"`
	PollInterval      string `json:"poll_interval,omitempty"`
	RepairInterval    string `json:"repair_interval,omitempty"`
	RepairTolerance   string `json:"repair_tolerance,omitempty"`
	MissedTolerance   string `json:"missed_tolerance,omitempty"`

	BaseBucketSize  int  `json:"base_bucket_size,omitempty"`
	PriorityEnabled bool `json:"priority_enabled,omitempty"`

	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`
}

// PartitionConfig is a static owned range in ring order: exclusive begin,
// inclusive end, both 16-digit hex. Equal values mean the full keyspace.
type PartitionConfig struct {
	Begin string `json:"begin"`
	End   string `json:"end"`
}

// Bounds parses the hex endpoints.
func (p *PartitionConfig) Bounds() (begin, end uint64, err error) {
	begin, err = parseHash("partition.begin", p.Begin)
	if err != nil {
		return 0, 0, err
	}
	end, err = parseHash("partition.end", p.End)
	if err != nil {
		return 0, 0, err
	}
	return begin, end, nil
}

func parseHash(path, raw string) (uint64, error) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X"))
	if s == "" {
		return 0, fmt.Errorf("%s: empty hash bound", path)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid hash bound %q: %w", path, raw, err)
	}
	return v, nil
}

// Validate parses every duration field and checks cross-field rules.
// Violations are fatal at startup.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "memory":
	case "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage.path: required for sqlite driver")
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}

	fields := []struct {
		path string
		raw  string
	}{
		{"scheduler.min_reminder_period", c.Scheduler.MinReminderPeriod},
		{"scheduler.init_timeout", c.Scheduler.InitTimeout},
		{"scheduler.look_ahead_window", c.Scheduler.LookAheadWindow},
		{"scheduler.poll_interval", c.Scheduler.PollInterval},
		{"scheduler.repair_interval", c.Scheduler.RepairInterval},
		{"scheduler.repair_tolerance", c.Scheduler.RepairTolerance},
		{"scheduler.missed_tolerance", c.Scheduler.MissedTolerance},
	}
	for _, f := range fields {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}

	poll, err := ParseDurationOrDefault("scheduler.poll_interval", c.Scheduler.PollInterval, 10*time.Second)
	if err != nil {
		return err
	}
	ahead, err := ParseDurationOrDefault("scheduler.look_ahead_window", c.Scheduler.LookAheadWindow, time.Minute)
	if err != nil {
		return err
	}
	if ahead < poll {
		return fmt.Errorf("scheduler.look_ahead_window: %v shorter than poll interval %v leaves blind spots", ahead, poll)
	}
	if c.Scheduler.BaseBucketSize < 0 {
		return fmt.Errorf("scheduler.base_bucket_size: must be >= 0")
	}
	if c.Scheduler.Workers < 0 {
		return fmt.Errorf("scheduler.workers: must be >= 0")
	}
	if c.Scheduler.QueueSize < 0 {
		return fmt.Errorf("scheduler.queue_size: must be >= 0")
	}

	if c.Partition != nil {
		if _, _, err := c.Partition.Bounds(); err != nil {
			return err
		}
	}
	return nil
}
