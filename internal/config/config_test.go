package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./reminders.db
  busy_timeout: 5s
scheduler:
  poll_interval: 15s
  look_ahead_window: 30s
  base_bucket_size: 512
  priority_enabled: true
partition:
  begin: "0x0000000000000000"
  end: "0x7fffffffffffffff"
`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.BusyTimeout != "5s" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Scheduler.BaseBucketSize != 512 || !cfg.Scheduler.PriorityEnabled {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	begin, end, err := cfg.Partition.Bounds()
	if err != nil {
		t.Fatalf("bounds: %v", err)
	}
	if begin != 0 || end != 0x7fffffffffffffff {
		t.Fatalf("bounds = %#x, %#x", begin, end)
	}
}

func TestParseJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
  "logging": {"level": "info", "console": false, "file": {"enabled": true, "path": "/var/log/reminderd.log"}},
  "storage": {"driver": "memory"},
  "scheduler": {"workers": 4}
}`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.Logging.File.Enabled || cfg.Scheduler.Workers != 4 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "config.yaml", `
logging:
  level: info
  verbosity: 3
storage:
  driver: memory
scheduler: {}
`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"sqlite requires path", func(c *Config) { c.Storage = StorageConfig{Driver: "sqlite"} }, "storage.path"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.driver"},
		{"bad duration", func(c *Config) { c.Scheduler.PollInterval = "soon" }, "scheduler.poll_interval"},
		{"window shorter than poll", func(c *Config) {
			c.Scheduler.PollInterval = "30s"
			c.Scheduler.LookAheadWindow = "10s"
		}, "look_ahead_window"},
		{"negative workers", func(c *Config) { c.Scheduler.Workers = -1 }, "scheduler.workers"},
		{"bad partition bound", func(c *Config) { c.Partition = &PartitionConfig{Begin: "xyz", End: "ff"} }, "partition.begin"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{Storage: StorageConfig{Driver: "memory"}}
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("err = %v, want mention of %q", err, tc.wantSub)
			}
		})
	}

	good := &Config{Storage: StorageConfig{Driver: ""}}
	if err := good.Validate(); err != nil {
		t.Fatalf("zero config rejected: %v", err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg := &Config{Logging: LoggingConfig{Level: "info"}}
	newCfg := &Config{
		Logging:   LoggingConfig{Level: "debug"},
		Scheduler: SchedulerConfig{BaseBucketSize: 2048},
	}
	changed, _ := SummarizeConfigChange(oldCfg, newCfg)
	if len(changed) != 2 || changed[0] != "logging" || changed[1] != "scheduler" {
		t.Fatalf("changed = %v", changed)
	}

	same, _ := SummarizeConfigChange(newCfg, newCfg)
	if len(same) != 0 {
		t.Fatalf("no-op diff reported %v", same)
	}
}

func TestLoadCommitsAndSkipsUnchanged(t *testing.T) {
	path := writeFile(t, "config.yaml", "storage:\n  driver: memory\n")
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("load did not commit")
	}
	if h := hashConfig(cfg); h == 0 || h != m.lastHash {
		t.Fatalf("hash = %d, lastHash = %d", h, m.lastHash)
	}
}
