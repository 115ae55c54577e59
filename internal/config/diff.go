package config

import (
	"reflect"
	"sort"
	"strings"

	"reminderd/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus
// structured attrs describing the new values, for the reload log line.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.poll_interval", strings.TrimSpace(newCfg.Scheduler.PollInterval)),
			logx.String("scheduler.look_ahead_window", strings.TrimSpace(newCfg.Scheduler.LookAheadWindow)),
			logx.Int("scheduler.base_bucket_size", newCfg.Scheduler.BaseBucketSize),
			logx.Bool("scheduler.priority_enabled", newCfg.Scheduler.PriorityEnabled),
			logx.Int("scheduler.workers", newCfg.Scheduler.Workers),
		)
	}

	oPart := oldCfg.Partition != nil
	nPart := newCfg.Partition != nil
	if oPart != nPart || (oPart && *oldCfg.Partition != *newCfg.Partition) {
		changed = append(changed, "partition")
		attrs = append(attrs, logx.Bool("partition.pinned", nPart))
		if nPart {
			attrs = append(attrs,
				logx.String("partition.begin", newCfg.Partition.Begin),
				logx.String("partition.end", newCfg.Partition.End),
			)
		}
	}

	sort.Strings(changed)
	return changed, attrs
}
