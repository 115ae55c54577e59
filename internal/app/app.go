// Package app wires the reminder daemon: config, logging, storage, the
// partition provider, the scheduler and the management surface, plus the
// hot-reload loop that keeps the cheap knobs live.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"reminderd/internal/config"
	"reminderd/internal/eventbus"
	"reminderd/internal/mgmt"
	"reminderd/internal/reminder"
	"reminderd/internal/ring"
	"reminderd/internal/scheduler"
	"reminderd/internal/storage"
	"reminderd/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	ringp *ring.StaticProvider
	sched *scheduler.Service
	query *mgmt.Service

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New loads and validates the config, then builds every component.
// invoker receives the reminder callbacks; pass nil to only observe fires
// on the event bus.
func New(cfgPath string, invoker scheduler.Invoker) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	storeCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storeCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage configured", logx.String("driver", storeCfg.Driver))

	owned := ring.Full()
	if cfg.Partition != nil {
		begin, end, err := cfg.Partition.Bounds()
		if err != nil {
			return nil, err
		}
		owned = ring.Range{Begin: begin, End: end}
	}
	ringp := ring.NewStaticProvider(owned)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	if invoker == nil {
		invoker = loggingInvoker(log.With(logx.String("comp", "invoker")))
	}
	sched := scheduler.New(schedCfg, store, ringp, invoker, bus,
		log.With(logx.String("comp", "scheduler")))

	query := mgmt.New(mgmt.Config{MissedTolerance: schedCfg.MissedTolerance},
		store, log.With(logx.String("comp", "mgmt")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		ringp:   ringp,
		sched:   sched,
		query:   query,
	}, nil
}

func (a *App) Scheduler() *scheduler.Service   { return a.sched }
func (a *App) Mgmt() *mgmt.Service             { return a.query }
func (a *App) Bus() eventbus.Bus               { return a.bus }
func (a *App) Partition() *ring.StaticProvider { return a.ringp }

func (a *App) Start(ctx context.Context) error {
	a.runCtx, a.runCancel = context.WithCancel(ctx)

	if err := a.store.Start(a.runCtx); err != nil {
		return fmt.Errorf("start storage: %w", err)
	}
	if err := a.sched.Start(a.runCtx); err != nil {
		_ = a.store.Stop(context.Background())
		return fmt.Errorf("start scheduler: %w", err)
	}

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(a.runCtx)
	}()
	sub := a.cfgm.Subscribe(8)
	go func() {
		defer a.wg.Done()
		a.reloadLoop(sub)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logEvents()
	}()

	a.log.Info("reminderd started",
		logx.String("partition", a.ringp.OwnedRange().String()))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.runCancel != nil {
		a.runCancel()
	}
	err := a.sched.Stop(ctx)
	if serr := a.store.Stop(ctx); serr != nil && err == nil {
		err = serr
	}
	a.wg.Wait()
	a.log.Info("reminderd stopped")
	return err
}

// reloadLoop applies the knobs that can change without a restart: logging
// and the partition pin. Structural scheduler or storage changes get a
// restart-required warning instead of a half-applied state.
func (a *App) reloadLoop(sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-a.runCtx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			sections, _ := config.SummarizeConfigChange(last, cfg)
			last = cfg
			for _, s := range sections {
				switch s {
				case "logging":
					a.logs.Apply(logx.Config{
						Level:   cfg.Logging.Level,
						Console: cfg.Logging.Console,
						File: logx.FileConfig{
							Enabled: cfg.Logging.File.Enabled,
							Path:    cfg.Logging.File.Path,
						},
					})
				case "partition":
					owned := ring.Full()
					if cfg.Partition != nil {
						begin, end, err := cfg.Partition.Bounds()
						if err != nil {
							a.log.Warn("partition config rejected", logx.Err(err))
							continue
						}
						owned = ring.Range{Begin: begin, End: end}
					}
					a.ringp.SetRange(owned)
				case "storage", "scheduler":
					a.log.Warn("config change requires restart",
						logx.String("section", s))
				}
			}
		}
	}
}

// logEvents mirrors bus traffic at debug level for operational visibility.
func (a *App) logEvents() {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-a.runCtx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

// loggingInvoker is the default callback target for a standalone daemon:
// it records the fire and leaves consumption to bus subscribers.
func loggingInvoker(log logx.Logger) scheduler.Invoker {
	return scheduler.InvokerFunc(func(ctx context.Context, owner, name string, status reminder.TickStatus) error {
		log.Info("reminder fired",
			logx.String("owner", owner),
			logx.String("name", name),
			logx.Time("tick", status.CurrentTick),
			logx.Bool("first", status.FirstTick))
		return nil
	})
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: busy,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	sc := scheduler.Config{
		BaseBucketSize:  cfg.Scheduler.BaseBucketSize,
		PriorityEnabled: cfg.Scheduler.PriorityEnabled,
		Workers:         cfg.Scheduler.Workers,
		QueueSize:       cfg.Scheduler.QueueSize,
	}
	fields := []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"scheduler.min_reminder_period", cfg.Scheduler.MinReminderPeriod, &sc.MinReminderPeriod},
		{"scheduler.init_timeout", cfg.Scheduler.InitTimeout, &sc.InitTimeout},
		{"scheduler.look_ahead_window", cfg.Scheduler.LookAheadWindow, &sc.LookAheadWindow},
		{"scheduler.poll_interval", cfg.Scheduler.PollInterval, &sc.PollInterval},
		{"scheduler.repair_interval", cfg.Scheduler.RepairInterval, &sc.RepairInterval},
		{"scheduler.repair_tolerance", cfg.Scheduler.RepairTolerance, &sc.RepairTolerance},
		{"scheduler.missed_tolerance", cfg.Scheduler.MissedTolerance, &sc.MissedTolerance},
	}
	for _, f := range fields {
		d, err := config.ParseDurationField(f.path, f.raw)
		if err != nil {
			return scheduler.Config{}, err
		}
		*f.dst = d
	}
	if err := sc.Validate(); err != nil {
		return scheduler.Config{}, err
	}
	return sc, nil
}
