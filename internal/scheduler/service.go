package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"reminderd/internal/eventbus"
	"reminderd/internal/reminder"
	"reminderd/internal/ring"
	"reminderd/internal/storage"
	"reminderd/pkg/logx"
)

const (
	startupAttempts    = 6
	startupBackoffBase = 275 * time.Millisecond
	startupBackoffSpan = 225 * time.Millisecond
)

// Service drives reminder delivery for the owned slice of the hash ring:
// it scans the store on a cadence, selects a bounded bucket of due rows,
// and hands them to delivery workers.
type Service struct {
	cfg     Config
	log     logx.Logger
	store   storage.Store
	ringp   ring.Provider
	invoker Invoker
	bus     eventbus.Bus

	queue    *deliveryQueue
	inflight *inflight

	state   atomic.Int32
	started chan struct{} // closed once startup completes

	runCtx    context.Context
	runCancel context.CancelFunc
	stopCh    chan struct{}
	workerWG  sync.WaitGroup

	unsubscribe func()
	scanLog     *rate.Limiter

	// startup backoff; fields so tests can compress the schedule
	backoffBase time.Duration
	backoffSpan time.Duration

	polled     atomic.Uint64
	queued     atomic.Uint64
	delivered  atomic.Uint64
	missed     atomic.Uint64
	conflicts  atomic.Uint64
	dropped    atomic.Uint64
	scanErrors atomic.Uint64
}

// New wires a scheduler. Validate the config before calling; New applies
// defaults but does not re-check invariants.
func New(cfg Config, store storage.Store, provider ring.Provider, invoker Invoker, bus eventbus.Bus, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	s := &Service{
		cfg:      cfg,
		log:      log,
		store:    store,
		ringp:    provider,
		invoker:  invoker,
		bus:      bus,
		queue:    newDeliveryQueue(cfg.QueueSize),
		inflight: newInflight(),
		started:  make(chan struct{}),
		stopCh:   make(chan struct{}),
		scanLog:  rate.NewLimiter(rate.Every(10*time.Second), 1),

		backoffBase: startupBackoffBase,
		backoffSpan: startupBackoffSpan,
	}
	s.state.Store(int32(StateBooting))
	return s
}

// State reports the current lifecycle state.
func (s *Service) State() State {
	return State(s.state.Load())
}

// Start performs the initial owned-range scan and launches the poll,
// repair, and delivery loops. A scan that keeps failing fails the start
// and leaves the service stopped.
func (s *Service) Start(ctx context.Context) error {
	if State(s.state.Load()) != StateBooting {
		return fmt.Errorf("start scheduler: already %s", s.State())
	}

	s.runCtx, s.runCancel = context.WithCancel(context.Background())

	if err := s.initialScan(ctx); err != nil {
		s.runCancel()
		s.queue.Close()
		s.state.Store(int32(StateStopped))
		return err
	}

	ch, unsub := s.ringp.Subscribe(4)
	s.unsubscribe = unsub

	for i := 0; i < s.cfg.Workers; i++ {
		s.workerWG.Add(1)
		go s.workerLoop(i)
	}
	s.workerWG.Add(3)
	go s.pollLoop()
	go s.repairLoop()
	go s.rangeLoop(ch)

	s.state.Store(int32(StateStarted))
	close(s.started)
	s.log.Info("reminder scheduler started",
		logx.Int("workers", s.cfg.Workers),
		logx.Int("queue_size", s.cfg.QueueSize),
		logx.Duration("poll_interval", s.cfg.PollInterval),
		logx.Duration("look_ahead", s.cfg.LookAheadWindow))
	return nil
}

// initialScan retries the first owned-range scan with doubling jittered
// backoff before giving up.
func (s *Service) initialScan(ctx context.Context) error {
	delay := s.backoffBase + time.Duration(rand.Int63n(int64(s.backoffSpan)))
	var lastErr error
	for attempt := 1; attempt <= startupAttempts; attempt++ {
		lastErr = s.scanOnce(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == startupAttempts {
			break
		}
		s.log.Warn("initial reminder scan failed, retrying",
			logx.Int("attempt", attempt),
			logx.Duration("backoff", delay),
			logx.Err(lastErr))
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-s.stopCh:
			timer.Stop()
			return ErrSchedulerStopped
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		delay *= 2
	}
	return fmt.Errorf("initial reminder scan failed after %d attempts: %w", startupAttempts, lastErr)
}

// Stop drains the loops and waits for in-progress deliveries up to the
// context deadline.
func (s *Service) Stop(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateStarted), int32(StateStopping)) {
		if !s.state.CompareAndSwap(int32(StateBooting), int32(StateStopped)) {
			return nil
		}
		close(s.stopCh)
		s.queue.Close()
		return nil
	}

	close(s.stopCh)
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.queue.Close()
	s.runCancel()

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
	s.state.Store(int32(StateStopped))
	s.log.Info("reminder scheduler stopped")
	return err
}

// awaitStarted gates operations arriving during startup. Callers are held
// until startup completes, the init timeout lapses, or shutdown begins.
func (s *Service) awaitStarted(ctx context.Context) error {
	switch State(s.state.Load()) {
	case StateStarted:
		return nil
	case StateStopping, StateStopped:
		return ErrSchedulerStopped
	case StateBooting:
	default:
		panic(fmt.Sprintf("scheduler in unknown state %d", s.state.Load()))
	}

	timer := time.NewTimer(s.cfg.InitTimeout)
	defer timer.Stop()
	select {
	case <-s.started:
	case <-s.stopCh:
		return ErrSchedulerStopped
	case <-timer.C:
		return fmt.Errorf("%w: startup did not complete within %v", ErrNotStarted, s.cfg.InitTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	if State(s.state.Load()) != StateStarted {
		return ErrSchedulerStopped
	}
	return nil
}

// tryQueue hands a row to the delivery pipeline. It is idempotent for an
// unchanged version; a changed version refreshes the pending copy.
func (s *Service) tryQueue(ctx context.Context, row *reminder.Row) bool {
	accepted, push := s.inflight.Put(row)
	if !push {
		return accepted
	}
	if !s.queue.Enqueue(ctx, row.Key()) {
		s.inflight.Rollback(row.Key(), row.Version)
		return false
	}
	s.queued.Add(1)
	return true
}

// tryQueueNoWait is the scan-path variant. A full queue is not an error:
// the row is left behind and the next poll tick finds it again. Scans
// must never block on the queue, the initial scan runs before any worker
// is consuming.
func (s *Service) tryQueueNoWait(row *reminder.Row) bool {
	accepted, push := s.inflight.Put(row)
	if !push {
		return accepted
	}
	if !s.queue.TryEnqueue(row.Key()) {
		s.inflight.Rollback(row.Key(), row.Version)
		return false
	}
	s.queued.Add(1)
	return true
}

// Snapshot returns a point-in-time diagnostic view.
func (s *Service) Snapshot() Snapshot {
	return Snapshot{
		State:      s.State(),
		QueueLen:   s.queue.Len(),
		QueueCap:   s.queue.Cap(),
		InFlight:   s.inflight.Len(),
		Polled:     s.polled.Load(),
		Queued:     s.queued.Load(),
		Delivered:  s.delivered.Load(),
		Missed:     s.missed.Load(),
		Conflicts:  s.conflicts.Load(),
		Dropped:    s.dropped.Load(),
		ScanErrors: s.scanErrors.Load(),
	}
}

func (s *Service) publish(eventType string, ev eventbus.ReminderEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: eventType, Data: ev})
}
