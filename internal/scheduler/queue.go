package scheduler

import (
	"context"
	"sync"

	"reminderd/internal/reminder"
	"reminderd/internal/ring"
)

// deliveryQueue is a bounded blocking queue of reminder keys. Producers
// block when the queue is full; Close wakes blocked producers and makes
// further enqueues report failure instead of panicking.
type deliveryQueue struct {
	ch     chan string
	closed chan struct{}
	once   sync.Once
}

func newDeliveryQueue(size int) *deliveryQueue {
	return &deliveryQueue{
		ch:     make(chan string, size),
		closed: make(chan struct{}),
	}
}

func (q *deliveryQueue) Enqueue(ctx context.Context, key string) bool {
	select {
	case <-q.closed:
		return false
	default:
	}
	select {
	case q.ch <- key:
		return true
	case <-q.closed:
		return false
	case <-ctx.Done():
		return false
	}
}

// TryEnqueue never blocks: a full or closed queue reports failure
// immediately.
func (q *deliveryQueue) TryEnqueue(key string) bool {
	select {
	case <-q.closed:
		return false
	default:
	}
	select {
	case q.ch <- key:
		return true
	case <-q.closed:
		return false
	default:
		return false
	}
}

func (q *deliveryQueue) Dequeue(ctx context.Context) (string, bool) {
	select {
	case <-q.closed:
		return "", false
	default:
	}
	select {
	case key := <-q.ch:
		return key, true
	case <-q.closed:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

func (q *deliveryQueue) Close() {
	q.once.Do(func() { close(q.closed) })
}

func (q *deliveryQueue) Len() int { return len(q.ch) }
func (q *deliveryQueue) Cap() int { return cap(q.ch) }

// inflight tracks reminders that are queued but not yet delivered. The
// queue itself carries only keys; the map holds the freshest row copy so a
// re-scan never produces duplicate deliveries, only fresher data for the
// delivery already pending.
type inflight struct {
	mu   sync.Mutex
	rows map[string]*reminder.Row
}

func newInflight() *inflight {
	return &inflight{rows: make(map[string]*reminder.Row)}
}

// Put records row as pending. accepted is false only when an identical
// version is already pending. push is true when the caller must also
// enqueue the key; a version replacement reuses the queue entry already in
// flight.
func (f *inflight) Put(row *reminder.Row) (accepted, push bool) {
	key := row.Key()
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.rows[key]; ok {
		if cur.Version == row.Version {
			return false, false
		}
		f.rows[key] = row.Clone()
		return true, false
	}
	f.rows[key] = row.Clone()
	return true, true
}

// Take removes and returns the pending copy for key, or nil when the entry
// was pruned after the key was queued.
func (f *inflight) Take(key string) *reminder.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.rows[key]
	delete(f.rows, key)
	return row
}

// Rollback undoes a Put whose queue push failed, but only if the entry
// still carries the version that was put.
func (f *inflight) Rollback(key, version string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.rows[key]; ok && cur.Version == version {
		delete(f.rows, key)
	}
}

// Remove drops any pending entry for key.
func (f *inflight) Remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, key)
}

// PruneOutside drops pending entries whose owner hash left the owned
// range. Their queued keys become no-ops when dequeued.
func (f *inflight) PruneOutside(owned ring.Range) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for key, row := range f.rows {
		if !owned.Contains(reminder.OwnerHash(row.OwnerID)) {
			delete(f.rows, key)
			n++
		}
	}
	return n
}

func (f *inflight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}
