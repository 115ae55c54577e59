// Package ring models the hash-space partition an instance owns and the
// provider contract that announces ownership changes.
package ring

import (
	"fmt"
	"sync"
)

// Range is a sub-range of the 64-bit hash ring with exclusive begin and
// inclusive end. Begin >= End wraps around the top of the hash space;
// Begin == End denotes the full keyspace.
type Range struct {
	Begin uint64
	End   uint64
}

// Full returns the range owning the entire keyspace.
func Full() Range { return Range{} }

// IsFull reports whether the range covers the whole keyspace.
func (r Range) IsFull() bool { return r.Begin == r.End }

// Contains reports whether a hash falls inside the range.
func (r Range) Contains(h uint64) bool {
	if r.IsFull() {
		return true
	}
	if r.Begin < r.End {
		return h > r.Begin && h <= r.End
	}
	// Wrapped range.
	return h > r.Begin || h <= r.End
}

func (r Range) String() string {
	return fmt.Sprintf("(%#x, %#x]", r.Begin, r.End)
}

// RangeChange notifies a subscriber that the owned range moved.
type RangeChange struct {
	Old  Range
	New  Range
	Grew bool
}

// Provider supplies the instance's owned range and announces changes.
type Provider interface {
	OwnedRange() Range
	// Subscribe returns a buffered notification channel and an
	// unsubscribe func. Slow subscribers may miss intermediate changes
	// but always observe the latest one.
	Subscribe(buffer int) (<-chan RangeChange, func())
}

// StaticProvider is a Provider with an externally settable range. It
// backs single-instance deployments (full keyspace) and tests.
type StaticProvider struct {
	mu    sync.RWMutex
	owned Range

	subsMu sync.Mutex
	subs   map[uint64]chan RangeChange
	seq    uint64
}

func NewStaticProvider(owned Range) *StaticProvider {
	return &StaticProvider{owned: owned, subs: map[uint64]chan RangeChange{}}
}

func (p *StaticProvider) OwnedRange() Range {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.owned
}

// SetRange replaces the owned range and notifies subscribers.
func (p *StaticProvider) SetRange(next Range) {
	p.mu.Lock()
	old := p.owned
	p.owned = next
	p.mu.Unlock()

	if old == next {
		return
	}
	change := RangeChange{Old: old, New: next, Grew: next.span() >= old.span()}

	p.subsMu.Lock()
	chs := make([]chan RangeChange, 0, len(p.subs))
	for _, ch := range p.subs {
		chs = append(chs, ch)
	}
	p.subsMu.Unlock()

	for _, ch := range chs {
		// Non-blocking: drop the oldest pending change so the latest
		// always lands.
		select {
		case ch <- change:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- change:
			default:
			}
		}
	}
}

func (p *StaticProvider) Subscribe(buffer int) (<-chan RangeChange, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan RangeChange, buffer)

	p.subsMu.Lock()
	p.seq++
	id := p.seq
	p.subs[id] = ch
	p.subsMu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			p.subsMu.Lock()
			delete(p.subs, id)
			p.subsMu.Unlock()
		})
	}
	return ch, unsub
}

// span measures the number of hashes a range covers; the full range
// reports the maximum.
func (r Range) span() uint64 {
	if r.IsFull() {
		return ^uint64(0)
	}
	return r.End - r.Begin // wraps correctly in uint64 arithmetic
}
