package scheduler

import (
	"container/heap"
	"math"
	"sort"

	"reminderd/internal/reminder"
)

// adaptiveBucketSize derives how many candidates a single scan pass may
// select. More cores grow the bucket, memory pressure shrinks it, and a
// large active-actor population shrinks it further so reminder delivery
// does not starve actor traffic. The result never drops below one.
func adaptiveBucketSize(base, cpuCount int, memoryLoad float64, activeActors int) int {
	cpuFactor := math.Max(1, float64(cpuCount)/4)
	memFactor := math.Max(0.25, 1-memoryLoad)
	if activeActors < 1 {
		activeActors = 1
	}
	actorFactor := math.Min(1, 50000/float64(activeActors))
	size := int(math.Round(float64(base) * cpuFactor * memFactor * actorFactor))
	if size < 1 {
		return 1
	}
	return size
}

// BucketSize reports the current adaptive selection limit.
func (s *Service) BucketSize() int {
	return adaptiveBucketSize(s.cfg.BaseBucketSize, s.cfg.CPUCount, s.cfg.MemoryLoad(), s.cfg.ActiveActors())
}

// fireBefore reports whether a should be delivered before b. With
// prioritized selection higher priority wins first; due time and then name
// break ties.
func fireBefore(a, b *reminder.Row, prioritized bool) bool {
	if prioritized {
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra > rb
		}
	}
	if !a.NextDue.Equal(*b.NextDue) {
		return a.NextDue.Before(*b.NextDue)
	}
	if a.OwnerID != b.OwnerID {
		return a.OwnerID < b.OwnerID
	}
	return a.Name < b.Name
}

// candidateHeap keeps the worst retained candidate at the root so it can
// be evicted cheaply when a better one arrives.
type candidateHeap struct {
	rows        []*reminder.Row
	prioritized bool
}

func (h *candidateHeap) Len() int { return len(h.rows) }

func (h *candidateHeap) Less(i, j int) bool {
	return fireBefore(h.rows[j], h.rows[i], h.prioritized)
}

func (h *candidateHeap) Swap(i, j int) { h.rows[i], h.rows[j] = h.rows[j], h.rows[i] }

func (h *candidateHeap) Push(x any) { h.rows = append(h.rows, x.(*reminder.Row)) }

func (h *candidateHeap) Pop() any {
	old := h.rows
	n := len(old)
	row := old[n-1]
	old[n-1] = nil
	h.rows = old[:n-1]
	return row
}

// SelectTopCandidates retains the limit most urgent rows from candidates
// in a single pass using at most limit retained copies. The input slice
// and its rows may be reused by the caller; retained rows are deep copies.
// The result is sorted in delivery order.
func SelectTopCandidates(candidates []*reminder.Row, limit int, prioritized bool) []*reminder.Row {
	if limit < 1 || len(candidates) == 0 {
		return nil
	}
	h := &candidateHeap{prioritized: prioritized}
	for _, row := range candidates {
		if row == nil || row.NextDue == nil {
			continue
		}
		if h.Len() < limit {
			heap.Push(h, row.Clone())
			continue
		}
		if fireBefore(row, h.rows[0], prioritized) {
			h.rows[0] = row.Clone()
			heap.Fix(h, 0)
		}
	}
	out := h.rows
	sort.Slice(out, func(i, j int) bool { return fireBefore(out[i], out[j], prioritized) })
	return out
}
