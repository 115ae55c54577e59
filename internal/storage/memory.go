package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"reminderd/internal/reminder"
)

// Memory is an in-process Store. It honors the full contract, including
// version tokens, which makes it the default backing for tests.
type Memory struct {
	mu   sync.RWMutex
	rows map[string]*reminder.Row
}

func NewMemory() *Memory {
	return &Memory{rows: map[string]*reminder.Row{}}
}

func (m *Memory) Start(ctx context.Context) error { return nil }
func (m *Memory) Stop(ctx context.Context) error  { return nil }

func (m *Memory) ReadRange(ctx context.Context, begin, end uint64) ([]reminder.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []reminder.Row
	for _, r := range m.rows {
		if inRange(reminder.OwnerHash(r.OwnerID), begin, end) {
			out = append(out, *r.Clone())
		}
	}
	sortRows(out)
	return out, nil
}

func (m *Memory) ReadOwner(ctx context.Context, owner string) ([]reminder.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []reminder.Row
	for _, r := range m.rows {
		if r.OwnerID == owner {
			out = append(out, *r.Clone())
		}
	}
	sortRows(out)
	return out, nil
}

func (m *Memory) Read(ctx context.Context, owner, name string) (*reminder.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rows[owner+"/"+name]
	if !ok {
		return nil, nil
	}
	return r.Clone(), nil
}

func (m *Memory) Upsert(ctx context.Context, row *reminder.Row) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := row.Key()
	cur, exists := m.rows[key]
	if exists && cur.Version != row.Version {
		return "", ErrVersionConflict
	}
	if !exists && row.Version != "" {
		return "", ErrVersionConflict
	}

	cp := row.Clone()
	cp.Version = uuid.NewString()
	m.rows[key] = cp
	return cp.Version, nil
}

func (m *Memory) Remove(ctx context.Context, owner, name, version string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := owner + "/" + name
	cur, ok := m.rows[key]
	if !ok || cur.Version != version {
		return false, nil
	}
	delete(m.rows, key)
	return true, nil
}

// inRange applies exclusive-begin/inclusive-end ring semantics;
// begin == end matches everything.
func inRange(h, begin, end uint64) bool {
	if begin == end {
		return true
	}
	if begin < end {
		return h > begin && h <= end
	}
	return h > begin || h <= end
}

func sortRows(rows []reminder.Row) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].OwnerID != rows[j].OwnerID {
			return rows[i].OwnerID < rows[j].OwnerID
		}
		return rows[i].Name < rows[j].Name
	})
}
