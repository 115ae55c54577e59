package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

var (
	// ErrVersionConflict reports a lost optimistic-concurrency race: the
	// row changed since the caller read it.
	ErrVersionConflict = errors.New("storage: version conflict")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "memory": process-local, lost on restart
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence contract the scheduler and the management
// surface run against. All reads return rows sorted ascending by
// (OwnerID, Name) and deep-copied, so callers may mutate results freely.
type Store interface {
	// Start and Stop bracket the store's lifetime.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// ReadRange returns the rows whose owner hash falls in
	// (begin, end], wrapping around the hash space when begin >= end;
	// begin == end addresses the full keyspace.
	ReadRange(ctx context.Context, begin, end uint64) ([]reminder.Row, error)

	// ReadOwner returns all rows of one owner.
	ReadOwner(ctx context.Context, owner string) ([]reminder.Row, error)

	// Read returns one row, or (nil, nil) when absent.
	Read(ctx context.Context, owner, name string) (*reminder.Row, error)

	// Upsert inserts the row when its Version is empty, or replaces it
	// when Version matches the stored token. It returns the new version
	// token, or ErrVersionConflict.
	Upsert(ctx context.Context, row *reminder.Row) (string, error)

	// Remove deletes the row when version matches. It returns false
	// (without error) when the row is missing or the token is stale.
	Remove(ctx context.Context, owner, name, version string) (bool, error)
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("storage: unknown driver: " + cfg.Driver)
	}
}
