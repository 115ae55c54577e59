package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Start(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Stop(ctx context.Context) error {
	return s.db.Close()
}

const rowColumns = `owner_id, name, start_at, period_ns, cron_expr, time_zone, next_due, last_fire, priority, missed_action, etag`

func (s *sqliteStore) ReadRange(ctx context.Context, begin, end uint64) ([]reminder.Row, error) {
	var (
		query string
		args  []any
	)
	switch {
	case begin == end:
		query = `SELECT ` + rowColumns + ` FROM reminders ORDER BY owner_id, name`
	case begin < end:
		query = `SELECT ` + rowColumns + ` FROM reminders WHERE owner_hash > ? AND owner_hash <= ? ORDER BY owner_id, name`
		args = []any{hashKey(begin), hashKey(end)}
	default:
		query = `SELECT ` + rowColumns + ` FROM reminders WHERE owner_hash > ? OR owner_hash <= ? ORDER BY owner_id, name`
		args = []any{hashKey(begin), hashKey(end)}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func (s *sqliteStore) ReadOwner(ctx context.Context, owner string) ([]reminder.Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rowColumns+` FROM reminders WHERE owner_id = ? ORDER BY name`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func (s *sqliteStore) Read(ctx context.Context, owner, name string) (*reminder.Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rowColumns+` FROM reminders WHERE owner_id = ? AND name = ?`, owner, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

func (s *sqliteStore) Upsert(ctx context.Context, row *reminder.Row) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT etag FROM reminders WHERE owner_id = ? AND name = ?`,
		row.OwnerID, row.Name).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if row.Version != "" {
			return "", ErrVersionConflict
		}
	case err != nil:
		return "", err
	default:
		if current != row.Version {
			return "", ErrVersionConflict
		}
	}

	next := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO reminders(owner_id, name, owner_hash, start_at, period_ns, cron_expr, time_zone, next_due, last_fire, priority, missed_action, etag)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(owner_id, name) DO UPDATE SET
		   start_at=excluded.start_at, period_ns=excluded.period_ns,
		   cron_expr=excluded.cron_expr, time_zone=excluded.time_zone,
		   next_due=excluded.next_due, last_fire=excluded.last_fire,
		   priority=excluded.priority, missed_action=excluded.missed_action,
		   etag=excluded.etag`,
		row.OwnerID, row.Name, hashKey(reminder.OwnerHash(row.OwnerID)),
		row.StartAt.UTC().Format(time.RFC3339Nano), int64(row.Period),
		row.CronExpression, row.TimeZoneID,
		nullTime(row.NextDue), nullTime(row.LastFire),
		string(row.Priority.Normalize()), string(row.MissedAction.Normalize()), next,
	)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return next, nil
}

func (s *sqliteStore) Remove(ctx context.Context, owner, name, version string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reminders WHERE owner_id = ? AND name = ? AND etag = ?`,
		owner, name, version)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanRows(rows *sql.Rows) ([]reminder.Row, error) {
	var out []reminder.Row
	for rows.Next() {
		var (
			r        reminder.Row
			startAt  string
			periodNS int64
			nextDue  sql.NullString
			lastFire sql.NullString
			prio     string
			action   string
		)
		if err := rows.Scan(&r.OwnerID, &r.Name, &startAt, &periodNS, &r.CronExpression,
			&r.TimeZoneID, &nextDue, &lastFire, &prio, &action, &r.Version); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, startAt)
		if err != nil {
			return nil, fmt.Errorf("storage: bad start_at %q: %w", startAt, err)
		}
		r.StartAt = t
		r.Period = time.Duration(periodNS)
		if r.NextDue, err = parseNullTime(nextDue); err != nil {
			return nil, err
		}
		if r.LastFire, err = parseNullTime(lastFire); err != nil {
			return nil, err
		}
		r.Priority = reminder.Priority(prio).Normalize()
		r.MissedAction = reminder.MissedAction(action).Normalize()
		out = append(out, r)
	}
	return out, rows.Err()
}

// hashKey renders a ring hash as zero-padded hex so that TEXT ordering in
// SQL matches uint64 ordering.
func hashKey(h uint64) string { return fmt.Sprintf("%016x", h) }

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, fmt.Errorf("storage: bad timestamp %q: %w", v.String, err)
	}
	t = t.UTC()
	return &t, nil
}
