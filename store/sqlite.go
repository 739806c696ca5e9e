package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"campus-notifier/pkg/notifier"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS poll_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	enabled INTEGER NOT NULL DEFAULT 0,
	last_seen_at INTEGER,
	next_allowed_at INTEGER
);
CREATE TABLE IF NOT EXISTS poll_outcomes (
	id TEXT PRIMARY KEY,
	at INTEGER NOT NULL,
	status TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_poll_outcomes_at ON poll_outcomes(at DESC);
`

// SQLiteStore persists state in a local SQLite database. This is the default
// backend for on-device and local-development deployments.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLite opens or creates the database at path.
func NewSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// State returns the current poll state, or the zero state when none exists.
func (s *SQLiteStore) State(ctx context.Context) (notifier.PollState, error) {
	var (
		enabled       bool
		lastSeenAt    sql.NullInt64
		nextAllowedAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled, last_seen_at, next_allowed_at FROM poll_state WHERE id = 1`,
	).Scan(&enabled, &lastSeenAt, &nextAllowedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return notifier.PollState{}, nil
	}
	if err != nil {
		return notifier.PollState{}, fmt.Errorf("read poll state: %w", err)
	}

	state := notifier.PollState{Enabled: enabled}
	if lastSeenAt.Valid {
		state.LastSeenAt = fromMillis(&lastSeenAt.Int64)
	}
	if nextAllowedAt.Valid {
		state.NextAllowedAt = fromMillis(&nextAllowedAt.Int64)
	}
	return state, nil
}

// SaveState replaces the single poll state row.
func (s *SQLiteStore) SaveState(ctx context.Context, state notifier.PollState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO poll_state(id, enabled, last_seen_at, next_allowed_at) VALUES(1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			enabled = excluded.enabled,
			last_seen_at = excluded.last_seen_at,
			next_allowed_at = excluded.next_allowed_at`,
		state.Enabled, nullMillis(millis(state.LastSeenAt)), nullMillis(millis(state.NextAllowedAt)),
	)
	if err != nil {
		return fmt.Errorf("save poll state: %w", err)
	}
	return nil
}

// AppendOutcome inserts the entry and evicts everything beyond MaxOutcomes.
func (s *SQLiteStore) AppendOutcome(ctx context.Context, outcome notifier.PollOutcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outcome append: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO poll_outcomes(id, at, status, detail, count) VALUES(?, ?, ?, ?, ?)`,
		outcome.ID, outcome.At.UnixMilli(), string(outcome.Status), outcome.Detail, outcome.Count,
	); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM poll_outcomes WHERE id NOT IN (
			SELECT id FROM poll_outcomes ORDER BY at DESC, rowid DESC LIMIT ?
		)`, MaxOutcomes,
	); err != nil {
		return fmt.Errorf("evict outcomes: %w", err)
	}

	return tx.Commit()
}

// Outcomes returns up to limit entries, most recent first.
func (s *SQLiteStore) Outcomes(ctx context.Context, limit int) ([]notifier.PollOutcome, error) {
	if limit <= 0 || limit > MaxOutcomes {
		limit = MaxOutcomes
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, status, detail, count FROM poll_outcomes ORDER BY at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("read outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []notifier.PollOutcome
	for rows.Next() {
		var (
			o  notifier.PollOutcome
			at int64
			st string
		)
		if err := rows.Scan(&o.ID, &at, &st, &o.Detail, &o.Count); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.At = *fromMillis(&at)
		o.Status = notifier.Status(st)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// ClearOutcomes empties the log.
func (s *SQLiteStore) ClearOutcomes(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM poll_outcomes`); err != nil {
		return fmt.Errorf("clear outcomes: %w", err)
	}
	return nil
}

func nullMillis(ms *int64) any {
	if ms == nil {
		return nil
	}
	return *ms
}
