package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/kiwari-pos/ordercore/internal/enum"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS queue_entries(
  id TEXT PRIMARY KEY,
  idempotency_key TEXT NOT NULL UNIQUE,
  payload TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('PENDING','SYNCING','SYNCED','CONFLICT','DISMISSED')),
  attempts INTEGER NOT NULL DEFAULT 0,
  last_error TEXT NOT NULL DEFAULT '',
  error_kind TEXT NOT NULL DEFAULT '',
  next_attempt_at INTEGER NOT NULL,
  order_id TEXT NOT NULL DEFAULT '',
  order_number TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queue_entries_due ON queue_entries(status, next_attempt_at);
`

const entryColumns = `id, idempotency_key, payload, status, attempts, last_error, error_kind,
  next_attempt_at, order_id, order_number, created_at, updated_at`

// SQLiteStore is a Store backed by a SQLite file, so queued checkouts
// survive restarts of the terminal.
type SQLiteStore struct {
	db *sqlx.DB
}

// OpenSQLite opens (creating if needed) the queue database at path.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	// One connection serialises writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping queue db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure queue schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type entryRow struct {
	ID             string `db:"id"`
	IdempotencyKey string `db:"idempotency_key"`
	Payload        string `db:"payload"`
	Status         string `db:"status"`
	Attempts       int    `db:"attempts"`
	LastError      string `db:"last_error"`
	ErrorKind      string `db:"error_kind"`
	NextAttemptAt  int64  `db:"next_attempt_at"`
	OrderID        string `db:"order_id"`
	OrderNumber    string `db:"order_number"`
	CreatedAt      int64  `db:"created_at"`
	UpdatedAt      int64  `db:"updated_at"`
}

func (r entryRow) entry() (Entry, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("parse entry id %q: %w", r.ID, err)
	}
	var req CheckoutRequest
	if err := json.Unmarshal([]byte(r.Payload), &req); err != nil {
		return Entry{}, fmt.Errorf("decode entry %s payload: %w", r.ID, err)
	}
	return Entry{
		ID:             id,
		IdempotencyKey: r.IdempotencyKey,
		Request:        req,
		Status:         r.Status,
		Attempts:       r.Attempts,
		LastError:      r.LastError,
		ErrorKind:      r.ErrorKind,
		NextAttemptAt:  time.UnixMilli(r.NextAttemptAt).UTC(),
		OrderID:        r.OrderID,
		OrderNumber:    r.OrderNumber,
		CreatedAt:      time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt:      time.UnixMilli(r.UpdatedAt).UTC(),
	}, nil
}

func toEntries(rows []entryRow) ([]Entry, error) {
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *SQLiteStore) Enqueue(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e.Request)
	if err != nil {
		return fmt.Errorf("encode entry payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO queue_entries(`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.IdempotencyKey, string(payload), e.Status, e.Attempts, e.LastError, e.ErrorKind,
		e.NextAttemptAt.UnixMilli(), e.OrderID, e.OrderNumber, e.CreatedAt.UnixMilli(), e.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	var row entryRow
	err := s.db.GetContext(ctx, &row, `SELECT `+entryColumns+` FROM queue_entries WHERE id = ?`, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, fmt.Errorf("get queue entry: %w", err)
	}
	return row.entry()
}

func (s *SQLiteStore) List(ctx context.Context, statuses ...string) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries`
	var args []any
	if len(statuses) > 0 {
		q, a, err := sqlx.In(query+` WHERE status IN (?)`, statuses)
		if err != nil {
			return nil, fmt.Errorf("build list query: %w", err)
		}
		query, args = q, a
	}
	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, query+` ORDER BY created_at, id`, args...); err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	return toEntries(rows)
}

func (s *SQLiteStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Entry, error) {
	var rows []entryRow
	err := s.db.SelectContext(ctx, &rows, `
		UPDATE queue_entries SET status = 'SYNCING', updated_at = ?
		WHERE id IN (
		  SELECT id FROM queue_entries
		  WHERE status = 'PENDING' AND next_attempt_at <= ?
		  ORDER BY created_at, id
		  LIMIT ?
		)
		RETURNING `+entryColumns,
		now.UnixMilli(), now.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due entries: %w", err)
	}
	entries, err := toEntries(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING does not preserve the subquery order.
	sortEntries(entries)
	return entries, nil
}

func (s *SQLiteStore) MarkSynced(ctx context.Context, id uuid.UUID, orderID, orderNumber string, now time.Time) error {
	return s.transition(ctx, id, []string{enum.QueueStatusSyncing}, `
		UPDATE queue_entries
		SET status = 'SYNCED', attempts = attempts + 1, order_id = ?, order_number = ?,
		    last_error = '', error_kind = '', updated_at = ?
		WHERE id = ? AND status = 'SYNCING'`,
		orderID, orderNumber, now.UnixMilli(), id.String())
}

func (s *SQLiteStore) MarkRetry(ctx context.Context, id uuid.UUID, lastErr string, next, now time.Time) error {
	return s.transition(ctx, id, []string{enum.QueueStatusSyncing}, `
		UPDATE queue_entries
		SET status = 'PENDING', attempts = attempts + 1, last_error = ?, next_attempt_at = ?, updated_at = ?
		WHERE id = ? AND status = 'SYNCING'`,
		lastErr, next.UnixMilli(), now.UnixMilli(), id.String())
}

func (s *SQLiteStore) MarkConflict(ctx context.Context, id uuid.UUID, kind, lastErr string, now time.Time) error {
	return s.transition(ctx, id, []string{enum.QueueStatusSyncing}, `
		UPDATE queue_entries
		SET status = 'CONFLICT', attempts = attempts + 1, error_kind = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND status = 'SYNCING'`,
		kind, lastErr, now.UnixMilli(), id.String())
}

func (s *SQLiteStore) Requeue(ctx context.Context, id uuid.UUID, now time.Time) error {
	return s.transition(ctx, id, []string{enum.QueueStatusConflict}, `
		UPDATE queue_entries SET status = 'PENDING', next_attempt_at = ?, updated_at = ?
		WHERE id = ? AND status = 'CONFLICT'`,
		now.UnixMilli(), now.UnixMilli(), id.String())
}

func (s *SQLiteStore) Dismiss(ctx context.Context, id uuid.UUID, now time.Time) error {
	return s.transition(ctx, id, []string{enum.QueueStatusPending, enum.QueueStatusConflict}, `
		UPDATE queue_entries SET status = 'DISMISSED', updated_at = ?
		WHERE id = ? AND status IN ('PENDING', 'CONFLICT')`,
		now.UnixMilli(), id.String())
}

func (s *SQLiteStore) ResetSyncing(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_entries SET status = 'PENDING', next_attempt_at = ?, updated_at = ?
		WHERE status = 'SYNCING'`,
		now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("reset syncing entries: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// transition runs a guarded UPDATE. When it matches nothing, the entry is
// read back to tell a missing id from a wrong state.
func (s *SQLiteStore) transition(ctx context.Context, id uuid.UUID, from []string, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update queue entry (%s): %w", strings.Join(from, "|"), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update queue entry: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrInvalidState
}
