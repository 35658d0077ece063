// Package store is the catalog's persistence layer.
//
// A Session is a request-scoped unit of work over one SQLite transaction.
// Reads and writes issued through a session see each other's effects; nothing
// becomes visible to other sessions until Commit. After Commit or Rollback the
// session starts a fresh transaction on its next use, so a single session can
// span several commits.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a lookup by id or name matches no row.
var ErrNotFound = errors.New("not found")

// NotFoundError wraps ErrNotFound with the kind and key that were looked up.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

func notFound(kind, key string) error {
	return &NotFoundError{Kind: kind, Key: key}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// Session is not safe for concurrent use.
type Session struct {
	db  *sql.DB
	tx  *sql.Tx
	now func() time.Time
}

func NewSession(db *sql.DB) *Session {
	return &Session{db: db, now: time.Now}
}

// Now returns the session clock in UTC.
func (s *Session) Now() time.Time {
	return s.now().UTC()
}

// SetClock replaces the clock used for timestamps.
func (s *Session) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Session) conn() (querier, error) {
	if s.tx == nil {
		// Not bound to a request context: the transaction outlives any
		// single call made through the session.
		tx, err := s.db.Begin()
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		s.tx = tx
	}
	return s.tx, nil
}

// Pending reports whether the session holds an open transaction.
func (s *Session) Pending() bool {
	return s.tx != nil
}

// Commit commits pending work. Committing an idle session is a no-op.
func (s *Session) Commit() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback discards pending work.
func (s *Session) Rollback() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// Close rolls back anything left uncommitted.
func (s *Session) Close() error {
	return s.Rollback()
}

func (s *Session) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	q, err := s.conn()
	if err != nil {
		return nil, err
	}
	return q.ExecContext(ctx, query, args...)
}

func (s *Session) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	q, err := s.conn()
	if err != nil {
		return nil, err
	}
	return q.QueryContext(ctx, query, args...)
}

func (s *Session) queryRow(ctx context.Context, query string, args ...any) (*sql.Row, error) {
	q, err := s.conn()
	if err != nil {
		return nil, err
	}
	return q.QueryRowContext(ctx, query, args...), nil
}

// collect drains rows through scan, closing them before returning so callers
// can issue further queries on the same transaction.
func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func timePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeJSON(v map[string]any) (string, error) {
	if v == nil {
		v = map[string]any{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json: %w", err)
	}
	return string(b), nil
}

func decodeJSON(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	return v, nil
}
