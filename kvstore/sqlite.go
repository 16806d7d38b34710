package kvstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Schema for the kv table. Applied by NewSQLite.
const Schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLite is a Store backed by a single kv table. Open the database with
// sqldb.Open (modernc.org/sqlite, WAL mode); NewSQLite applies the schema.
type SQLite struct {
	*notifier
	db     *sql.DB
	logger *slog.Logger
}

// SQLiteOption configures a SQLite store.
type SQLiteOption func(*SQLite)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) SQLiteOption {
	return func(s *SQLite) { s.logger = l }
}

// NewSQLite creates a SQLite store on db and applies the kv schema.
// The store does not own db's lifetime beyond Close.
func NewSQLite(db *sql.DB, opts ...SQLiteOption) (*SQLite, error) {
	s := &SQLite{
		db:     db,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.notifier = newNotifier(s.logger)

	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("kvstore: apply schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kvstore: get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	old, _, err := s.Get(ctx, key)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("kvstore: set %s: %w", key, err)
	}

	s.notify(key, old, value, false)
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	old, had, err := s.Get(ctx, key)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("kvstore: delete %s: %w", key, err)
	}

	if had {
		s.notify(key, old, "", false)
	}
	return nil
}

func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("kvstore: keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("kvstore: scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
