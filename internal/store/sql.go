package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLStore keeps values in a kv table. It serves the DuckDB and SQLite
// backends, which share the table layout and upsert syntax.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates the kv table if it does not exist. The store owns
// conn and closes it on Close.
func NewSQLStore(ctx context.Context, conn *sql.DB) (*SQLStore, error) {
	const ddl = `CREATE TABLE IF NOT EXISTS kv (key VARCHAR PRIMARY KEY, value VARCHAR NOT NULL)`
	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("creating kv table: %w", err)
	}
	return &SQLStore{db: conn}, nil
}

// Get selects the value for key.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(value), true, nil
}

// Put upserts the value for key.
func (s *SQLStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)`, key, string(value))
	return err
}

// Close closes the underlying connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLStore)(nil)
