// Package store provides the key-value backends that hold persisted
// overlay snapshots.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joeblew999/plat-overlay/internal/db"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Store is a last-write-wins key-value store.
type Store interface {
	// Get returns the value for key. The bool is false when no value exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Put overwrites the value for key.
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendDuckDB = "duckdb"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open returns the store for backend rooted at dataDir.
func Open(backend, dataDir string) (Store, error) {
	switch backend {
	case "", BackendFile:
		fs, err := NewFileStore(dataDir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case BackendDuckDB:
		return openSQL(db.Open(db.Config{DataDir: dataDir, DBName: "overlay"}))
	case BackendSQLite:
		return openSQL(db.OpenSQLite(db.Config{DataDir: dataDir, DBName: "overlay"}))
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func openSQL(conn *sql.DB, err error) (Store, error) {
	if err != nil {
		return nil, err
	}
	s, err := NewSQLStore(context.Background(), conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}
