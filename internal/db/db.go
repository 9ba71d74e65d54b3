// Package db opens the embedded SQL databases under the data directory.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
	_ "modernc.org/sqlite"
)

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string
}

// Open opens the DuckDB database <DataDir>/duckdb/<DBName>.duckdb.
func Open(cfg Config) (*sql.DB, error) {
	return open("duckdb", filepath.Join(cfg.DataDir, "duckdb"), cfg.DBName+".duckdb")
}

// OpenSQLite opens the SQLite database <DataDir>/sqlite/<DBName>.db.
// Writes are serialised over a single connection.
func OpenSQLite(cfg Config) (*sql.DB, error) {
	conn, err := open("sqlite", filepath.Join(cfg.DataDir, "sqlite"), cfg.DBName+".db")
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}

func open(driver, dir, file string) (*sql.DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", driver, err)
	}

	dbPath := filepath.Join(dir, file)
	conn, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening %s: %w", dbPath, err)
	}
	return conn, nil
}
