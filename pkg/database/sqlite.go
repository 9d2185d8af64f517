package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const defaultBusyTimeoutMS = 5000

// DB wraps the graph store's SQLite handle.
type DB struct {
	*sql.DB
}

// Config holds graph store connection configuration.
type Config struct {
	Path          string
	BusyTimeoutMS int
}

// DSN renders the modernc.org/sqlite data source name. WAL lets readers
// proceed while a crawl commits; foreign keys guard edge endpoints.
func (c *Config) DSN() string {
	timeout := c.BusyTimeoutMS
	if timeout <= 0 {
		timeout = defaultBusyTimeoutMS
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", timeout))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_txlock", "immediate")
	return "file:" + c.Path + "?" + q.Encode()
}

// NewConnection opens the graph store, creating the file and its directory
// if needed. The store has a single writer, so the pool holds one connection.
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("graph store path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create graph store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open graph store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping graph store: %w", err)
	}

	return &DB{DB: db}, nil
}

// Close closes the underlying handle.
func (db *DB) Close() error {
	return db.DB.Close()
}
