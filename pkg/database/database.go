// Package database owns the PostgreSQL connection pool shared by all services.
//
// The pool is built once in main and handed down through app.Application;
// nothing in the codebase reaches for a package-level handle.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/ghuser/todos/pkg/logger"
)

const (
	defaultMaxOpenConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
	startupPingTimeout     = 5 * time.Second
)

// Database wraps the shared *sql.DB pool.
type Database struct {
	db *sql.DB
}

// PoolOptions tunes the connection pool. Zero values select defaults.
type PoolOptions struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// NewPool opens a pgx-backed *sql.DB for url and verifies connectivity.
//
// An unreachable server is logged, not returned: the pool reconnects lazily
// and requests made while the database is down fail individually.
// Only a malformed URL is a startup error.
func NewPool(ctx context.Context, url string, opts PoolOptions, log logger.Logger) (*Database, error) {
	if _, err := pgx.ParseConfig(url); err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	lifetime := opts.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = defaultConnMaxLifetime
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxLifetime(lifetime)

	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Warn("database unreachable at startup, continuing", "error", err)
	}

	return New(db), nil
}

// New wraps an existing *sql.DB. Used by tests and by NewPool.
func New(db *sql.DB) *Database {
	return &Database{db: db}
}

// DB returns the underlying *sql.DB.
func (d *Database) DB() *sql.DB {
	return d.db
}

// Ping checks the database connection health.
func (d *Database) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}

// Close releases every pooled connection.
func (d *Database) Close() error {
	return d.db.Close()
}
