// Package db provides SQL persistence for storyforge.
//
// One database holds every project factory (one row per project, one JSON
// column per aggregate component) plus the distribution tables. SQLite is the
// default engine; PostgreSQL is selected through driver.Config.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/randalmurphal/storyforge/internal/db/driver"
)

//go:embed schema/*.sql schema/postgres/*.sql
var schemaFS embed.FS

// SchemaFactory is the migration set for the factory database.
const SchemaFactory = "factory"

// DB wraps a database connection with driver abstraction.
type DB struct {
	driver driver.Driver
	dsn    string
}

// Open opens a database for cfg. For file-backed SQLite the parent directory
// is created first.
func Open(cfg driver.Config) (*DB, error) {
	if cfg.Dialect == "" {
		cfg.Dialect = driver.DialectSQLite
	}
	if cfg.Dialect == driver.DialectSQLite && cfg.DSN != driver.MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	drv, err := driver.New(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	if err := drv.Open(cfg); err != nil {
		return nil, err
	}
	return &DB{driver: drv, dsn: cfg.DSN}, nil
}

// OpenInMemory opens an isolated in-memory SQLite database.
func OpenInMemory() (*DB, error) {
	return Open(driver.Config{Dialect: driver.DialectSQLite, DSN: driver.MemoryDSN})
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.driver.Close()
}

// DSN returns the database DSN or path.
func (d *DB) DSN() string {
	return d.dsn
}

// Dialect returns the database dialect.
func (d *DB) Dialect() driver.Dialect {
	return d.driver.Dialect()
}

// Driver returns the underlying driver for dialect-specific operations.
func (d *DB) Driver() driver.Driver {
	return d.driver
}

// Migrate runs all migrations for the given schema type.
func (d *DB) Migrate(ctx context.Context, schemaType string) error {
	return d.driver.Migrate(ctx, schemaFS, schemaType)
}

// Ping verifies the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.driver.Ping(ctx)
}

// ExecContext executes a query without returning rows.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.driver.Exec(ctx, query, args...)
}

// QueryContext executes a query that returns rows.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.driver.Query(ctx, query, args...)
}

// QueryRowContext executes a query that returns at most one row.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.driver.QueryRow(ctx, query, args...)
}

// BeginTx starts a transaction.
func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (driver.Tx, error) {
	return d.driver.BeginTx(ctx, opts)
}
