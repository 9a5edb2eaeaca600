package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/randalmurphal/storyforge/internal/db/driver"
)

// TxRunner provides a transactional execution interface.
type TxRunner interface {
	// RunInTx executes fn within a transaction. If fn returns an error, the
	// transaction is rolled back; otherwise it is committed.
	RunInTx(ctx context.Context, fn func(tx *TxOps) error) error
}

// TxOps provides database operations within a transaction. The context given
// to RunInTx is used for every statement.
type TxOps struct {
	tx      driver.Tx
	dialect driver.Dialect
	ctx     context.Context
}

// Exec executes a query within the transaction.
func (t *TxOps) Exec(query string, args ...any) (sql.Result, error) {
	return t.tx.Exec(t.ctx, query, args...)
}

// Query executes a query that returns rows within the transaction.
func (t *TxOps) Query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.Query(t.ctx, query, args...)
}

// QueryRow executes a query that returns at most one row within the transaction.
func (t *TxOps) QueryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRow(t.ctx, query, args...)
}

// Dialect returns the database dialect.
func (t *TxOps) Dialect() driver.Dialect {
	return t.dialect
}

// FactoryDB provides operations on the factory database.
type FactoryDB struct {
	*DB
}

// OpenFactory opens and migrates the factory database.
func OpenFactory(ctx context.Context, cfg driver.Config) (*FactoryDB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	return migrateFactory(ctx, db)
}

// OpenFactoryInMemory opens a migrated in-memory factory database.
func OpenFactoryInMemory(ctx context.Context) (*FactoryDB, error) {
	db, err := OpenInMemory()
	if err != nil {
		return nil, err
	}
	return migrateFactory(ctx, db)
}

func migrateFactory(ctx context.Context, db *DB) (*FactoryDB, error) {
	if err := db.Migrate(ctx, SchemaFactory); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate factory db: %w", err)
	}
	return &FactoryDB{DB: db}, nil
}

// RunInTx executes fn within a database transaction.
func (f *FactoryDB) RunInTx(ctx context.Context, fn func(tx *TxOps) error) error {
	tx, err := f.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	ops := &TxOps{tx: tx, dialect: f.Dialect(), ctx: ctx}

	if err := fn(ops); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var _ TxRunner = (*FactoryDB)(nil)
