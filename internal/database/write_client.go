package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const writeTimeout = 30 * time.Second

// WriteClient provides write access to the ticket store
type WriteClient struct {
	db *sqlx.DB
}

// NewWriteClient wraps an open connection pool
func NewWriteClient(db *sqlx.DB) (*WriteClient, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required for write client")
	}
	return &WriteClient{db: db}, nil
}

// GetDB returns the underlying database connection
func (wc *WriteClient) GetDB() *sqlx.DB {
	return wc.db
}

// ExecuteWriteQuery executes a write query and returns the result
func (wc *WriteClient) ExecuteWriteQuery(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return wc.db.ExecContext(ctx, query, args...)
}

// ExecuteWriteQueryWithResult executes a query and scans all rows into dest
func (wc *WriteClient) ExecuteWriteQueryWithResult(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return wc.db.SelectContext(ctx, dest, query, args...)
}

// ExecuteWriteQuerySingle executes a query and scans a single row into dest
func (wc *WriteClient) ExecuteWriteQuerySingle(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return wc.db.GetContext(ctx, dest, query, args...)
}

// WithTx runs fn inside a transaction, committing when fn returns nil
func (wc *WriteClient) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	tx, err := wc.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Migrate runs schema statements in order, skipping the ones that fail because the object exists
func (wc *WriteClient) Migrate(ctx context.Context, queries []string) {
	for _, query := range queries {
		if _, err := wc.ExecuteWriteQuery(ctx, query); err != nil {
			// Ignore "already exists" errors
			continue
		}
	}
}

// Close closes the database connection
func (wc *WriteClient) Close() error {
	return wc.db.Close()
}
