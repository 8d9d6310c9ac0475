package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Database drivers registered for the supported dialect families.
	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the process-wide connection pool together with the dialect
// selected from the connection URL. Each operation checks out a connection
// for its duration; no connection is shared across goroutines.
type DB struct {
	pool    *sql.DB
	dialect Dialect
	timeout time.Duration
}

// Connect opens a pooled connection for the given DATABASE_URL and verifies
// it with a ping. timeout bounds every individual database call issued
// through OpContext; zero means no per-call timeout.
func Connect(ctx context.Context, databaseURL string, timeout time.Duration) (*DB, error) {
	dialect, err := DialectForURL(databaseURL)
	if err != nil {
		return nil, err
	}
	dsn, err := dialect.DSN(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pool.SetMaxOpenConns(20)
	pool.SetMaxIdleConns(5)
	pool.SetConnMaxLifetime(30 * time.Minute)
	pool.SetConnMaxIdleTime(5 * time.Minute)
	if dialect.Name() == "sqlite" {
		// A shared in-memory database disappears when its last connection
		// closes; a single connection also sidesteps writer contention.
		pool.SetMaxOpenConns(1)
	}

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{pool: pool, dialect: dialect, timeout: timeout}, nil
}

// Pool exposes the underlying database/sql pool.
func (db *DB) Pool() *sql.DB { return db.pool }

// Dialect returns the dialect selected at connect time.
func (db *DB) Dialect() Dialect { return db.dialect }

// OpContext derives the per-call context with the configured timeout.
func (db *DB) OpContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, db.timeout)
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// WithTx executes fn within a transaction, rolling back on error or panic.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ExecIgnoreExisting runs DDL and swallows already-exists errors, covering
// dialects without IF NOT EXISTS on index creation.
func (db *DB) ExecIgnoreExisting(ctx context.Context, query string) error {
	opCtx, cancel := db.OpContext(ctx)
	defer cancel()
	if _, err := db.pool.ExecContext(opCtx, query); err != nil {
		if isAlreadyExists(err) {
			return nil
		}
		return err
	}
	return nil
}

func isAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "duplicate key name") ||
		strings.Contains(msg, "there is already an object")
}
