package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/cmgoffena13/file-loader/internal/domain"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect abstracts the SQL differences between supported database families.
// Everything the loader emits — DDL, batched inserts, the idempotent merge,
// audit queries — goes through this contract.
type Dialect interface {
	Name() string
	DriverName() string
	// DSN converts the configured DATABASE_URL into the driver's DSN form.
	DSN(rawURL string) (string, error)
	QuoteIdent(name string) string
	// Placeholder returns the 1-based bind parameter marker.
	Placeholder(i int) string
	ColumnType(t domain.FieldType, maxLen int) string
	TextType() string
	AutoIncrementPK() string
	TimestampType() string
	CurrentTimestamp() string
	IdentifierMaxLen() int
	// MaxBindParams caps the bind parameters per statement; batched inserts
	// split into chunks that respect it.
	MaxBindParams() int
	// TopLimit returns the prefix/suffix pair that limits a SELECT to n rows.
	TopLimit(n int) (prefix string, suffix string)
	CreateTable(name string, body string) string
	CreateIndex(name, table string, columns []string, unique bool) string
	// InsertReturningID inserts one row and returns the generated key.
	InsertReturningID(ctx context.Context, q Querier, table string, columns []string, args []any) (int64, error)
	// UpsertSQL builds the single-statement idempotent merge from stage into
	// target keyed on grain. columns excludes the etl timestamp columns;
	// updateColumns excludes the grain.
	UpsertSQL(stage, target string, columns, grain, updateColumns []string) string
	// DeleteLimitSQL builds a bounded delete for the batched DLQ cleanup
	// loop. where is a prepared predicate using this dialect's placeholders.
	DeleteLimitSQL(table, where string, n int) string
}

// DialectForURL selects a dialect from the connection URL scheme.
func DialectForURL(rawURL string) (Dialect, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgresDialect{}, nil
	case "mysql":
		return mysqlDialect{}, nil
	case "sqlserver", "mssql":
		return sqlserverDialect{}, nil
	case "sqlite", "sqlite3":
		return sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported database url scheme %q", parsed.Scheme)
	}
}

func placeholders(d Dialect, start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = d.Placeholder(start + i)
	}
	return strings.Join(parts, ", ")
}

func quoteAll(d Dialect, names []string) []string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = d.QuoteIdent(name)
	}
	return quoted
}

func execInsertReturning(ctx context.Context, q Querier, d Dialect, table string, columns []string, args []any) (int64, error) {
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteIdent(table),
		strings.Join(quoteAll(d, columns), ", "),
		placeholders(d, 1, len(columns)),
	)
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
