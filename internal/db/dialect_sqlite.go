package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/cmgoffena13/file-loader/internal/domain"
)

// sqliteDialect backs the test environment, mirroring the dev/test split of
// the deployment configs.
type sqliteDialect struct{}

func (sqliteDialect) Name() string       { return "sqlite" }
func (sqliteDialect) DriverName() string { return "sqlite3" }

func (sqliteDialect) DSN(rawURL string) (string, error) {
	trimmed := strings.TrimPrefix(rawURL, "sqlite3://")
	trimmed = strings.TrimPrefix(trimmed, "sqlite://")
	if trimmed == "" {
		return ":memory:", nil
	}
	return trimmed, nil
}

func (sqliteDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) ColumnType(t domain.FieldType, maxLen int) string {
	switch t {
	case domain.FieldTypeInteger:
		return "INTEGER"
	case domain.FieldTypeFloat:
		return "REAL"
	case domain.FieldTypeBoolean:
		return "BOOLEAN"
	case domain.FieldTypeDate:
		return "DATE"
	case domain.FieldTypeDateTime:
		return "DATETIME"
	default:
		return "TEXT"
	}
}

func (sqliteDialect) TextType() string         { return "TEXT" }
func (sqliteDialect) AutoIncrementPK() string  { return "INTEGER PRIMARY KEY AUTOINCREMENT" }
func (sqliteDialect) TimestampType() string    { return "DATETIME" }
func (sqliteDialect) CurrentTimestamp() string { return "CURRENT_TIMESTAMP" }
func (sqliteDialect) IdentifierMaxLen() int    { return 128 }
func (sqliteDialect) MaxBindParams() int       { return 32766 }

func (sqliteDialect) TopLimit(n int) (string, string) {
	return "", fmt.Sprintf(" LIMIT %d", n)
}

func (sqliteDialect) CreateTable(name, body string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, body)
}

func (d sqliteDialect) CreateIndex(name, table string, columns []string, unique bool) string {
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
		kind, d.QuoteIdent(name), d.QuoteIdent(table), strings.Join(quoteAll(d, columns), ", "))
}

func (d sqliteDialect) InsertReturningID(ctx context.Context, q Querier, table string, columns []string, args []any) (int64, error) {
	return execInsertReturning(ctx, q, d, table, columns, args)
}

func (d sqliteDialect) UpsertSQL(stage, target string, columns, grain, updateColumns []string) string {
	quotedTarget := d.QuoteIdent(target)
	cols := quoteAll(d, columns)
	var sets []string
	for _, col := range updateColumns {
		quoted := d.QuoteIdent(col)
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", quoted, quoted))
	}
	sets = append(sets, fmt.Sprintf("%s = %s", d.QuoteIdent("etl_updated_at"), d.CurrentTimestamp()))
	return fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s) SELECT %s, %s, %s FROM %s WHERE true ON CONFLICT (%s) DO UPDATE SET %s WHERE %s.%s <> EXCLUDED.%s",
		quotedTarget,
		strings.Join(cols, ", "),
		d.QuoteIdent("etl_created_at"), d.QuoteIdent("etl_updated_at"),
		strings.Join(cols, ", "),
		d.CurrentTimestamp(), d.CurrentTimestamp(),
		d.QuoteIdent(stage),
		strings.Join(quoteAll(d, grain), ", "),
		strings.Join(sets, ", "),
		quotedTarget, d.QuoteIdent("etl_row_hash"), d.QuoteIdent("etl_row_hash"),
	)
}

func (d sqliteDialect) DeleteLimitSQL(table, where string, n int) string {
	quoted := d.QuoteIdent(table)
	return fmt.Sprintf(
		"DELETE FROM %s WHERE %s IN (SELECT %s FROM %s WHERE %s LIMIT %d)",
		quoted, d.QuoteIdent("id"), d.QuoteIdent("id"), quoted, where, n,
	)
}
