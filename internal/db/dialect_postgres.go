package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/cmgoffena13/file-loader/internal/domain"
)

type postgresDialect struct{}

func (postgresDialect) Name() string       { return "postgres" }
func (postgresDialect) DriverName() string { return "pgx" }

func (postgresDialect) DSN(rawURL string) (string, error) {
	// pgx accepts the postgres:// URL form directly.
	return rawURL, nil
}

func (postgresDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (postgresDialect) Placeholder(i int) string { return fmt.Sprintf("$%d", i) }

func (postgresDialect) ColumnType(t domain.FieldType, maxLen int) string {
	switch t {
	case domain.FieldTypeInteger:
		return "BIGINT"
	case domain.FieldTypeFloat:
		return "DOUBLE PRECISION"
	case domain.FieldTypeBoolean:
		return "BOOLEAN"
	case domain.FieldTypeDate:
		return "DATE"
	case domain.FieldTypeDateTime:
		return "TIMESTAMPTZ"
	default:
		if maxLen > 0 {
			return fmt.Sprintf("VARCHAR(%d)", maxLen)
		}
		return "TEXT"
	}
}

func (postgresDialect) TextType() string         { return "TEXT" }
func (postgresDialect) AutoIncrementPK() string  { return "BIGSERIAL PRIMARY KEY" }
func (postgresDialect) TimestampType() string    { return "TIMESTAMPTZ" }
func (postgresDialect) CurrentTimestamp() string { return "CURRENT_TIMESTAMP" }
func (postgresDialect) IdentifierMaxLen() int    { return 63 }
func (postgresDialect) MaxBindParams() int       { return 65535 }

func (postgresDialect) TopLimit(n int) (string, string) {
	return "", fmt.Sprintf(" LIMIT %d", n)
}

func (postgresDialect) CreateTable(name, body string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, body)
}

func (d postgresDialect) CreateIndex(name, table string, columns []string, unique bool) string {
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
		kind, d.QuoteIdent(name), d.QuoteIdent(table), strings.Join(quoteAll(d, columns), ", "))
}

func (d postgresDialect) InsertReturningID(ctx context.Context, q Querier, table string, columns []string, args []any) (int64, error) {
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		d.QuoteIdent(table),
		strings.Join(quoteAll(d, columns), ", "),
		placeholders(d, 1, len(columns)),
	)
	var id int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (d postgresDialect) UpsertSQL(stage, target string, columns, grain, updateColumns []string) string {
	quotedTarget := d.QuoteIdent(target)
	cols := quoteAll(d, columns)
	var sets []string
	for _, col := range updateColumns {
		quoted := d.QuoteIdent(col)
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", quoted, quoted))
	}
	sets = append(sets, fmt.Sprintf("%s = %s", d.QuoteIdent("etl_updated_at"), d.CurrentTimestamp()))
	return fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s) SELECT %s, %s, %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s WHERE %s.%s <> EXCLUDED.%s",
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

func (d postgresDialect) DeleteLimitSQL(table, where string, n int) string {
	quoted := d.QuoteIdent(table)
	return fmt.Sprintf(
		"DELETE FROM %s WHERE %s IN (SELECT %s FROM %s WHERE %s LIMIT %d)",
		quoted, d.QuoteIdent("id"), d.QuoteIdent("id"), quoted, where, n,
	)
}
