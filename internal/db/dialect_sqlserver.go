package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/cmgoffena13/file-loader/internal/domain"
)

type sqlserverDialect struct{}

func (sqlserverDialect) Name() string       { return "sqlserver" }
func (sqlserverDialect) DriverName() string { return "sqlserver" }

func (sqlserverDialect) DSN(rawURL string) (string, error) {
	// go-mssqldb accepts the sqlserver:// URL form directly.
	return strings.Replace(rawURL, "mssql://", "sqlserver://", 1), nil
}

func (sqlserverDialect) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (sqlserverDialect) Placeholder(i int) string { return fmt.Sprintf("@p%d", i) }

func (sqlserverDialect) ColumnType(t domain.FieldType, maxLen int) string {
	switch t {
	case domain.FieldTypeInteger:
		return "BIGINT"
	case domain.FieldTypeFloat:
		return "FLOAT"
	case domain.FieldTypeBoolean:
		return "BIT"
	case domain.FieldTypeDate:
		return "DATE"
	case domain.FieldTypeDateTime:
		return "DATETIME2"
	default:
		// NVARCHAR(MAX) cannot participate in an index, and grain columns
		// must; 450 keeps a multi-column unique key under the 900-byte cap.
		if maxLen > 0 {
			return fmt.Sprintf("NVARCHAR(%d)", maxLen)
		}
		return "NVARCHAR(450)"
	}
}

func (sqlserverDialect) TextType() string         { return "NVARCHAR(MAX)" }
func (sqlserverDialect) AutoIncrementPK() string  { return "BIGINT IDENTITY(1,1) PRIMARY KEY" }
func (sqlserverDialect) TimestampType() string    { return "DATETIME2" }
func (sqlserverDialect) CurrentTimestamp() string { return "SYSUTCDATETIME()" }
func (sqlserverDialect) IdentifierMaxLen() int    { return 128 }
func (sqlserverDialect) MaxBindParams() int       { return 2100 }

func (sqlserverDialect) TopLimit(n int) (string, string) {
	return fmt.Sprintf("TOP (%d) ", n), ""
}

func (sqlserverDialect) CreateTable(name, body string) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)",
		strings.ReplaceAll(name, "'", "''"), name, body)
}

func (d sqlserverDialect) CreateIndex(name, table string, columns []string, unique bool) string {
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf(
		"IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'%s' AND object_id = OBJECT_ID(N'%s')) CREATE %s %s ON %s (%s)",
		strings.ReplaceAll(name, "'", "''"), strings.ReplaceAll(table, "'", "''"),
		kind, d.QuoteIdent(name), d.QuoteIdent(table), strings.Join(quoteAll(d, columns), ", "))
}

func (d sqlserverDialect) InsertReturningID(ctx context.Context, q Querier, table string, columns []string, args []any) (int64, error) {
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) OUTPUT INSERTED.%s VALUES (%s)",
		d.QuoteIdent(table),
		strings.Join(quoteAll(d, columns), ", "),
		d.QuoteIdent("id"),
		placeholders(d, 1, len(columns)),
	)
	var id int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (d sqlserverDialect) UpsertSQL(stage, target string, columns, grain, updateColumns []string) string {
	now := d.CurrentTimestamp()
	var on []string
	for _, col := range grain {
		quoted := d.QuoteIdent(col)
		on = append(on, fmt.Sprintf("t.%s = s.%s", quoted, quoted))
	}
	var sets []string
	for _, col := range updateColumns {
		quoted := d.QuoteIdent(col)
		sets = append(sets, fmt.Sprintf("t.%s = s.%s", quoted, quoted))
	}
	sets = append(sets, fmt.Sprintf("t.%s = %s", d.QuoteIdent("etl_updated_at"), now))
	cols := quoteAll(d, columns)
	var sourceCols []string
	for _, col := range cols {
		sourceCols = append(sourceCols, "s."+col)
	}
	hash := d.QuoteIdent("etl_row_hash")
	return fmt.Sprintf(
		"MERGE %s AS t USING %s AS s ON %s "+
			"WHEN MATCHED AND t.%s <> s.%s THEN UPDATE SET %s "+
			"WHEN NOT MATCHED THEN INSERT (%s, %s, %s) VALUES (%s, %s, %s);",
		d.QuoteIdent(target), d.QuoteIdent(stage), strings.Join(on, " AND "),
		hash, hash, strings.Join(sets, ", "),
		strings.Join(cols, ", "), d.QuoteIdent("etl_created_at"), d.QuoteIdent("etl_updated_at"),
		strings.Join(sourceCols, ", "), now, now,
	)
}

func (d sqlserverDialect) DeleteLimitSQL(table, where string, n int) string {
	return fmt.Sprintf("DELETE TOP (%d) FROM %s WHERE %s", n, d.QuoteIdent(table), where)
}
