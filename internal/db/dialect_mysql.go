package db

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/cmgoffena13/file-loader/internal/domain"
)

type mysqlDialect struct{}

func (mysqlDialect) Name() string       { return "mysql" }
func (mysqlDialect) DriverName() string { return "mysql" }

func (mysqlDialect) DSN(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse mysql url: %w", err)
	}
	user := parsed.User.Username()
	password, _ := parsed.User.Password()
	host := parsed.Host
	if host == "" {
		host = "localhost:3306"
	}
	database := strings.TrimPrefix(parsed.Path, "/")
	query := parsed.Query()
	// Time columns must scan into time.Time for the log and DLQ repositories.
	query.Set("parseTime", "true")

	var auth string
	if user != "" {
		auth = user
		if password != "" {
			auth += ":" + password
		}
		auth += "@"
	}
	return fmt.Sprintf("%stcp(%s)/%s?%s", auth, host, database, query.Encode()), nil
}

func (mysqlDialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (mysqlDialect) Placeholder(int) string { return "?" }

func (mysqlDialect) ColumnType(t domain.FieldType, maxLen int) string {
	switch t {
	case domain.FieldTypeInteger:
		return "BIGINT"
	case domain.FieldTypeFloat:
		return "DOUBLE"
	case domain.FieldTypeBoolean:
		return "TINYINT(1)"
	case domain.FieldTypeDate:
		return "DATE"
	case domain.FieldTypeDateTime:
		return "DATETIME(6)"
	default:
		// Strings must stay indexable for grain uniqueness, so unbounded
		// fields get a generous VARCHAR instead of TEXT.
		if maxLen > 0 {
			return fmt.Sprintf("VARCHAR(%d)", maxLen)
		}
		return "VARCHAR(512)"
	}
}

func (mysqlDialect) TextType() string         { return "TEXT" }
func (mysqlDialect) AutoIncrementPK() string  { return "BIGINT AUTO_INCREMENT PRIMARY KEY" }
func (mysqlDialect) TimestampType() string    { return "DATETIME(6)" }
func (mysqlDialect) CurrentTimestamp() string { return "CURRENT_TIMESTAMP(6)" }
func (mysqlDialect) IdentifierMaxLen() int    { return 64 }
func (mysqlDialect) MaxBindParams() int       { return 65535 }

func (mysqlDialect) TopLimit(n int) (string, string) {
	return "", fmt.Sprintf(" LIMIT %d", n)
}

func (mysqlDialect) CreateTable(name, body string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, body)
}

func (d mysqlDialect) CreateIndex(name, table string, columns []string, unique bool) string {
	// MySQL has no CREATE INDEX IF NOT EXISTS; the connection layer treats a
	// duplicate-key-name error as already-created.
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s %s ON %s (%s)",
		kind, d.QuoteIdent(name), d.QuoteIdent(table), strings.Join(quoteAll(d, columns), ", "))
}

func (d mysqlDialect) InsertReturningID(ctx context.Context, q Querier, table string, columns []string, args []any) (int64, error) {
	return execInsertReturning(ctx, q, d, table, columns, args)
}

func (d mysqlDialect) UpsertSQL(stage, target string, columns, grain, updateColumns []string) string {
	cols := quoteAll(d, columns)
	hash := d.QuoteIdent("etl_row_hash")
	updatedAt := d.QuoteIdent("etl_updated_at")
	var sets []string
	for _, col := range updateColumns {
		if col == "etl_row_hash" {
			continue
		}
		quoted := d.QuoteIdent(col)
		sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", quoted, quoted))
	}
	// The hash assignment comes last: the updated_at expression must compare
	// against the pre-update value.
	sets = append(sets,
		fmt.Sprintf("%s = IF(VALUES(%s) <> %s, %s, %s)", updatedAt, hash, hash, d.CurrentTimestamp(), updatedAt),
		fmt.Sprintf("%s = VALUES(%s)", hash, hash),
	)
	return fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s) SELECT %s, %s, %s FROM %s ON DUPLICATE KEY UPDATE %s",
		d.QuoteIdent(target),
		strings.Join(cols, ", "),
		d.QuoteIdent("etl_created_at"), updatedAt,
		strings.Join(cols, ", "),
		d.CurrentTimestamp(), d.CurrentTimestamp(),
		d.QuoteIdent(stage),
		strings.Join(sets, ", "),
	)
}

func (d mysqlDialect) DeleteLimitSQL(table, where string, n int) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s LIMIT %d", d.QuoteIdent(table), where, n)
}
