package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cmgoffena13/file-loader/internal/db"
	"github.com/cmgoffena13/file-loader/internal/domain"
	"github.com/cmgoffena13/file-loader/internal/retry"
)

const duplicateExampleLimit = 5

// Auditor runs the two read-only gates against a populated stage table:
// grain uniqueness first, then the source's audit query.
type Auditor struct {
	db  *db.DB
	log logrus.FieldLogger
}

// NewAuditor wires an auditor backed by the shared pool.
func NewAuditor(database *db.DB, log logrus.FieldLogger) *Auditor {
	return &Auditor{db: database, log: log}
}

// VerifyGrain fails when the stage table holds duplicate grain tuples,
// reporting the duplicate count and example tuples aliased back to source
// column names.
func (a *Auditor) VerifyGrain(ctx context.Context, src domain.Source, stageName string) error {
	dialect := a.db.Dialect()
	grain := strings.Join(quotedNames(dialect, src.Grain), ", ")
	stage := dialect.QuoteIdent(stageName)

	query := fmt.Sprintf(
		"SELECT (SELECT COUNT(*) FROM %s) - (SELECT COUNT(*) FROM (SELECT DISTINCT %s FROM %s) AS %s) AS %s",
		stage, grain, stage, dialect.QuoteIdent("distinct_grains"), dialect.QuoteIdent("duplicates"),
	)

	var duplicates int64
	err := retry.Do(ctx, a.log, "grain audit", func() error {
		opCtx, cancel := a.db.OpContext(ctx)
		defer cancel()
		return a.db.Pool().QueryRowContext(opCtx, query).Scan(&duplicates)
	})
	if err != nil {
		return fmt.Errorf("failed to verify grain on %s: %w", stageName, err)
	}
	if duplicates == 0 {
		return nil
	}

	examples := a.duplicateExamples(ctx, src, stageName)
	grainAliases := make([]string, len(src.Grain))
	for i, field := range src.Grain {
		grainAliases[i] = src.AliasFor(field)
	}
	msg := fmt.Sprintf("%d duplicate grain rows in %s; grain columns: %s",
		duplicates, stageName, strings.Join(grainAliases, ", "))
	if len(examples) > 0 {
		msg += "; examples: " + strings.Join(examples, "; ")
	}
	return fmt.Errorf("%w: %s", domain.ErrGrainDuplicates, msg)
}

func (a *Auditor) duplicateExamples(ctx context.Context, src domain.Source, stageName string) []string {
	dialect := a.db.Dialect()
	grain := strings.Join(quotedNames(dialect, src.Grain), ", ")
	prefix, suffix := dialect.TopLimit(duplicateExampleLimit)
	query := fmt.Sprintf(
		"SELECT %s%s, COUNT(*) AS %s FROM %s GROUP BY %s HAVING COUNT(*) > 1%s",
		prefix, grain, dialect.QuoteIdent("duplicate_count"),
		dialect.QuoteIdent(stageName), grain, suffix,
	)

	opCtx, cancel := a.db.OpContext(ctx)
	defer cancel()
	rows, err := a.db.Pool().QueryContext(opCtx, query)
	if err != nil {
		a.log.WithError(err).Warn("failed to fetch duplicate grain examples")
		return nil
	}
	defer rows.Close()

	var examples []string
	for rows.Next() {
		values := make([]any, len(src.Grain)+1)
		holders := make([]any, len(values))
		for i := range values {
			holders[i] = &values[i]
		}
		if err := rows.Scan(holders...); err != nil {
			a.log.WithError(err).Warn("failed to scan duplicate grain example")
			return examples
		}
		parts := make([]string, 0, len(values))
		for i, field := range src.Grain {
			parts = append(parts, fmt.Sprintf("%s: %v", src.AliasFor(field), scanned(values[i])))
		}
		parts = append(parts, fmt.Sprintf("duplicate_count: %v", scanned(values[len(values)-1])))
		examples = append(examples, strings.Join(parts, ", "))
	}
	return examples
}

// RunUserAudit substitutes {table} with the stage name, executes the audit
// query and requires exactly one row where every column evaluates to 1.
func (a *Auditor) RunUserAudit(ctx context.Context, src domain.Source, stageName string) error {
	if strings.TrimSpace(src.AuditQuery) == "" {
		return nil
	}
	dialect := a.db.Dialect()
	query := strings.ReplaceAll(src.AuditQuery, "{table}", dialect.QuoteIdent(stageName))

	var failed []string
	err := retry.Do(ctx, a.log, "user audit", func() error {
		opCtx, cancel := a.db.OpContext(ctx)
		defer cancel()

		rows, queryErr := a.db.Pool().QueryContext(opCtx, query)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		if !rows.Next() {
			return fmt.Errorf("%w: audit query for %s returned no rows", domain.ErrAuditFailed, stageName)
		}
		columns, colErr := rows.Columns()
		if colErr != nil {
			return colErr
		}
		values := make([]any, len(columns))
		holders := make([]any, len(columns))
		for i := range values {
			holders[i] = &values[i]
		}
		if scanErr := rows.Scan(holders...); scanErr != nil {
			return scanErr
		}
		if rows.Next() {
			return fmt.Errorf("%w: audit query for %s returned more than one row", domain.ErrAuditFailed, stageName)
		}

		failed = failed[:0]
		for i, column := range columns {
			pass, ok := auditFlag(values[i])
			if !ok {
				return fmt.Errorf("%w: audit column %s is not a 0/1 flag", domain.ErrAuditFailed, column)
			}
			if !pass {
				failed = append(failed, column)
			}
		}
		return rows.Err()
	})
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return fmt.Errorf("%w: failed audits on %s: %s",
			domain.ErrAuditFailed, stageName, strings.Join(failed, ", "))
	}
	return nil
}

// auditFlag interprets a result cell as a pass/fail bit across driver
// representations.
func auditFlag(value any) (pass bool, ok bool) {
	switch v := value.(type) {
	case int64:
		return v == 1, v == 0 || v == 1
	case bool:
		return v, true
	case []byte:
		return auditFlagString(string(v))
	case string:
		return auditFlagString(v)
	case float64:
		return v == 1, v == 0 || v == 1
	}
	return false, false
}

func auditFlagString(s string) (bool, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return false, false
	}
	return n == 1, n == 0 || n == 1
}

func scanned(value any) any {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}

func quotedNames(d db.Dialect, names []string) []string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = d.QuoteIdent(name)
	}
	return quoted
}
