package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cmgoffena13/file-loader/internal/db"
	"github.com/cmgoffena13/file-loader/internal/domain"
	"github.com/cmgoffena13/file-loader/internal/retry"
)

// TargetRepository covers the target-table operations: the early duplicate
// file check and the idempotent merge from stage.
type TargetRepository struct {
	db  *db.DB
	log logrus.FieldLogger
}

// NewTargetRepository wires a repository backed by the shared pool.
func NewTargetRepository(database *db.DB, log logrus.FieldLogger) *TargetRepository {
	return &TargetRepository{db: database, log: log}
}

// HasFile reports whether the target already holds rows for the file.
func (r *TargetRepository) HasFile(ctx context.Context, tableName, fileName string) (bool, error) {
	dialect := r.db.Dialect()
	prefix, suffix := dialect.TopLimit(1)
	query := fmt.Sprintf(
		"SELECT %s1 FROM %s WHERE %s = %s%s",
		prefix, dialect.QuoteIdent(tableName),
		dialect.QuoteIdent("source_filename"), dialect.Placeholder(1),
		suffix,
	)

	var found bool
	err := retry.Do(ctx, r.log, "duplicate file check", func() error {
		opCtx, cancel := r.db.OpContext(ctx)
		defer cancel()
		var one int
		scanErr := r.db.Pool().QueryRowContext(opCtx, query, fileName).Scan(&one)
		if scanErr == sql.ErrNoRows {
			found = false
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check for duplicate file %s in %s: %w", fileName, tableName, err)
	}
	return found, nil
}

// Merge upserts every stage row into the target keyed on grain, inside one
// transaction. It returns the insert and update counters: unmatched stage
// rows insert; matched rows count as updates only when the row hash changed.
func (r *TargetRepository) Merge(ctx context.Context, src domain.Source, stageName string, staged int) (inserts, updates int, err error) {
	dialect := r.db.Dialect()

	columns := make([]string, 0, len(src.Fields)+2)
	for _, field := range src.Fields {
		columns = append(columns, field.Name)
	}
	columns = append(columns, "source_filename", "etl_row_hash")

	grainSet := src.GrainSet()
	var updateColumns []string
	for _, column := range columns {
		if _, isGrain := grainSet[column]; !isGrain {
			updateColumns = append(updateColumns, column)
		}
	}

	var joins []string
	for _, field := range src.Grain {
		quoted := dialect.QuoteIdent(field)
		joins = append(joins, fmt.Sprintf("target.%s = stage.%s", quoted, quoted))
	}
	joinCondition := strings.Join(joins, " AND ")
	stage := dialect.QuoteIdent(stageName)
	target := dialect.QuoteIdent(src.TableName)
	hash := dialect.QuoteIdent("etl_row_hash")

	matchedSQL := fmt.Sprintf(
		"SELECT COUNT(*) FROM %s AS stage WHERE EXISTS (SELECT 1 FROM %s AS target WHERE %s)",
		stage, target, joinCondition,
	)
	changedSQL := fmt.Sprintf(
		"SELECT COUNT(*) FROM %s AS stage WHERE EXISTS (SELECT 1 FROM %s AS target WHERE %s AND stage.%s <> target.%s)",
		stage, target, joinCondition, hash, hash,
	)
	upsertSQL := dialect.UpsertSQL(stageName, src.TableName, columns, src.Grain, updateColumns)

	err = retry.Do(ctx, r.log, "merge", func() error {
		opCtx, cancel := r.db.OpContext(ctx)
		defer cancel()
		return r.db.WithTx(opCtx, func(tx *sql.Tx) error {
			var matched, changed int
			if scanErr := tx.QueryRowContext(opCtx, matchedSQL).Scan(&matched); scanErr != nil {
				return scanErr
			}
			if scanErr := tx.QueryRowContext(opCtx, changedSQL).Scan(&changed); scanErr != nil {
				return scanErr
			}
			if _, execErr := tx.ExecContext(opCtx, upsertSQL); execErr != nil {
				return execErr
			}
			inserts = staged - matched
			updates = changed
			return nil
		})
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to merge %s into %s: %w", stageName, src.TableName, err)
	}
	return inserts, updates, nil
}
