package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cmgoffena13/file-loader/internal/db"
	"github.com/cmgoffena13/file-loader/internal/domain"
	"github.com/cmgoffena13/file-loader/internal/retry"
)

var dlqColumns = []string{
	"id", "source_filename", "file_row_number", "record_data",
	"validation_errors", "file_load_log_id", "target_table_name", "failed_at",
}

// DLQRepository persists dead-letter entries and purges them on reprocessing.
type DLQRepository interface {
	InsertBatch(ctx context.Context, entries []domain.DeadLetterEntry) error
	// HasPriorEntries reports whether the file left dead letters behind in an
	// earlier run, which marks the current run as a reprocessing run.
	HasPriorEntries(ctx context.Context, fileName string, beforeLogID int64) (bool, error)
	// DeletePriorForFile removes the file's dead letters from runs older
	// than beforeLogID in bounded batches, returning the total deleted. The
	// current run's rows stay.
	DeletePriorForFile(ctx context.Context, fileName string, beforeLogID int64, batchSize int) (int64, error)
}

type dlqRepository struct {
	db  *db.DB
	log logrus.FieldLogger
}

// NewDLQRepository wires a repository backed by the shared pool.
func NewDLQRepository(database *db.DB, log logrus.FieldLogger) DLQRepository {
	return &dlqRepository{db: database, log: log}
}

func (r *dlqRepository) InsertBatch(ctx context.Context, entries []domain.DeadLetterEntry) error {
	if len(entries) == 0 {
		return nil
	}
	dialect := r.db.Dialect()

	maxRows := dialect.MaxBindParams() / len(dlqColumns)
	if maxRows < 1 {
		maxRows = 1
	}
	for start := 0; start < len(entries); start += maxRows {
		end := start + maxRows
		if end > len(entries) {
			end = len(entries)
		}
		if err := r.insertChunk(ctx, entries[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *dlqRepository) insertChunk(ctx context.Context, entries []domain.DeadLetterEntry) error {
	dialect := r.db.Dialect()

	valueRows := make([]string, len(entries))
	args := make([]any, 0, len(entries)*len(dlqColumns))
	param := 1
	for i, entry := range entries {
		recordData, err := json.Marshal(entry.RecordData)
		if err != nil {
			return fmt.Errorf("failed to serialize dead letter record data: %w", err)
		}
		validationErrors, err := json.Marshal(entry.ValidationErrors)
		if err != nil {
			return fmt.Errorf("failed to serialize dead letter errors: %w", err)
		}

		markers := make([]string, len(dlqColumns))
		for j := range dlqColumns {
			markers[j] = dialect.Placeholder(param)
			param++
		}
		valueRows[i] = "(" + strings.Join(markers, ", ") + ")"

		id := entry.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		args = append(args,
			id.String(), entry.SourceFilename, entry.FileRowNumber, string(recordData),
			string(validationErrors), entry.FileLoadLogID, entry.TargetTableName, entry.FailedAt)
	}

	quoted := make([]string, len(dlqColumns))
	for i, column := range dlqColumns {
		quoted[i] = dialect.QuoteIdent(column)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s",
		dialect.QuoteIdent(db.DLQTableName),
		strings.Join(quoted, ", "),
		strings.Join(valueRows, ", "),
	)

	err := retry.Do(ctx, r.log, "dlq insert", func() error {
		opCtx, cancel := r.db.OpContext(ctx)
		defer cancel()
		_, execErr := r.db.Pool().ExecContext(opCtx, query, args...)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert dead letter batch: %w", err)
	}
	return nil
}

func (r *dlqRepository) HasPriorEntries(ctx context.Context, fileName string, beforeLogID int64) (bool, error) {
	dialect := r.db.Dialect()
	prefix, suffix := dialect.TopLimit(1)
	query := fmt.Sprintf(
		"SELECT %s%s FROM %s WHERE %s = %s AND %s < %s%s",
		prefix, dialect.QuoteIdent("id"),
		dialect.QuoteIdent(db.DLQTableName),
		dialect.QuoteIdent("source_filename"), dialect.Placeholder(1),
		dialect.QuoteIdent("file_load_log_id"), dialect.Placeholder(2),
		suffix,
	)

	var found bool
	err := retry.Do(ctx, r.log, "dlq prior check", func() error {
		opCtx, cancel := r.db.OpContext(ctx)
		defer cancel()
		rows, queryErr := r.db.Pool().QueryContext(opCtx, query, fileName, beforeLogID)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		found = rows.Next()
		return rows.Err()
	})
	if err != nil {
		return false, fmt.Errorf("failed to check prior dead letters for %s: %w", fileName, err)
	}
	return found, nil
}

func (r *dlqRepository) DeletePriorForFile(ctx context.Context, fileName string, beforeLogID int64, batchSize int) (int64, error) {
	dialect := r.db.Dialect()
	where := fmt.Sprintf("%s = %s AND %s < %s",
		dialect.QuoteIdent("source_filename"), dialect.Placeholder(1),
		dialect.QuoteIdent("file_load_log_id"), dialect.Placeholder(2))
	query := dialect.DeleteLimitSQL(db.DLQTableName, where, batchSize)

	var total int64
	for {
		var affected int64
		err := retry.Do(ctx, r.log, "dlq delete", func() error {
			opCtx, cancel := r.db.OpContext(ctx)
			defer cancel()
			res, execErr := r.db.Pool().ExecContext(opCtx, query, fileName, beforeLogID)
			if execErr != nil {
				return execErr
			}
			affected, execErr = res.RowsAffected()
			return execErr
		})
		if err != nil {
			return total, fmt.Errorf("failed to delete dead letters for %s: %w", fileName, err)
		}
		if affected == 0 {
			return total, nil
		}
		total += affected
	}
}

// DLQWriter buffers dead-letter entries for one pipeline run and flushes
// them in batches with the same retry discipline as staging.
type DLQWriter struct {
	repo      DLQRepository
	batchSize int
	buffer    []domain.DeadLetterEntry
	written   int
}

// NewDLQWriter builds a writer for one run.
func NewDLQWriter(repo DLQRepository, batchSize int) *DLQWriter {
	return &DLQWriter{repo: repo, batchSize: batchSize}
}

// Add buffers one entry, flushing when the batch fills.
func (w *DLQWriter) Add(ctx context.Context, entry domain.DeadLetterEntry) error {
	w.buffer = append(w.buffer, entry)
	if len(w.buffer) >= w.batchSize {
		return w.Flush(ctx)
	}
	return nil
}

// Flush writes any buffered entries.
func (w *DLQWriter) Flush(ctx context.Context) error {
	if len(w.buffer) == 0 {
		return nil
	}
	batch := w.buffer
	w.buffer = nil
	if err := w.repo.InsertBatch(ctx, batch); err != nil {
		return err
	}
	w.written += len(batch)
	return nil
}

// Written returns the count of entries flushed so far.
func (w *DLQWriter) Written() int { return w.written }
