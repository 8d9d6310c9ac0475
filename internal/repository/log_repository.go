package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cmgoffena13/file-loader/internal/db"
	"github.com/cmgoffena13/file-loader/internal/domain"
	"github.com/cmgoffena13/file-loader/internal/retry"
)

// LogRepository records the per-file run rows.
type LogRepository interface {
	// Start inserts a pending row and returns its id.
	Start(ctx context.Context, fileName, sourceName, targetTable string, startedAt time.Time) (int64, error)
	// Update writes the current phase timestamps, counters and status. The
	// pipeline owns the row; updates are idempotent field writes.
	Update(ctx context.Context, log *domain.FileLoadLog) error
}

type logRepository struct {
	db  *db.DB
	log logrus.FieldLogger
}

// NewLogRepository wires a repository backed by the shared pool.
func NewLogRepository(database *db.DB, log logrus.FieldLogger) LogRepository {
	return &logRepository{db: database, log: log}
}

func (r *logRepository) Start(ctx context.Context, fileName, sourceName, targetTable string, startedAt time.Time) (int64, error) {
	dialect := r.db.Dialect()
	columns := []string{"file_name", "source_name", "target_table", "status", "started_at"}
	args := []any{fileName, sourceName, targetTable, string(domain.LoadStatusPending), startedAt}

	var id int64
	err := retry.Do(ctx, r.log, "log start", func() error {
		opCtx, cancel := r.db.OpContext(ctx)
		defer cancel()
		var insertErr error
		id, insertErr = dialect.InsertReturningID(opCtx, r.db.Pool(), db.LogTableName, columns, args)
		return insertErr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert file load log row: %w", err)
	}
	return id, nil
}

func (r *logRepository) Update(ctx context.Context, log *domain.FileLoadLog) error {
	dialect := r.db.Dialect()

	columns := []string{"status", "ended_at"}
	args := []any{string(log.Status), log.EndedAt}

	phase := func(name string, started, ended *time.Time, success *bool) {
		columns = append(columns, name+"_started_at", name+"_ended_at", name+"_success")
		args = append(args, started, ended, success)
	}
	phase("archive_copy", log.ArchiveCopyStartedAt, log.ArchiveCopyEndedAt, log.ArchiveCopySuccess)
	phase("processing", log.ProcessingStartedAt, log.ProcessingEndedAt, log.ProcessingSuccess)
	phase("stage_load", log.StageLoadStartedAt, log.StageLoadEndedAt, log.StageLoadSuccess)
	phase("audit", log.AuditStartedAt, log.AuditEndedAt, log.AuditSuccess)
	phase("merge", log.MergeStartedAt, log.MergeEndedAt, log.MergeSuccess)

	columns = append(columns,
		"records_processed", "validation_errors", "records_stage_loaded",
		"target_inserts", "target_updates", "error_type", "error_message")
	args = append(args,
		log.RecordsProcessed, log.ValidationErrors, log.RecordsStageLoaded,
		log.TargetInserts, log.TargetUpdates, nullable(log.ErrorType), nullable(log.ErrorMessage))

	sets := make([]string, len(columns))
	for i, column := range columns {
		sets[i] = fmt.Sprintf("%s = %s", dialect.QuoteIdent(column), dialect.Placeholder(i+1))
	}
	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = %s",
		dialect.QuoteIdent(db.LogTableName),
		strings.Join(sets, ", "),
		dialect.QuoteIdent("id"), dialect.Placeholder(len(columns)+1),
	)
	args = append(args, log.ID)

	err := retry.Do(ctx, r.log, "log update", func() error {
		opCtx, cancel := r.db.OpContext(ctx)
		defer cancel()
		_, execErr := r.db.Pool().ExecContext(opCtx, query, args...)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to update file load log %d: %w", log.ID, err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
