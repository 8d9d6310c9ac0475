package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/cmgoffena13/file-loader/internal/db"
	"github.com/cmgoffena13/file-loader/internal/domain"
	"github.com/cmgoffena13/file-loader/internal/notify"
	"github.com/cmgoffena13/file-loader/internal/repository"
	"github.com/cmgoffena13/file-loader/internal/sources"
)

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu       sync.Mutex
	problems []notify.FileProblem
	internal []notify.InternalError
}

func (n *recordingNotifier) NotifyFileProblem(_ context.Context, problem notify.FileProblem) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.problems = append(n.problems, problem)
}

func (n *recordingNotifier) NotifyInternal(_ context.Context, internal notify.InternalError) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.internal = append(n.internal, internal)
}

type harness struct {
	db        *db.DB
	processor *Processor
	notifier  *recordingNotifier
	watchDir  string
	archive   string
	dupes     string
}

func widgetsSource(threshold float64) domain.Source {
	return domain.Source{
		Name:                     "widgets",
		FilePattern:              "widgets_*.csv",
		Type:                     domain.SourceTypeCSV,
		TableName:                "widgets",
		Grain:                    []string{"id"},
		ValidationErrorThreshold: threshold,
		NotificationEmails:       []string{"widgets-team@example.com"},
		Fields: []domain.FieldDefinition{
			{Name: "id", Type: domain.FieldTypeInteger, Required: true},
			{Name: "name", Type: domain.FieldTypeString},
		},
	}
}

func newHarness(t *testing.T, srcs ...domain.Source) *harness {
	t.Helper()
	ctx := context.Background()

	database, err := db.Connect(ctx, "sqlite://:memory:", 0)
	require.NoError(t, err)
	t.Cleanup(database.Close)

	registry, err := sources.NewRegistry(srcs...)
	require.NoError(t, err)

	dialect := database.Dialect()
	statements := []string{db.LogTableSQL(dialect), db.DLQTableSQL(dialect)}
	statements = append(statements, db.DLQIndexSQL(dialect)...)
	for _, src := range srcs {
		statements = append(statements, db.TargetTableSQL(dialect, src))
		statements = append(statements, db.TargetIndexSQL(dialect, src)...)
	}
	for _, statement := range statements {
		require.NoError(t, database.ExecIgnoreExisting(ctx, statement))
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	notifier := &recordingNotifier{}
	base := t.TempDir()
	h := &harness{
		db:       database,
		notifier: notifier,
		watchDir: filepath.Join(base, "incoming"),
		archive:  filepath.Join(base, "archive"),
		dupes:    filepath.Join(base, "duplicates"),
	}
	require.NoError(t, os.MkdirAll(h.watchDir, 0o755))

	h.processor = NewProcessor(
		registry, database,
		repository.NewLogRepository(database, log),
		repository.NewDLQRepository(database, log),
		repository.NewTargetRepository(database, log),
		repository.NewAuditor(database, log),
		notifier, log,
		h.archive, h.dupes, 100)
	return h
}

func (h *harness) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.watchDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (h *harness) countRows(t *testing.T, query string, args ...any) int {
	t.Helper()
	var count int
	require.NoError(t, h.db.Pool().QueryRowContext(context.Background(), query, args...).Scan(&count))
	return count
}

type logRow struct {
	status                                                string
	processed, validationErrors, staged, inserts, updates int
	errorType                                             string
}

func (h *harness) loadLog(t *testing.T, id int64) logRow {
	t.Helper()
	var row logRow
	var processed, validationErrors, staged, inserts, updates *int
	var errorType *string
	require.NoError(t, h.db.Pool().QueryRowContext(context.Background(),
		`SELECT "status", "records_processed", "validation_errors", "records_stage_loaded",
		 "target_inserts", "target_updates", "error_type" FROM "file_load_log" WHERE "id" = ?`, id).
		Scan(&row.status, &processed, &validationErrors, &staged, &inserts, &updates, &errorType))
	deref := func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	}
	row.processed = deref(processed)
	row.validationErrors = deref(validationErrors)
	row.staged = deref(staged)
	row.inserts = deref(inserts)
	row.updates = deref(updates)
	if errorType != nil {
		row.errorType = *errorType
	}
	return row
}

func TestPipelineSuccessfulLoad(t *testing.T) {
	h := newHarness(t, widgetsSource(0))
	path := h.writeFile(t, "widgets_ok.csv", "id,name\n1,a\n2,b\n3,c\n")

	result := h.processor.ProcessFile(context.Background(), path)
	require.Equal(t, domain.LoadStatusSuccess, result.Status)

	require.Equal(t, 3, h.countRows(t, `SELECT COUNT(*) FROM "widgets"`))

	row := h.loadLog(t, result.LogID)
	require.Equal(t, "success", row.status)
	require.Equal(t, 3, row.processed)
	require.Equal(t, 0, row.validationErrors)
	require.Equal(t, 3, row.staged)
	require.Equal(t, 3, row.inserts)
	require.Equal(t, 0, row.updates)

	// Source deleted, archive kept, stage gone.
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(h.archive, "widgets_ok.csv"))
	require.NoError(t, err)
	var one int
	require.Error(t, h.db.Pool().QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM "stage_widgets_ok_csv"`).Scan(&one))
	require.Empty(t, h.notifier.problems)
	require.Empty(t, h.notifier.internal)
}

func TestPipelinePartialLoadRoutesBadRowToDLQ(t *testing.T) {
	h := newHarness(t, widgetsSource(0.5))
	path := h.writeFile(t, "widgets_partial.csv", "id,name\n1,a\nx,b\n3,c\n")

	result := h.processor.ProcessFile(context.Background(), path)
	require.Equal(t, domain.LoadStatusSuccess, result.Status)

	require.Equal(t, 2, h.countRows(t, `SELECT COUNT(*) FROM "widgets"`))
	require.Equal(t, 1, h.countRows(t,
		`SELECT COUNT(*) FROM "file_load_dlq" WHERE "source_filename" = 'widgets_partial.csv' AND "file_row_number" = 2`))
	require.Equal(t, 1, h.countRows(t,
		`SELECT COUNT(*) FROM "file_load_dlq" WHERE "validation_errors" LIKE '%int_parsing%'`))

	row := h.loadLog(t, result.LogID)
	require.Equal(t, "success", row.status)
	require.Equal(t, 3, row.processed)
	require.Equal(t, 1, row.validationErrors)
	require.Equal(t, 2, row.staged)
}

func TestPipelineThresholdExceeded(t *testing.T) {
	h := newHarness(t, widgetsSource(0.1))
	path := h.writeFile(t, "widgets_overrun.csv", "id,name\n1,a\nx,b\ny,c\nz,d\n")

	result := h.processor.ProcessFile(context.Background(), path)
	require.Equal(t, domain.LoadStatusFailed, result.Status)
	require.Equal(t, "Validation Threshold Exceeded", result.ErrorType)

	require.Equal(t, 0, h.countRows(t, `SELECT COUNT(*) FROM "widgets"`))
	// Dead letters document the failure and survive the stage drop.
	require.Equal(t, 3, h.countRows(t,
		`SELECT COUNT(*) FROM "file_load_dlq" WHERE "source_filename" = 'widgets_overrun.csv'`))

	// Failed files stay in the watch directory.
	_, err := os.Stat(path)
	require.NoError(t, err)

	var one int
	require.Error(t, h.db.Pool().QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM "stage_widgets_overrun_csv"`).Scan(&one))

	require.Len(t, h.notifier.problems, 1)
	require.Equal(t, "Validation Threshold Exceeded", h.notifier.problems[0].ErrorType)
	require.Equal(t, []string{"widgets-team@example.com"}, h.notifier.problems[0].Recipients)
}

func TestPipelineThresholdExactlyMetSucceeds(t *testing.T) {
	h := newHarness(t, widgetsSource(0.25))
	path := h.writeFile(t, "widgets_edge.csv", "id,name\n1,a\nx,b\n3,c\n4,d\n")

	result := h.processor.ProcessFile(context.Background(), path)
	require.Equal(t, domain.LoadStatusSuccess, result.Status)
	require.Equal(t, 3, h.countRows(t, `SELECT COUNT(*) FROM "widgets"`))
}

func TestPipelineGrainDuplicates(t *testing.T) {
	h := newHarness(t, widgetsSource(0))
	path := h.writeFile(t, "widgets_dupkey.csv", "id,name\n1,a\n1,b\n")

	result := h.processor.ProcessFile(context.Background(), path)
	require.Equal(t, domain.LoadStatusFailed, result.Status)
	require.Equal(t, "Grain Validation Failed", result.ErrorType)

	require.Equal(t, 0, h.countRows(t, `SELECT COUNT(*) FROM "widgets"`))
	row := h.loadLog(t, result.LogID)
	require.Equal(t, "failed", row.status)
	require.Equal(t, "Grain Validation Failed", row.errorType)
	require.Len(t, h.notifier.problems, 1)
}

func TestPipelineUserAuditFailure(t *testing.T) {
	src := widgetsSource(0)
	src.AuditQuery = `SELECT CASE WHEN SUM(CASE WHEN id < 100 THEN 1 ELSE 0 END) = COUNT(*) THEN 1 ELSE 0 END AS id_under_100 FROM {table}`
	h := newHarness(t, src)
	path := h.writeFile(t, "widgets_audit.csv", "id,name\n1,a\n500,b\n")

	result := h.processor.ProcessFile(context.Background(), path)
	require.Equal(t, domain.LoadStatusFailed, result.Status)
	require.Equal(t, "Audit Failed", result.ErrorType)
	require.Contains(t, result.ErrorMessage, "id_under_100")
	require.Equal(t, 0, h.countRows(t, `SELECT COUNT(*) FROM "widgets"`))
}

func TestPipelineMissingColumns(t *testing.T) {
	h := newHarness(t, widgetsSource(0))
	path := h.writeFile(t, "widgets_cols.csv", "identifier,name\n1,a\n")

	result := h.processor.ProcessFile(context.Background(), path)
	require.Equal(t, domain.LoadStatusFailed, result.Status)
	require.Equal(t, "Missing Columns", result.ErrorType)
	require.Len(t, h.notifier.problems, 1)
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestPipelineEmptyFileAfterHeaderSucceeds(t *testing.T) {
	h := newHarness(t, widgetsSource(0))
	path := h.writeFile(t, "widgets_empty.csv", "id,name\n")

	result := h.processor.ProcessFile(context.Background(), path)
	require.Equal(t, domain.LoadStatusSuccess, result.Status)

	row := h.loadLog(t, result.LogID)
	require.Equal(t, 0, row.processed)
	require.Equal(t, 0, row.staged)
	require.Equal(t, 0, row.inserts)
}

func TestPipelineDuplicateFileSkipped(t *testing.T) {
	h := newHarness(t, widgetsSource(0))
	path := h.writeFile(t, "widgets_ok.csv", "id,name\n1,a\n2,b\n3,c\n")

	first := h.processor.ProcessFile(context.Background(), path)
	require.Equal(t, domain.LoadStatusSuccess, first.Status)

	// Restore the archived copy into the watch directory, as an operator
	// reprocessing would.
	restored := h.writeFile(t, "widgets_ok.csv", "id,name\n1,a\n2,b\n3,c\n")
	second := h.processor.ProcessFile(context.Background(), restored)
	require.Equal(t, domain.LoadStatusDuplicateSkipped, second.Status)

	require.Equal(t, 3, h.countRows(t, `SELECT COUNT(*) FROM "widgets"`))
	require.Equal(t, "duplicate-skipped", h.loadLog(t, second.LogID).status)

	_, err := os.Stat(filepath.Join(h.dupes, "widgets_ok.csv"))
	require.NoError(t, err)
	_, err = os.Stat(restored)
	require.True(t, os.IsNotExist(err))

	require.Len(t, h.notifier.problems, 1)
	require.Equal(t, "Duplicate File Detected", h.notifier.problems[0].ErrorType)
}

func TestPipelineMergeIsIdempotentAcrossFiles(t *testing.T) {
	h := newHarness(t, widgetsSource(0))

	first := h.processor.ProcessFile(context.Background(),
		h.writeFile(t, "widgets_a.csv", "id,name\n1,a\n2,b\n"))
	require.Equal(t, domain.LoadStatusSuccess, first.Status)

	// A second file carrying identical rows merges to zero inserts and zero
	// updates: the row hash marks them unchanged.
	second := h.processor.ProcessFile(context.Background(),
		h.writeFile(t, "widgets_b.csv", "id,name\n1,a\n2,b\n"))
	require.Equal(t, domain.LoadStatusSuccess, second.Status)

	row := h.loadLog(t, second.LogID)
	require.Equal(t, 0, row.inserts)
	require.Equal(t, 0, row.updates)
	require.Equal(t, 2, h.countRows(t, `SELECT COUNT(*) FROM "widgets"`))
}

func TestPipelineReprocessingDeletesPriorDeadLetters(t *testing.T) {
	h := newHarness(t, widgetsSource(0.5))
	ctx := context.Background()

	first := h.processor.ProcessFile(ctx,
		h.writeFile(t, "widgets_p.csv", "id,name\n1,a\nx,b\n"))
	require.Equal(t, domain.LoadStatusSuccess, first.Status)
	require.Equal(t, 1, h.countRows(t, `SELECT COUNT(*) FROM "file_load_dlq"`))

	// Operator clears the target rows and restores the file.
	_, err := h.db.Pool().ExecContext(ctx, `DELETE FROM "widgets" WHERE "source_filename" = 'widgets_p.csv'`)
	require.NoError(t, err)
	second := h.processor.ProcessFile(ctx,
		h.writeFile(t, "widgets_p.csv", "id,name\n1,a\nx,b\n"))
	require.Equal(t, domain.LoadStatusSuccess, second.Status)

	// Only the new run's dead letter remains.
	require.Equal(t, 1, h.countRows(t, `SELECT COUNT(*) FROM "file_load_dlq"`))
	require.Equal(t, 1, h.countRows(t,
		`SELECT COUNT(*) FROM "file_load_dlq" WHERE "file_load_log_id" = ?`, second.LogID))
}

func TestPipelineNoSourceMatchIsSkipped(t *testing.T) {
	h := newHarness(t, widgetsSource(0))
	path := h.writeFile(t, "gadgets_1.csv", "id,name\n1,a\n")

	result := h.processor.ProcessFile(context.Background(), path)
	require.True(t, result.Skipped)
	require.Zero(t, result.LogID)
	require.Equal(t, 0, h.countRows(t, `SELECT COUNT(*) FROM "file_load_log"`))
}

func TestPipelineCancelledBeforeStart(t *testing.T) {
	h := newHarness(t, widgetsSource(0))
	path := h.writeFile(t, "widgets_cancel.csv", "id,name\n1,a\n2,b\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := h.processor.ProcessFile(ctx, path)
	require.Equal(t, domain.LoadStatusFailed, result.Status)
	require.Equal(t, "Cancelled", result.ErrorType)

	// No alert for shutdown, and the file stays put.
	require.Empty(t, h.notifier.problems)
	require.Empty(t, h.notifier.internal)
	_, err := os.Stat(path)
	require.NoError(t, err)
}
