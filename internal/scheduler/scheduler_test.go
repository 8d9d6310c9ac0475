package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/cmgoffena13/file-loader/internal/db"
	"github.com/cmgoffena13/file-loader/internal/domain"
	"github.com/cmgoffena13/file-loader/internal/notify"
	"github.com/cmgoffena13/file-loader/internal/pipeline"
	"github.com/cmgoffena13/file-loader/internal/repository"
	"github.com/cmgoffena13/file-loader/internal/sources"
)

func widgetsSource() domain.Source {
	return domain.Source{
		Name:        "widgets",
		FilePattern: "widgets_*.csv",
		Type:        domain.SourceTypeCSV,
		TableName:   "widgets",
		Grain:       []string{"id"},
		Fields: []domain.FieldDefinition{
			{Name: "id", Type: domain.FieldTypeInteger, Required: true},
			{Name: "name", Type: domain.FieldTypeString},
		},
	}
}

func newTestScheduler(t *testing.T, workers int) (*Scheduler, *db.DB, string) {
	t.Helper()
	ctx := context.Background()

	database, err := db.Connect(ctx, "sqlite://:memory:", 0)
	require.NoError(t, err)
	t.Cleanup(database.Close)

	src := widgetsSource()
	registry, err := sources.NewRegistry(src)
	require.NoError(t, err)

	dialect := database.Dialect()
	statements := []string{db.LogTableSQL(dialect), db.DLQTableSQL(dialect)}
	statements = append(statements, db.DLQIndexSQL(dialect)...)
	statements = append(statements, db.TargetTableSQL(dialect, src))
	statements = append(statements, db.TargetIndexSQL(dialect, src)...)
	for _, statement := range statements {
		require.NoError(t, database.ExecIgnoreExisting(ctx, statement))
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	base := t.TempDir()
	watchDir := filepath.Join(base, "incoming")
	require.NoError(t, os.MkdirAll(watchDir, 0o755))

	processor := pipeline.NewProcessor(
		registry, database,
		repository.NewLogRepository(database, log),
		repository.NewDLQRepository(database, log),
		repository.NewTargetRepository(database, log),
		repository.NewAuditor(database, log),
		notify.Nop{}, log,
		filepath.Join(base, "archive"), filepath.Join(base, "duplicates"), 100)

	return New(processor, workers, log), database, watchDir
}

func TestDiscoverFiltersUnsupportedAndHidden(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.csv", "b.json", "c.xlsx", "d.csv.gz", "notes.txt", ".hidden.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub.csv"), 0o755))

	files, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, files, 4)
}

func TestDiscoverMissingDirectory(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "nope"))
	require.ErrorContains(t, err, "watch directory not found")
}

func TestSchedulerRunsAllFilesWithIsolatedFailures(t *testing.T) {
	sched, database, watchDir := newTestScheduler(t, 4)

	// Eight valid files and two with a missing column.
	for i := 0; i < 8; i++ {
		content := fmt.Sprintf("id,name\n%d,ok\n", i+1)
		require.NoError(t, os.WriteFile(
			filepath.Join(watchDir, fmt.Sprintf("widgets_good_%d.csv", i)), []byte(content), 0o644))
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, os.WriteFile(
			filepath.Join(watchDir, fmt.Sprintf("widgets_bad_%d.csv", i)), []byte("label\nx\n"), 0o644))
	}

	results, err := sched.Run(context.Background(), watchDir)
	require.NoError(t, err)
	require.Len(t, results, 10)

	succeeded, failed := 0, 0
	for _, result := range results {
		switch result.Status {
		case domain.LoadStatusSuccess:
			succeeded++
		case domain.LoadStatusFailed:
			failed++
			require.Equal(t, "Missing Columns", result.ErrorType)
		}
	}
	require.Equal(t, 8, succeeded)
	require.Equal(t, 2, failed)

	var logRows, targetRows int
	require.NoError(t, database.Pool().QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM "file_load_log"`).Scan(&logRows))
	require.Equal(t, 10, logRows)
	require.NoError(t, database.Pool().QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM "widgets"`).Scan(&targetRows))
	require.Equal(t, 8, targetRows)
}

func TestSchedulerEmptyDirectory(t *testing.T) {
	sched, _, watchDir := newTestScheduler(t, 2)
	results, err := sched.Run(context.Background(), watchDir)
	require.NoError(t, err)
	require.Empty(t, results)
}
