package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/cmgoffena13/file-loader/internal/config"
	"github.com/cmgoffena13/file-loader/internal/db"
	"github.com/cmgoffena13/file-loader/internal/domain"
	"github.com/cmgoffena13/file-loader/internal/notify"
	"github.com/cmgoffena13/file-loader/internal/pipeline"
	"github.com/cmgoffena13/file-loader/internal/repository"
	"github.com/cmgoffena13/file-loader/internal/scheduler"
	"github.com/cmgoffena13/file-loader/internal/sources"
	"github.com/cmgoffena13/file-loader/internal/sources/systems"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("file loader failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := systems.MasterRegistry()
	if err != nil {
		return fmt.Errorf("failed to build source registry: %w", err)
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBTimeout)
	if err != nil {
		return err
	}
	defer database.Close()
	log.Infof("connected to %s database", database.Dialect().Name())

	if err := createTables(ctx, database, registry); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	notifier := notify.Composite{
		Email: notify.NewEmailNotifier(
			cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword,
			cfg.FromEmail, cfg.DataTeamEmail, log),
		Slack: notify.NewSlackNotifier(cfg.SlackWebhookURL, log),
		Log:   log,
	}

	logs := repository.NewLogRepository(database, log)
	dlq := repository.NewDLQRepository(database, log)
	targets := repository.NewTargetRepository(database, log)
	auditor := repository.NewAuditor(database, log)

	processor := pipeline.NewProcessor(
		registry, database, logs, dlq, targets, auditor, notifier, log,
		cfg.ArchivePath, cfg.DuplicateFilesPath, cfg.BatchSize)

	sched := scheduler.New(processor, cfg.Workers, log)
	results, err := sched.Run(ctx, cfg.DirectoryPath)
	if err != nil {
		notifier.NotifyInternal(context.WithoutCancel(ctx), notify.InternalError{Message: err.Error()})
		return err
	}

	reportInternalFailures(context.WithoutCancel(ctx), notifier, results)
	return nil
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if cfg.EnvState == "prod" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

// createTables builds the system tables and every registered target with
// its indexes at startup.
func createTables(ctx context.Context, database *db.DB, registry *sources.Registry) error {
	dialect := database.Dialect()

	statements := []string{db.LogTableSQL(dialect), db.DLQTableSQL(dialect)}
	statements = append(statements, db.DLQIndexSQL(dialect)...)
	for _, src := range registry.Sources() {
		statements = append(statements, db.TargetTableSQL(dialect, src))
		statements = append(statements, db.TargetIndexSQL(dialect, src)...)
	}

	for _, statement := range statements {
		if err := database.ExecIgnoreExisting(ctx, statement); err != nil {
			return err
		}
	}
	return nil
}

// reportInternalFailures sends one summary notification for runs that
// failed on code or infrastructure problems. File-content failures were
// already mailed to their business recipients per file.
func reportInternalFailures(ctx context.Context, notifier notify.Notifier, results []pipeline.Result) {
	var details []string
	for _, result := range results {
		if result.Status != domain.LoadStatusFailed || result.ErrorType == "" {
			continue
		}
		if isBusinessErrorType(result.ErrorType) || result.ErrorType == "Cancelled" {
			continue
		}
		message := result.ErrorMessage
		if len(message) > 200 {
			message = message[:200] + "..."
		}
		detail := fmt.Sprintf("• %s", result.FileName)
		if result.LogID != 0 {
			detail += fmt.Sprintf(" (log_id: %d)", result.LogID)
		}
		detail += fmt.Sprintf(": %s - %s", result.ErrorType, message)
		details = append(details, detail)
	}
	if len(details) == 0 {
		return
	}

	notifier.NotifyInternal(ctx, notify.InternalError{
		Message: fmt.Sprintf(
			"File processing completed with %d failure(s) out of %d file(s).\n\nFailed files:\n%s",
			len(details), len(results), strings.Join(details, "\n")),
	})
}

func isBusinessErrorType(errorType string) bool {
	switch errorType {
	case "Missing Header", "Missing Columns", "Validation Threshold Exceeded",
		"Grain Validation Failed", "Audit Failed", "Duplicate File Detected":
		return true
	}
	return false
}
