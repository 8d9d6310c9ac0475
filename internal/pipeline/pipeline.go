// Package pipeline runs one source file end to end: dedupe check, archive
// copy, streaming validation into stage and DLQ, audits, merge, cleanup.
// A Processor holds the shared collaborators; each file gets its own run
// state and its failures never touch another file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cmgoffena13/file-loader/internal/db"
	"github.com/cmgoffena13/file-loader/internal/domain"
	"github.com/cmgoffena13/file-loader/internal/notify"
	"github.com/cmgoffena13/file-loader/internal/readers"
	"github.com/cmgoffena13/file-loader/internal/repository"
	"github.com/cmgoffena13/file-loader/internal/sources"
	"github.com/cmgoffena13/file-loader/internal/validation"
)

const sampleErrorLimit = 5

// Result summarizes one file's terminal state for the scheduler.
type Result struct {
	LogID        int64
	FileName     string
	Status       domain.LoadStatus
	Skipped      bool
	ErrorType    string
	ErrorMessage string
}

// Processor carries the process-wide collaborators shared by every run.
type Processor struct {
	registry *sources.Registry
	database *db.DB
	logs     repository.LogRepository
	dlq      repository.DLQRepository
	targets  *repository.TargetRepository
	auditor  *repository.Auditor
	notifier notify.Notifier
	log      *logrus.Logger

	archivePath    string
	duplicatesPath string
	batchSize      int
}

// NewProcessor wires a processor.
func NewProcessor(
	registry *sources.Registry,
	database *db.DB,
	logs repository.LogRepository,
	dlq repository.DLQRepository,
	targets *repository.TargetRepository,
	auditor *repository.Auditor,
	notifier notify.Notifier,
	log *logrus.Logger,
	archivePath, duplicatesPath string,
	batchSize int,
) *Processor {
	return &Processor{
		registry:       registry,
		database:       database,
		logs:           logs,
		dlq:            dlq,
		targets:        targets,
		auditor:        auditor,
		notifier:       notifier,
		log:            log,
		archivePath:    archivePath,
		duplicatesPath: duplicatesPath,
		batchSize:      batchSize,
	}
}

// run is the mutable state owned by a single file pipeline.
type run struct {
	p        *Processor
	src      domain.Source
	path     string
	fileName string
	loadLog  domain.FileLoadLog
	log      logrus.FieldLogger
}

// ProcessFile drives one file to a terminal state. It never panics outward
// and never returns an error: every outcome is a Result.
func (p *Processor) ProcessFile(ctx context.Context, path string) Result {
	fileName := filepath.Base(path)

	src, ok := p.registry.Match(fileName)
	if !ok {
		p.log.WithField("file", fileName).Warn("no source configuration found for file")
		return Result{FileName: fileName, Skipped: true, ErrorType: "No Source Configured"}
	}

	reader, err := readers.New(path, src)
	if err != nil {
		p.log.WithError(err).WithField("file", fileName).Error("failed to create reader")
		p.notifier.NotifyInternal(ctx, notify.InternalError{
			Message:  err.Error(),
			FileName: fileName,
		})
		return Result{FileName: fileName, Skipped: true, ErrorType: domain.ErrorType(err), ErrorMessage: err.Error()}
	}

	r := &run{
		p:        p,
		src:      src,
		path:     path,
		fileName: fileName,
		loadLog: domain.FileLoadLog{
			FileName:    fileName,
			SourceName:  src.Name,
			TargetTable: src.TableName,
			Status:      domain.LoadStatusPending,
			StartedAt:   time.Now().UTC(),
		},
	}

	id, err := p.logs.Start(ctx, fileName, src.Name, src.TableName, r.loadLog.StartedAt)
	if err != nil {
		p.log.WithError(err).WithField("file", fileName).Error("failed to create file load log row")
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", domain.ErrPipelineCancelled, err)
		} else {
			p.notifier.NotifyInternal(ctx, notify.InternalError{Message: err.Error(), FileName: fileName})
		}
		return Result{FileName: fileName, Status: domain.LoadStatusFailed, ErrorType: domain.ErrorType(err), ErrorMessage: err.Error()}
	}
	r.loadLog.ID = id
	r.log = p.log.WithFields(logrus.Fields{"log_id": id, "file": fileName, "source": src.Name})

	if err := r.execute(ctx, reader); err != nil {
		return r.fail(ctx, err)
	}
	// Status is success, or duplicate-skipped when the run short-circuited.
	return Result{LogID: id, FileName: fileName, Status: r.loadLog.Status}
}

// execute walks the happy-path state machine; any returned error is a
// terminal failure handled by fail. A duplicate file short-circuits to its
// own terminal state and returns nil.
func (r *run) execute(ctx context.Context, reader readers.Reader) (err error) {
	defer reader.Close()

	duplicate, dupErr := r.p.targets.HasFile(ctx, r.src.TableName, r.fileName)
	if dupErr != nil {
		// The target may not exist yet on a first run; treat as not duplicate.
		r.log.WithError(dupErr).Warn("duplicate file check failed, continuing")
	}
	if duplicate {
		return r.finishDuplicate(ctx)
	}

	if err := r.copyToArchive(); err != nil {
		return err
	}

	if err := reader.Open(ctx); err != nil {
		return err
	}

	stage := repository.NewStageManager(r.p.database, r.src, r.fileName, r.p.batchSize, r.log)
	if err := stage.Create(ctx); err != nil {
		return err
	}
	defer stage.Drop(context.WithoutCancel(ctx))

	dlqWriter := repository.NewDLQWriter(r.p.dlq, r.p.batchSize)
	if err := r.stream(ctx, reader, stage, dlqWriter); err != nil {
		return err
	}

	r.loadLog.StageLoadStartedAt = domain.Now()
	if err := stage.Commit(ctx); err != nil {
		return err
	}
	if err := dlqWriter.Flush(ctx); err != nil {
		return err
	}
	r.loadLog.StageLoadEndedAt = domain.Now()
	r.loadLog.StageLoadSuccess = domain.BoolPtr(true)
	r.loadLog.RecordsStageLoaded = domain.IntPtr(stage.Staged())
	r.log.Infof("loaded %d records into stage table %s and %d records into dlq",
		stage.Staged(), stage.TableName(), dlqWriter.Written())

	r.loadLog.AuditStartedAt = domain.Now()
	if err := r.p.auditor.VerifyGrain(ctx, r.src, stage.TableName()); err != nil {
		r.loadLog.AuditEndedAt = domain.Now()
		r.loadLog.AuditSuccess = domain.BoolPtr(false)
		return err
	}
	if err := r.p.auditor.RunUserAudit(ctx, r.src, stage.TableName()); err != nil {
		r.loadLog.AuditEndedAt = domain.Now()
		r.loadLog.AuditSuccess = domain.BoolPtr(false)
		return err
	}
	r.loadLog.AuditEndedAt = domain.Now()
	r.loadLog.AuditSuccess = domain.BoolPtr(true)

	r.loadLog.MergeStartedAt = domain.Now()
	inserts, updates, err := r.p.targets.Merge(ctx, r.src, stage.TableName(), stage.Staged())
	if err != nil {
		r.loadLog.MergeEndedAt = domain.Now()
		r.loadLog.MergeSuccess = domain.BoolPtr(false)
		return err
	}
	r.loadLog.MergeEndedAt = domain.Now()
	r.loadLog.MergeSuccess = domain.BoolPtr(true)
	r.loadLog.TargetInserts = domain.IntPtr(inserts)
	r.loadLog.TargetUpdates = domain.IntPtr(updates)
	r.log.Infof("merged %s into %s: %d inserts, %d updates", stage.TableName(), r.src.TableName, inserts, updates)

	r.cleanupPriorDeadLetters(ctx)

	if err := os.Remove(r.path); err != nil {
		r.log.WithError(err).Warn("failed to delete source file after successful load")
	} else {
		r.log.Infof("deleted %s from watch directory", r.fileName)
	}

	r.loadLog.Status = domain.LoadStatusSuccess
	r.loadLog.EndedAt = domain.Now()
	if err := r.p.logs.Update(ctx, &r.loadLog); err != nil {
		r.log.WithError(err).Error("failed to finalize file load log row")
	}
	return nil
}

// stream pulls every row out of the reader, validating into the stage table
// or the DLQ, then enforces the validation error threshold.
func (r *run) stream(ctx context.Context, reader readers.Reader, stage *repository.StageManager, dlqWriter *repository.DLQWriter) error {
	r.loadLog.ProcessingStartedAt = domain.Now()

	processed := 0
	failed := 0
	var samples []string

	deadLetter := func(row readers.Row, fieldErrors []domain.FieldError, data map[string]any) error {
		failed++
		if len(samples) < sampleErrorLimit {
			samples = append(samples, fmt.Sprintf("row %d: %s (%s)",
				row.Number, fieldErrors[0].ErrorMsg, fieldErrors[0].ErrorType))
		}
		return dlqWriter.Add(ctx, domain.DeadLetterEntry{
			SourceFilename:   r.fileName,
			FileRowNumber:    row.Number,
			RecordData:       data,
			ValidationErrors: fieldErrors,
			FileLoadLogID:    r.loadLog.ID,
			TargetTableName:  r.src.TableName,
			FailedAt:         time.Now().UTC(),
		})
	}

	err := reader.Read(ctx, func(row readers.Row) error {
		processed++
		if row.Err != nil {
			fieldErrors := []domain.FieldError{{
				ErrorType: "malformed_row",
				ErrorMsg:  row.Err.Error(),
			}}
			return deadLetter(row, fieldErrors, validation.FailedRecordData(r.src, row.Values, nil))
		}

		result := validation.Validate(r.src, row.Values)
		if len(result.Errors) > 0 {
			r.log.Debugf("validation failed for row %d", row.Number)
			return deadLetter(row, result.Errors, validation.FailedRecordData(r.src, row.Values, result.Errors))
		}
		return stage.Add(ctx, row.Number, result.Record)
	})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", domain.ErrPipelineCancelled, ctx.Err())
		}
		return err
	}

	r.loadLog.RecordsProcessed = domain.IntPtr(processed)
	r.loadLog.ValidationErrors = domain.IntPtr(failed)

	if processed > 0 && failed > 0 {
		errorRate := float64(failed) / float64(processed)
		if errorRate > r.src.ValidationErrorThreshold {
			// The dead letters document the failure; flush them before
			// aborting so they survive the stage drop.
			if flushErr := dlqWriter.Flush(ctx); flushErr != nil {
				r.log.WithError(flushErr).Error("failed to flush dead letters after threshold breach")
			}
			return fmt.Errorf(
				"%w: error rate %.2f%% exceeds threshold %.2f%%; processed: %d, failed: %d; sample errors: %v",
				domain.ErrThresholdExceeded, errorRate*100, r.src.ValidationErrorThreshold*100,
				processed, failed, samples)
		}
	}

	r.loadLog.ProcessingEndedAt = domain.Now()
	r.loadLog.ProcessingSuccess = domain.BoolPtr(true)
	return nil
}

func (r *run) copyToArchive() error {
	r.loadLog.ArchiveCopyStartedAt = domain.Now()
	destination := filepath.Join(r.p.archivePath, r.fileName)
	if err := copyFile(r.path, destination); err != nil {
		r.loadLog.ArchiveCopySuccess = domain.BoolPtr(false)
		return fmt.Errorf("failed to copy %s to archive: %w", r.fileName, err)
	}
	r.loadLog.ArchiveCopyEndedAt = domain.Now()
	r.loadLog.ArchiveCopySuccess = domain.BoolPtr(true)
	r.log.Infof("copied %s to archive", r.fileName)
	return nil
}

// finishDuplicate moves the file aside, finalizes the log row and notifies
// recipients with reprocessing instructions.
func (r *run) finishDuplicate(ctx context.Context) error {
	if err := os.MkdirAll(r.p.duplicatesPath, 0o755); err != nil {
		return fmt.Errorf("failed to create duplicates directory: %w", err)
	}
	destination := filepath.Join(r.p.duplicatesPath, r.fileName)
	if _, err := os.Stat(destination); err == nil {
		ext := readers.Extension(r.fileName)
		stem := r.fileName[:len(r.fileName)-len(ext)]
		destination = filepath.Join(r.p.duplicatesPath,
			fmt.Sprintf("%s_%s%s", stem, time.Now().UTC().Format("20060102_150405"), ext))
	}
	if err := os.Rename(r.path, destination); err != nil {
		return fmt.Errorf("failed to move duplicate file: %w", err)
	}
	r.log.Warnf("file already processed, moved to duplicates directory: %s", destination)

	r.loadLog.Status = domain.LoadStatusDuplicateSkipped
	r.loadLog.EndedAt = domain.Now()
	if err := r.p.logs.Update(ctx, &r.loadLog); err != nil {
		r.log.WithError(err).Error("failed to finalize duplicate-skipped log row")
	}

	if len(r.src.NotificationEmails) > 0 {
		r.p.notifier.NotifyFileProblem(ctx, notify.FileProblem{
			FileName:  r.fileName,
			ErrorType: domain.ErrorType(domain.ErrDuplicateFile),
			Message: fmt.Sprintf(
				"The file %s has already been processed and has been moved to the duplicates directory.\n\n"+
					"To reprocess this file:\n"+
					"1. Remove existing records from %s where source_filename = '%s'\n"+
					"2. Move the file from the duplicates directory back into the watch directory",
				r.fileName, r.src.TableName, r.fileName),
			LogID:      r.loadLog.ID,
			Recipients: r.src.NotificationEmails,
		})
	}
	return nil
}

// cleanupPriorDeadLetters deletes a reprocessed file's earlier dead letters
// once the new run has merged successfully.
func (r *run) cleanupPriorDeadLetters(ctx context.Context) {
	prior, err := r.p.dlq.HasPriorEntries(ctx, r.fileName, r.loadLog.ID)
	if err != nil {
		r.log.WithError(err).Warn("failed to check for prior dead letters")
		return
	}
	if !prior {
		return
	}
	deleted, err := r.p.dlq.DeletePriorForFile(ctx, r.fileName, r.loadLog.ID, r.p.batchSize)
	if err != nil {
		r.log.WithError(err).Warn("failed to delete prior dead letters")
		return
	}
	r.log.Infof("deleted %d dead letter record(s) from prior runs", deleted)
}

// fail finalizes the log row for a terminal failure, then emits exactly one
// notification routed by error kind. Cancellation alerts nobody.
func (r *run) fail(ctx context.Context, err error) Result {
	finalCtx := context.WithoutCancel(ctx)

	if errors.Is(err, domain.ErrDuplicateFile) || r.loadLog.Status == domain.LoadStatusDuplicateSkipped {
		return Result{LogID: r.loadLog.ID, FileName: r.fileName, Status: r.loadLog.Status}
	}

	// Database errors surfaced by a shutdown are the shutdown, not a fault.
	if ctx.Err() != nil && !domain.IsFileError(err) && !errors.Is(err, domain.ErrPipelineCancelled) {
		err = fmt.Errorf("%w: %v", domain.ErrPipelineCancelled, err)
	}

	r.log.WithError(err).Errorf("failed to process %s", r.fileName)

	r.loadLog.Status = domain.LoadStatusFailed
	r.loadLog.EndedAt = domain.Now()
	r.loadLog.ErrorType = domain.ErrorType(err)
	r.loadLog.ErrorMessage = err.Error()
	if updateErr := r.p.logs.Update(finalCtx, &r.loadLog); updateErr != nil {
		r.log.WithError(updateErr).Error("failed to finalize file load log row")
	}

	switch {
	case errors.Is(err, domain.ErrPipelineCancelled):
		// Shutdown is not an alert.
	case domain.IsFileError(err):
		r.p.notifier.NotifyFileProblem(finalCtx, notify.FileProblem{
			FileName:   r.fileName,
			ErrorType:  r.loadLog.ErrorType,
			Message:    err.Error(),
			LogID:      r.loadLog.ID,
			Recipients: r.src.NotificationEmails,
		})
	default:
		r.p.notifier.NotifyInternal(finalCtx, notify.InternalError{
			Message:  err.Error(),
			FileName: r.fileName,
			LogID:    r.loadLog.ID,
		})
	}

	return Result{
		LogID:        r.loadLog.ID,
		FileName:     r.fileName,
		Status:       domain.LoadStatusFailed,
		ErrorType:    r.loadLog.ErrorType,
		ErrorMessage: r.loadLog.ErrorMessage,
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
