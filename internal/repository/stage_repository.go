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

type stagedRow struct {
	number int
	record domain.Record
	hash   int64
}

// StageManager owns one file's ephemeral stage table: creation, batched
// inserts and teardown. It buffers validated records and flushes a batch in
// a short transaction once full.
type StageManager struct {
	db        *db.DB
	src       domain.Source
	fileName  string
	tableName string
	batchSize int
	log       logrus.FieldLogger

	buffer  []stagedRow
	staged  int
	created bool
}

// NewStageManager builds a manager for one pipeline run. The stage name is
// derived from the file name, so concurrent pipelines never collide.
func NewStageManager(database *db.DB, src domain.Source, fileName string, batchSize int, log logrus.FieldLogger) *StageManager {
	return &StageManager{
		db:        database,
		src:       src,
		fileName:  fileName,
		tableName: db.StageTableName(database.Dialect(), fileName),
		batchSize: batchSize,
		log:       log,
	}
}

// TableName returns the stage table name for auditing and merging.
func (m *StageManager) TableName() string { return m.tableName }

// Staged returns the number of rows flushed to the stage table.
func (m *StageManager) Staged() int { return m.staged }

// Create builds the stage table. Called after header validation, before any
// record is streamed.
func (m *StageManager) Create(ctx context.Context) error {
	query := db.StageTableSQL(m.db.Dialect(), m.src, m.tableName)
	err := retry.Do(ctx, m.log, "stage create", func() error {
		opCtx, cancel := m.db.OpContext(ctx)
		defer cancel()
		_, execErr := m.db.Pool().ExecContext(opCtx, query)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to create stage table %s: %w", m.tableName, err)
	}
	m.created = true
	return nil
}

// Add buffers one validated record under the reader's row number, flushing
// when the batch is full.
func (m *StageManager) Add(ctx context.Context, rowNumber int, record domain.Record) error {
	m.buffer = append(m.buffer, stagedRow{number: rowNumber, record: record, hash: db.RowHash(record)})
	if len(m.buffer) >= m.batchSize {
		return m.flush(ctx)
	}
	return nil
}

// Commit flushes any partial batch.
func (m *StageManager) Commit(ctx context.Context) error {
	if len(m.buffer) == 0 {
		return nil
	}
	return m.flush(ctx)
}

// Drop tears the stage table down. Safe to call when the table was never
// created; called on every pipeline exit path.
func (m *StageManager) Drop(ctx context.Context) {
	if !m.created {
		return
	}
	dialect := m.db.Dialect()
	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", dialect.QuoteIdent(m.tableName))
	err := retry.Do(ctx, m.log, "stage drop", func() error {
		opCtx, cancel := m.db.OpContext(context.WithoutCancel(ctx))
		defer cancel()
		_, execErr := m.db.Pool().ExecContext(opCtx, query)
		return execErr
	})
	if err != nil {
		m.log.WithError(err).Warnf("failed to drop stage table %s", m.tableName)
		return
	}
	m.created = false
}

func (m *StageManager) flush(ctx context.Context) error {
	batch := m.buffer
	m.buffer = nil

	columns := make([]string, 0, len(m.src.Fields)+3)
	for _, field := range m.src.Fields {
		columns = append(columns, field.Name)
	}
	columns = append(columns, "source_filename", "file_row_number", "etl_row_hash")

	dialect := m.db.Dialect()
	maxRows := dialect.MaxBindParams() / len(columns)
	if maxRows < 1 {
		maxRows = 1
	}

	for start := 0; start < len(batch); start += maxRows {
		end := start + maxRows
		if end > len(batch) {
			end = len(batch)
		}
		if err := m.insertChunk(ctx, columns, batch[start:end]); err != nil {
			return err
		}
	}
	m.staged += len(batch)
	m.log.Debugf("loaded %d records so far into stage table %s", m.staged, m.tableName)
	return nil
}

func (m *StageManager) insertChunk(ctx context.Context, columns []string, rows []stagedRow) error {
	dialect := m.db.Dialect()

	quoted := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = dialect.QuoteIdent(column)
	}

	valueRows := make([]string, len(rows))
	args := make([]any, 0, len(rows)*len(columns))
	param := 1
	for i, row := range rows {
		markers := make([]string, len(columns))
		for j, column := range columns {
			markers[j] = dialect.Placeholder(param)
			param++
			switch column {
			case "source_filename":
				args = append(args, m.fileName)
			case "file_row_number":
				args = append(args, row.number)
			case "etl_row_hash":
				args = append(args, row.hash)
			default:
				args = append(args, row.record[column])
			}
		}
		valueRows[i] = "(" + strings.Join(markers, ", ") + ")"
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s",
		dialect.QuoteIdent(m.tableName),
		strings.Join(quoted, ", "),
		strings.Join(valueRows, ", "),
	)

	err := retry.Do(ctx, m.log, "stage insert", func() error {
		opCtx, cancel := m.db.OpContext(ctx)
		defer cancel()
		return m.db.WithTx(opCtx, func(tx *sql.Tx) error {
			_, execErr := tx.ExecContext(opCtx, query, args...)
			return execErr
		})
	})
	if err != nil {
		return fmt.Errorf("failed to insert batch into %s: %w", m.tableName, err)
	}
	return nil
}
