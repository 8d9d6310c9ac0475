package domain

import (
	"time"

	"github.com/google/uuid"
)

// FieldError is one validation failure on one column of a source record.
type FieldError struct {
	ColumnName  string `json:"column_name"`
	ColumnValue string `json:"column_value"`
	ErrorType   string `json:"error_type"`
	ErrorMsg    string `json:"error_msg"`
}

// DeadLetterEntry is a persistent record of a source row that failed
// validation. RecordData holds the grain fields plus the fields that errored,
// keyed by source alias, so operators can locate the row in the file.
type DeadLetterEntry struct {
	ID               uuid.UUID
	SourceFilename   string
	FileRowNumber    int
	RecordData       map[string]any
	ValidationErrors []FieldError
	FileLoadLogID    int64
	TargetTableName  string
	FailedAt         time.Time
}
