package domain

import "time"

// LoadStatus is the terminal disposition of a file load.
type LoadStatus string

const (
	LoadStatusPending          LoadStatus = "pending"
	LoadStatusSuccess          LoadStatus = "success"
	LoadStatusFailed           LoadStatus = "failed"
	LoadStatusDuplicateSkipped LoadStatus = "duplicate-skipped"
)

// FileLoadLog is the per-file run record. One row exists for every discovered
// file; phase timestamps and counters are filled in as the pipeline advances
// and the row becomes immutable once Status is terminal.
type FileLoadLog struct {
	ID          int64
	FileName    string
	SourceName  string
	TargetTable string
	Status      LoadStatus
	StartedAt   time.Time
	EndedAt     *time.Time

	ArchiveCopyStartedAt *time.Time
	ArchiveCopyEndedAt   *time.Time
	ArchiveCopySuccess   *bool

	ProcessingStartedAt *time.Time
	ProcessingEndedAt   *time.Time
	ProcessingSuccess   *bool

	StageLoadStartedAt *time.Time
	StageLoadEndedAt   *time.Time
	StageLoadSuccess   *bool

	AuditStartedAt *time.Time
	AuditEndedAt   *time.Time
	AuditSuccess   *bool

	MergeStartedAt *time.Time
	MergeEndedAt   *time.Time
	MergeSuccess   *bool

	RecordsProcessed   *int
	ValidationErrors   *int
	RecordsStageLoaded *int
	TargetInserts      *int
	TargetUpdates      *int

	ErrorType    string
	ErrorMessage string
}

// Now returns a pointer to the current UTC time for phase stamps.
func Now() *time.Time {
	now := time.Now().UTC()
	return &now
}

// BoolPtr is a small helper for the nullable success flags.
func BoolPtr(v bool) *bool { return &v }

// IntPtr is a small helper for the nullable counters.
func IntPtr(v int) *int { return &v }
