package domain

import "errors"

// Terminal error kinds for a file pipeline. File-kind errors describe a
// problem with the file itself and are never retried; they route to the
// business notification channel. Cancellation notifies nobody; everything
// else routes to the internal channel.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrReaderMismatch    = errors.New("reader does not match source type")
	ErrMissingHeader     = errors.New("missing header")
	ErrMissingColumns    = errors.New("missing columns")
	ErrThresholdExceeded = errors.New("validation threshold exceeded")
	ErrGrainDuplicates   = errors.New("grain values are not unique")
	ErrAuditFailed       = errors.New("audit failed")
	ErrDuplicateFile     = errors.New("duplicate file")
	ErrPipelineCancelled = errors.New("pipeline cancelled")
)

var fileErrorTypes = map[error]string{
	ErrMissingHeader:     "Missing Header",
	ErrMissingColumns:    "Missing Columns",
	ErrThresholdExceeded: "Validation Threshold Exceeded",
	ErrGrainDuplicates:   "Grain Validation Failed",
	ErrAuditFailed:       "Audit Failed",
	ErrDuplicateFile:     "Duplicate File Detected",
}

// IsFileError reports whether err is a file-content problem that business
// stakeholders should hear about, as opposed to an internal failure.
func IsFileError(err error) bool {
	for sentinel := range fileErrorTypes {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// ErrorType returns the human-readable kind used in log rows and
// notification subjects.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}
	for sentinel, name := range fileErrorTypes {
		if errors.Is(err, sentinel) {
			return name
		}
	}
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return "Unsupported Format"
	case errors.Is(err, ErrReaderMismatch):
		return "Reader Mismatch"
	case errors.Is(err, ErrPipelineCancelled):
		return "Cancelled"
	}
	return "Internal Error"
}
