package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
)

// transientMarkers is the dialect-agnostic set of failure signatures worth
// retrying: concurrency casualties and flaky transport, not logic errors.
var transientMarkers = []string{
	"deadlock",
	"serialization failure",
	"could not serialize",
	"lock timeout",
	"lock wait timeout",
	"connection reset",
	"connection refused",
	"broken pipe",
	"bad connection",
	"timeout expired",
	"i/o timeout",
	"database is locked",
}

// IsTransient reports whether a database error is worth retrying with
// backoff. Per-call deadline expiry counts as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
