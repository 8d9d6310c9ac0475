// Package retry wraps transient-failure retry with exponential backoff for
// database operations. File-content errors are never retried.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/cmgoffena13/file-loader/internal/db"
	"github.com/cmgoffena13/file-loader/internal/domain"
)

const (
	initialInterval = 200 * time.Millisecond
	maxInterval     = 5 * time.Second
	maxAttempts     = 5
)

// Do runs op, retrying transient database failures with exponential backoff
// (200ms initial, doubling, capped at 5s, up to 5 attempts). Any
// non-transient error, and any file-kind error, aborts immediately.
func Do(ctx context.Context, log logrus.FieldLogger, name string, op func() error) error {
	policy := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(initialInterval),
		backoff.WithMultiplier(2),
		backoff.WithMaxInterval(maxInterval),
	)

	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if domain.IsFileError(err) || !db.IsTransient(err) {
			return backoff.Permanent(err)
		}
		if attempt >= maxAttempts {
			return backoff.Permanent(err)
		}
		if log != nil {
			log.WithError(err).Warnf("retrying %s (attempt %d/%d)", name, attempt+1, maxAttempts)
		}
		return err
	}
	return backoff.Retry(wrapped, backoff.WithContext(policy, ctx))
}
