// Package retry provides small helpers for retrying an operation with a
// linear backoff.
package retry

import (
	"context"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/ulogger"
)

// RetryWithLogger calls f up to retryCount times, sleeping
// Backoff(attempt, backoffMultiplier, backoffDurationType) between attempts.
// It gives up early on errors that errors.IsRetryableError rejects and
// returns the last error.
func RetryWithLogger[T any](ctx context.Context, logger ulogger.Logger, f func() (T, error), retryCount int, backoffMultiplier int, backoffDurationType time.Duration, retryMessage string) (T, error) {
	var (
		result T
		err    error
	)

	for i := 0; i < retryCount; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}

		result, err = f()
		if err == nil {
			return result, nil
		}

		logger.Debugf("%s (attempt %d/%d): %v", retryMessage, i+1, retryCount, err)

		if i == retryCount-1 || !errors.IsRetryableError(err) {
			break
		}

		if sleepErr := sleepFunc(ctx, Backoff(i, backoffMultiplier, backoffDurationType)); sleepErr != nil {
			return result, sleepErr
		}
	}

	return result, err
}
