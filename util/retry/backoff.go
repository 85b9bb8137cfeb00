package retry

import (
	"context"
	"time"
)

// maxBackoff caps a single wait so a long retry loop still notices a node
// that came up.
const maxBackoff = 5 * time.Second

var sleepFunc = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff returns the wait before attempt retries+1: (multiplier*retries + 1)
// units, capped at maxBackoff.
func Backoff(retries, multiplier int, unit time.Duration) time.Duration {
	wait := time.Duration(multiplier*retries+1) * unit
	if wait > maxBackoff || wait <= 0 {
		return maxBackoff
	}

	return wait
}
