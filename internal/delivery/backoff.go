package delivery

import (
	"context"
	"time"
)

// Backoff returns the wait before the given attempt: none before attempt 0, then
// unit, 2*unit, 4*unit, ... (2^(attempt-1) units).
func Backoff(unit time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return unit << (attempt - 1)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
