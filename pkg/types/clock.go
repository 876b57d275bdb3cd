package types

import (
	"context"
	"time"
)

// Clock returns the current time. Components take a Clock so tests can drive time.
type Clock func() time.Time

// Sleeper blocks for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// SystemClock is the wall clock.
func SystemClock() time.Time {
	return time.Now()
}

// SystemSleep waits on a real timer, respecting context cancellation.
func SystemSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
