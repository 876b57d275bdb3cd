package testutil

import (
	"context"
	"testing"
	"time"
)

// TestContext creates a context with a reasonable timeout for tests.
// Returns a context and a cancel function that should be deferred.
func TestContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// ShortTestContext creates a context with a short timeout (5 seconds) for quick tests.
func ShortTestContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// CancelledContext returns a context that is already cancelled.
func CancelledContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
