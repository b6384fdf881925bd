package test

import (
	"context"
	"time"
)

// DefaultTimeout is the timeout used by helpers that wait for something to
// happen.
const DefaultTimeout = 5 * time.Second

// ContextWithTimeout returns a context that is cancelled when the test
// completes, or after the given timeout elapses.
func ContextWithTimeout(
	t TestingT,
	timeout time.Duration,
) (context.Context, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)

	return ctx, cancel
}
