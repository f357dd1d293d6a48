package retry

import (
	"context"
	"fmt"
	"time"

	"subly-reconciler/pkg/logging"
)

// Policy controls how often and how long an operation is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy is used for ledger RPC and token-exchange calls.
var DefaultPolicy = Policy{
	MaxAttempts: 4,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    8 * time.Second,
}

// Do runs fn, retrying with exponential backoff while retryable reports the
// returned error as transient. Errors classified as non-retryable (ledger
// logic rejections, non-2xx provider responses) are returned immediately.
func Do(ctx context.Context, policy Policy, op string, retryable func(error) bool, fn func() error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	delay := policy.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if retryable == nil || !retryable(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}

		logging.Warnf("%s failed (attempt %d/%d), retrying in %s: %v",
			op, attempt, policy.MaxAttempts, delay, lastErr)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, policy.MaxAttempts, lastErr)
}
