package processor

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds the retry behaviour applied to provider calls. Providers
// are treated as at-least-once: retried requests reuse the same idempotency
// key so duplicates collapse provider-side.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CallTimeout time.Duration
}

// DefaultRetryPolicy caps retries at a small attempt budget with capped
// exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		CallTimeout: 10 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	defaults := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaults.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaults.MaxDelay
	}
	if p.CallTimeout <= 0 {
		p.CallTimeout = defaults.CallTimeout
	}
	return p
}

// Do runs fn under the policy's per-call timeout, retrying on ErrUnavailable
// with exponential backoff. Declines and other terminal errors are returned
// immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	policy := p.normalized()
	delay := policy.BaseDelay
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, policy.CallTimeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, ErrUnavailable) {
			return err
		}
	}
	return lastErr
}
