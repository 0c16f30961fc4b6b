package errors

import (
	"context"
	"math"
	"time"
)

// RetryPolicy configures Retry. The zero value makes a single attempt.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt, so an
	// operation runs at most MaxRetries+1 times.
	MaxRetries int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// BackoffFactor multiplies the delay after every attempt. Values below
	// 1 are treated as 1.
	BackoffFactor float64

	// MaxDelay caps a single delay. Zero means no cap.
	MaxDelay time.Duration

	// RetryPredicate decides whether err is worth another attempt.
	// Defaults to IsRetryable.
	RetryPredicate func(err error) bool

	// OnRetry is called before every wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryPolicy returns three retries starting at 100ms and doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      10 * time.Second,
	}
}

// Delay returns the wait after the given zero-based attempt:
// InitialDelay * BackoffFactor^attempt, capped by MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	d := float64(p.InitialDelay) * math.Pow(factor, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func (p RetryPolicy) shouldRetry(err error) bool {
	if p.RetryPredicate != nil {
		return p.RetryPredicate(err)
	}
	return IsRetryable(err)
}

// Retry runs fn until it succeeds, the predicate rejects its error, or
// MaxRetries retries have been spent. The last error is returned unchanged.
// A context that ends while waiting also returns the last error.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	_, err := RetryValue(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryValue is Retry for operations that produce a value.
func RetryValue[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	maxRetries := policy.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= maxRetries || !policy.shouldRetry(err) {
			return result, err
		}

		delay := policy.Delay(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, err
		case <-timer.C:
		}
	}
}
