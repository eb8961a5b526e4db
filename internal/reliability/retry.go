// Package reliability provides the retry policies used around message
// handling. Policies decide whether a failed attempt is worth repeating and
// how long to wait before it.
package reliability

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ErrMaxAttemptsExceeded wraps the last error once a policy gives up
var ErrMaxAttemptsExceeded = errors.New("maximum retry attempts exceeded")

// RetryPolicy decides whether a failed attempt should be repeated
type RetryPolicy interface {
	// ShouldRetry reports whether attempt (zero-based) may be retried after
	// err, and the delay to wait first
	ShouldRetry(attempt int, err error) (bool, time.Duration)
}

// permanentError marks an error that no amount of retrying can fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps an error so retry policies stop immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isRetryable(err error) bool {
	var permanent *permanentError
	if errors.As(err, &permanent) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// ExponentialBackoff grows the delay by a multiplier per attempt, capped at
// MaxInterval, with jitter to spread concurrent retriers
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
	Jitter          bool
}

// NewExponentialBackoff creates an exponential backoff policy with jitter
func NewExponentialBackoff(initial, max time.Duration, multiplier float64, maxAttempts int) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: initial,
		MaxInterval:     max,
		Multiplier:      multiplier,
		MaxAttempts:     maxAttempts,
		Jitter:          true,
	}
}

// ShouldRetry implements RetryPolicy
func (e *ExponentialBackoff) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= e.MaxAttempts-1 || !isRetryable(err) {
		return false, 0
	}

	delay := float64(e.InitialInterval) * math.Pow(e.Multiplier, float64(attempt))
	if delay > float64(e.MaxInterval) {
		delay = float64(e.MaxInterval)
	}
	if e.Jitter {
		// ±15%
		delay += (rand.Float64() - 0.5) * 0.3 * delay
	}

	return true, time.Duration(delay)
}

// FixedDelay waits the same interval between attempts
type FixedDelay struct {
	Delay       time.Duration
	MaxAttempts int
}

// NewFixedDelay creates a fixed delay policy
func NewFixedDelay(delay time.Duration, maxAttempts int) *FixedDelay {
	return &FixedDelay{Delay: delay, MaxAttempts: maxAttempts}
}

// ShouldRetry implements RetryPolicy
func (f *FixedDelay) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= f.MaxAttempts-1 || !isRetryable(err) {
		return false, 0
	}
	return true, f.Delay
}

// Retry runs op until it succeeds, the policy gives up, or the context ends
func Retry(ctx context.Context, policy RetryPolicy, op func() error) error {
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}

		retry, delay := policy.ShouldRetry(attempt, err)
		if !retry {
			if attempt > 0 {
				return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, attempt+1, err)
			}
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
