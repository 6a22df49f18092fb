package batch

import (
	"context"
	"errors"
	"time"

	"github.com/endogpt/endokit/internal/logging"
)

// Default retry configuration.
const (
	// DefaultMaxAttempts is the number of calls made for one item before it is
	// recorded as failed.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the wait after the first failed attempt.
	DefaultBaseDelay = 4 * time.Second

	// DefaultMaxDelay bounds the exponential backoff.
	DefaultMaxDelay = 10 * time.Second
)

// RetryPolicy configures Retrying.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int

	// BaseDelay is the wait after the first failure; it doubles per attempt.
	BaseDelay time.Duration

	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration

	// IsRetryable classifies errors. Nil retries every error.
	IsRetryable func(error) bool
}

// DefaultRetryPolicy returns the policy used by the analysis tools.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Backoff returns the wait after the given zero-based failed attempt:
// min(BaseDelay * 2^attempt, MaxDelay).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func (p RetryPolicy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.IsRetryable == nil {
		return true
	}
	return p.IsRetryable(err)
}

// Retrying wraps call into a ProcessFunc that waits on rate before every
// attempt, retries failures with exponential backoff up to policy.MaxAttempts,
// and returns a failure Result instead of an error once attempts run out or a
// non-retryable error is seen. A nil rate disables limiting; a nil metrics
// disables recording.
func Retrying(call CallFunc, rate *RateState, policy RetryPolicy, metrics *Metrics) ProcessFunc {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	return func(ctx context.Context, item Item) Result {
		log := logging.FromContext(ctx).With().Str("item", item.ID).Logger()

		var lastErr error
		for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
			if attempt > 0 {
				delay := policy.Backoff(attempt - 1)
				log.Debug().
					Int("attempt", attempt+1).
					Dur("delay", delay).
					Err(lastErr).
					Msg("retrying item")
				metrics.retry()
				if err := sleep(ctx, delay); err != nil {
					return Failure(item, lastErr, attempt)
				}
			}

			if rate != nil {
				if err := rate.Wait(ctx); err != nil {
					return Failure(item, err, attempt)
				}
			}

			metrics.attempt()
			out, err := call(ctx, item)
			if err == nil {
				return Success(item, out, attempt+1)
			}
			lastErr = err

			if !policy.retryable(err) {
				log.Debug().Err(err).Msg("error is not retryable")
				return Failure(item, err, attempt+1)
			}
		}

		log.Warn().
			Int("attempts", policy.MaxAttempts).
			Err(lastErr).
			Msg("item failed after all attempts")
		return Failure(item, lastErr, policy.MaxAttempts)
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
