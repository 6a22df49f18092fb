package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func TestRetryPolicy_Backoff(t *testing.T) {
	policy := DefaultRetryPolicy()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 4 * time.Second},
		{attempt: 1, want: 8 * time.Second},
		{attempt: 2, want: 10 * time.Second},
		{attempt: 3, want: 10 * time.Second},
		{attempt: 40, want: 10 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRetryPolicy_BackoffWithoutCap(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second}
	assert.Equal(t, 8*time.Second, policy.Backoff(3))
	assert.Equal(t, time.Duration(0), RetryPolicy{}.Backoff(2))
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

// flakyCall fails the first n calls and succeeds afterwards.
func flakyCall(n int, calls *int) CallFunc {
	return func(_ context.Context, item Item) (string, error) {
		*calls++
		if *calls <= n {
			return "", errTransient
		}
		return "done-" + item.ID, nil
	}
}

func TestRetrying_SucceedsBeforeCap(t *testing.T) {
	for failures := 0; failures < DefaultMaxAttempts; failures++ {
		calls := 0
		process := Retrying(flakyCall(failures, &calls), nil, fastPolicy(), nil)

		res := process(context.Background(), Item{ID: "x"})
		assert.False(t, res.Failed(), "failures=%d", failures)
		assert.Equal(t, "done-x", res.Output)
		assert.Equal(t, failures+1, res.Attempts)
		assert.Equal(t, failures+1, calls)
	}
}

func TestRetrying_FailsAtCap(t *testing.T) {
	calls := 0
	process := Retrying(flakyCall(DefaultMaxAttempts, &calls), nil, fastPolicy(), nil)

	res := process(context.Background(), Item{ID: "x"})
	assert.True(t, res.Failed())
	assert.Equal(t, DefaultMaxAttempts, res.Attempts)
	assert.Equal(t, DefaultMaxAttempts, calls)
	assert.Equal(t, errTransient.Error(), res.Err)
}

func TestRetrying_NonRetryableStopsEarly(t *testing.T) {
	calls := 0
	policy := fastPolicy()
	policy.IsRetryable = func(err error) bool { return !errors.Is(err, errTransient) }

	process := Retrying(flakyCall(5, &calls), nil, policy, nil)
	res := process(context.Background(), Item{ID: "x"})

	assert.True(t, res.Failed())
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, calls)
}

func TestRetrying_ContextErrorsAreNotRetried(t *testing.T) {
	calls := 0
	call := func(context.Context, Item) (string, error) {
		calls++
		return "", context.DeadlineExceeded
	}

	res := Retrying(call, nil, fastPolicy(), nil)(context.Background(), Item{ID: "x"})
	assert.True(t, res.Failed())
	assert.Equal(t, 1, calls)
}

func TestRetrying_WaitsBetweenAttempts(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 15 * time.Millisecond}
	process := Retrying(flakyCall(2, &calls), nil, policy, nil)

	start := time.Now()
	res := process(context.Background(), Item{ID: "x"})
	require.False(t, res.Failed())

	// 10ms after the first failure, then min(20ms, 15ms) after the second.
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestRetrying_CanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}
	res := Retrying(flakyCall(3, &calls), nil, policy, nil)(ctx, Item{ID: "x"})

	assert.True(t, res.Failed())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, errTransient.Error(), res.Err)
}

func TestRetrying_RateLimitAppliesToEveryAttempt(t *testing.T) {
	const interval = 15 * time.Millisecond
	rate := NewRateState(interval)

	calls := 0
	policy := RetryPolicy{MaxAttempts: 3}
	process := Retrying(flakyCall(2, &calls), rate, policy, nil)

	start := time.Now()
	res := process(context.Background(), Item{ID: "x"})
	require.False(t, res.Failed())
	assert.Equal(t, 3, calls)
	assert.GreaterOrEqual(t, time.Since(start), 2*interval)
}

func TestRetrying_RecordsMetrics(t *testing.T) {
	m := NewMetrics("test")
	calls := 0
	process := Retrying(flakyCall(2, &calls), nil, fastPolicy(), m)

	res := process(context.Background(), Item{ID: "x"})
	require.False(t, res.Failed())

	assert.InDelta(t, 3, counterValue(t, m.attempts), 0)
	assert.InDelta(t, 2, counterValue(t, m.retries), 0)
}
