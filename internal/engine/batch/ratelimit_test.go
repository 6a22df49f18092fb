package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateState_SpacesCallStarts(t *testing.T) {
	const (
		interval = 10 * time.Millisecond
		calls    = 5
	)
	rs := NewRateState(interval)
	assert.Equal(t, interval, rs.Interval())

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, rs.Wait(context.Background()))
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, time.Since(start), (calls-1)*interval)
}

func TestRateState_FirstWaitDoesNotBlock(t *testing.T) {
	rs := NewRateState(time.Hour)

	start := time.Now()
	require.NoError(t, rs.Wait(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRateState_ZeroIntervalDisablesLimiting(t *testing.T) {
	rs := NewRateState(0)

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, rs.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestRateState_WaitHonorsContext(t *testing.T) {
	rs := NewRateState(time.Hour)
	require.NoError(t, rs.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := rs.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "waiting for rate limit")
}

func TestDispatcher_RateLimitAcrossWorkers(t *testing.T) {
	const (
		interval = 10 * time.Millisecond
		n        = 6
	)
	d, _ := newTestDispatcher(t, 3)
	process := Retrying(func(_ context.Context, item Item) (string, error) {
		return item.ID, nil
	}, NewRateState(interval), DefaultRetryPolicy(), nil)

	start := time.Now()
	results, err := d.Run(context.Background(), numberedItems(n), process)
	require.NoError(t, err)
	assert.Len(t, results, n)
	assert.GreaterOrEqual(t, time.Since(start), (n-1)*interval)
}
