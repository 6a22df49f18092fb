package batch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateState enforces a minimum interval between the starts of successive
// external calls, shared by every worker of a dispatcher.
//
// The zero interval disables limiting. The first Wait never blocks.
type RateState struct {
	interval time.Duration
	limiter  *rate.Limiter
}

// NewRateState creates a RateState allowing one call per interval.
func NewRateState(interval time.Duration) *RateState {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RateState{
		interval: interval,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Wait blocks until a call may start or ctx is done.
func (s *RateState) Wait(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limit: %w", err)
	}
	return nil
}

// Interval returns the configured minimum interval.
func (s *RateState) Interval() time.Duration {
	return s.interval
}
