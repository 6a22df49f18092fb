package batch

import (
	"sync"
	"time"
)

// percentMultiplier is used to convert a ratio to percentage (0-100).
const percentMultiplier = 100

// Progress tracks the progress of a dispatcher run.
// It provides thread-safe access to progress metrics for UI updates.
type Progress struct {
	// TotalItems is the total number of items to process.
	TotalItems int

	// ProcessedItems is the number of items completed so far, successful or not.
	ProcessedItems int

	// FailedItems is the number of completed items that recorded a failure.
	FailedItems int

	// StartTime is when processing started.
	StartTime time.Time

	// LastUpdateTime is when progress was last updated.
	LastUpdateTime time.Time

	// mu protects concurrent access to progress fields.
	mu sync.RWMutex
}

// NewProgress creates a new progress tracker.
func NewProgress(totalItems int) *Progress {
	now := time.Now()
	return &Progress{
		TotalItems:     totalItems,
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Add records one completed item.
// This method is thread-safe.
func (p *Progress) Add(failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ProcessedItems++
	if failed {
		p.FailedItems++
	}
	p.LastUpdateTime = time.Now()
}

// Recovered moves one item from failed to successful, used when the retry pass
// rescues an item.
func (p *Progress) Recovered() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailedItems > 0 {
		p.FailedItems--
	}
	p.LastUpdateTime = time.Now()
}

// Snapshot returns a thread-safe copy of the current progress state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ProgressSnapshot{
		TotalItems:      p.TotalItems,
		ProcessedItems:  p.ProcessedItems,
		FailedItems:     p.FailedItems,
		StartTime:       p.StartTime,
		LastUpdateTime:  p.LastUpdateTime,
		PercentComplete: p.percentCompleteUnsafe(),
		ElapsedTime:     time.Since(p.StartTime),
		ItemsPerSecond:  p.itemsPerSecondUnsafe(),
		Remaining:       p.remainingUnsafe(),
	}
}

// ProgressSnapshot is an immutable snapshot of progress state.
type ProgressSnapshot struct {
	TotalItems      int
	ProcessedItems  int
	FailedItems     int
	StartTime       time.Time
	LastUpdateTime  time.Time
	PercentComplete float64
	ElapsedTime     time.Duration
	ItemsPerSecond  float64

	// Remaining estimates the time left from the average time per completed
	// item. It is zero until the first item completes.
	Remaining time.Duration
}

// percentCompleteUnsafe calculates percent complete without locking.
// Should only be called when already holding the lock.
func (p *Progress) percentCompleteUnsafe() float64 {
	if p.TotalItems == 0 {
		return 0
	}
	return (float64(p.ProcessedItems) / float64(p.TotalItems)) * percentMultiplier
}

// itemsPerSecondUnsafe calculates items per second without locking.
// Should only be called when already holding the lock.
func (p *Progress) itemsPerSecondUnsafe() float64 {
	elapsed := time.Since(p.StartTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(p.ProcessedItems) / elapsed
}

// remainingUnsafe estimates the remaining time without locking.
// Should only be called when already holding the lock.
func (p *Progress) remainingUnsafe() time.Duration {
	if p.ProcessedItems == 0 {
		return 0
	}

	avgTimePerItem := time.Since(p.StartTime) / time.Duration(p.ProcessedItems)
	remainingItems := max(p.TotalItems-p.ProcessedItems, 0)
	return avgTimePerItem * time.Duration(remainingItems)
}
