package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/endogpt/endokit/internal/engine/snapshot"
	"github.com/endogpt/endokit/internal/logging"
)

// Default dispatcher configuration.
const (
	// DefaultConcurrency is the number of workers used when none is configured.
	DefaultConcurrency = 4

	// MaxConcurrency is the largest accepted worker count.
	MaxConcurrency = 64
)

// Common dispatcher errors.
var (
	ErrEmptyItems         = errors.New("items slice cannot be empty")
	ErrNilProcess         = errors.New("process function cannot be nil")
	ErrInvalidConcurrency = errors.New("concurrency must be between 1 and 64")
	ErrEmptyOutputPath    = errors.New("output path cannot be empty")
	ErrDuplicateID        = errors.New("duplicate item id")
	ErrCanceled           = errors.New("canceled before processing")
)

// ProgressCallback is invoked after every completion with the current progress.
// It is always called from the single goroutine that owns the results, so it
// needs no locking of its own.
type ProgressCallback func(progress ProgressSnapshot)

// Config configures a Dispatcher.
type Config struct {
	// Concurrency is the fixed number of workers.
	Concurrency int

	// OutputPath is where the snapshot is persisted.
	OutputPath string

	// Metrics is optional.
	Metrics *Metrics

	// OnProgress is optional.
	OnProgress ProgressCallback
}

// Dispatcher runs a batch of items through a bounded worker pool and persists
// the results after every completion.
type Dispatcher struct {
	cfg Config
}

// NewDispatcher validates cfg and creates a Dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Concurrency < 1 || cfg.Concurrency > MaxConcurrency {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, cfg.Concurrency)
	}
	if cfg.OutputPath == "" {
		return nil, ErrEmptyOutputPath
	}
	return &Dispatcher{cfg: cfg}, nil
}

// run holds the state owned by the consuming goroutine during one Run.
type run struct {
	store    *snapshot.Store
	snap     *snapshot.Snapshot
	results  map[string]Result
	progress *Progress
	onUpdate ProgressCallback
}

// apply records res and persists a new snapshot.
func (r *run) apply(res Result) error {
	r.results[res.ID] = res

	var failure *snapshot.Failure
	if res.Failed() {
		failure = &snapshot.Failure{Error: res.Err, Attempts: res.Attempts}
	}
	r.snap.Set(res.ID, res.Text(), failure, time.Now())

	if err := r.store.Write(r.snap); err != nil {
		return fmt.Errorf("persisting result for %q: %w", res.ID, err)
	}
	return nil
}

func (r *run) notify() {
	if r.onUpdate != nil {
		r.onUpdate(r.progress.Snapshot())
	}
}

// Run processes every item and returns one Result per item, keyed by Item.ID.
//
// Item failures are recorded in the mapping and never returned as errors. The
// returned error is non-nil only for invalid input, for a snapshot that cannot
// be written (the mapping is nil in that case), or when ctx is canceled: the
// run then stops feeding new items, lets in-flight items finish, records the
// rest as canceled, writes a final snapshot and returns the full mapping
// together with ctx.Err().
func (d *Dispatcher) Run(ctx context.Context, items []Item, process ProcessFunc) (map[string]Result, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	if process == nil {
		return nil, ErrNilProcess
	}
	if err := checkUniqueIDs(items); err != nil {
		return nil, err
	}

	store, err := snapshot.NewStore(d.cfg.OutputPath)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	r := &run{
		store:    store,
		snap:     snapshot.New(len(items), start),
		results:  make(map[string]Result, len(items)),
		progress: NewProgress(len(items)),
		onUpdate: d.cfg.OnProgress,
	}

	ctx = logging.WithRunID(ctx, r.snap.Stats.RunID)
	log := logging.ComponentLogger(*logging.FromContext(ctx), "batch")

	if writeErr := store.Write(r.snap); writeErr != nil {
		return nil, fmt.Errorf("writing initial snapshot: %w", writeErr)
	}

	log.Info().
		Int("items", len(items)).
		Int("concurrency", d.cfg.Concurrency).
		Str("snapshot", store.Path()).
		Msg("batch started")

	if poolErr := d.runPool(ctx, items, process, r); poolErr != nil {
		log.Error().Err(poolErr).Msg("batch aborted")
		return nil, poolErr
	}

	ctxErr := ctx.Err()
	if ctxErr != nil {
		if cancelErr := d.recordCanceled(items, r); cancelErr != nil {
			return nil, cancelErr
		}
		log.Warn().Int("completed", r.progress.Snapshot().ProcessedItems).Msg("batch canceled")
	} else if retryErr := d.retryFailed(ctx, items, process, r); retryErr != nil {
		if !errors.Is(retryErr, ctx.Err()) {
			return nil, retryErr
		}
		ctxErr = retryErr
		log.Warn().Msg("batch canceled during final retry pass")
	}

	r.snap.Finish(time.Now())
	if finalErr := store.Write(r.snap); finalErr != nil {
		return nil, fmt.Errorf("writing final snapshot: %w", finalErr)
	}

	d.cfg.Metrics.countFinal(r.results)

	final := r.progress.Snapshot()
	log.Info().
		Int("items", len(items)).
		Int("failed", final.FailedItems).
		Dur("elapsed", time.Since(start)).
		Msg("batch finished")

	return r.results, ctxErr
}

// runPool feeds items to Concurrency workers and applies completions from the
// calling goroutine. It returns the first persistence error; remaining
// completions are drained and discarded after that.
func (d *Dispatcher) runPool(ctx context.Context, items []Item, process ProcessFunc, r *run) error {
	feedCtx, stopFeeding := context.WithCancel(ctx)
	defer stopFeeding()

	// In-flight items finish even when the caller cancels.
	workCtx := context.WithoutCancel(ctx)

	tasks := make(chan Item)
	done := make(chan Result)

	go func() {
		defer close(tasks)
		for _, item := range items {
			if feedCtx.Err() != nil {
				return
			}
			select {
			case tasks <- item:
			case <-feedCtx.Done():
				return
			}
		}
	}()

	var g errgroup.Group
	for i := 0; i < d.cfg.Concurrency; i++ {
		g.Go(func() error {
			for item := range tasks {
				started := time.Now()
				res := safeProcess(workCtx, process, item)
				d.cfg.Metrics.observeDuration(time.Since(started))
				done <- res
			}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(done)
	}()

	var persistErr error
	for res := range done {
		if persistErr != nil {
			continue
		}
		if err := r.apply(res); err != nil {
			persistErr = err
			stopFeeding()
			continue
		}
		r.progress.Add(res.Failed())
		r.notify()
	}

	return persistErr
}

// retryFailed re-invokes process once for every failed item, sequentially and
// in submission order, and keeps the new result only when it succeeds. It
// stops at the first item after ctx is canceled and returns ctx.Err().
func (d *Dispatcher) retryFailed(ctx context.Context, items []Item, process ProcessFunc, r *run) error {
	log := logging.ComponentLogger(*logging.FromContext(ctx), "batch")

	var failed []Item
	for _, item := range items {
		if r.results[item.ID].Failed() {
			failed = append(failed, item)
		}
	}
	if len(failed) == 0 {
		return nil
	}

	log.Info().Int("failed", len(failed)).Msg("retrying failed items")

	for _, item := range failed {
		if err := ctx.Err(); err != nil {
			return err
		}

		res := safeProcess(ctx, process, item)
		if res.Failed() {
			log.Warn().Str("item", item.ID).Str("error", res.Err).Msg("final retry failed")
			continue
		}

		if err := r.apply(res); err != nil {
			return err
		}
		r.progress.Recovered()
		r.notify()
	}

	return ctx.Err()
}

// recordCanceled records every item without a result as canceled.
func (d *Dispatcher) recordCanceled(items []Item, r *run) error {
	for _, item := range items {
		if _, ok := r.results[item.ID]; ok {
			continue
		}
		if err := r.apply(Failure(item, ErrCanceled, 0)); err != nil {
			return err
		}
		r.progress.Add(true)
	}
	r.notify()
	return nil
}

// safeProcess runs process and converts a panic into a failure result. The
// result is always keyed by the item it was produced for.
func safeProcess(ctx context.Context, process ProcessFunc, item Item) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Failure(item, fmt.Errorf("panic: %v", p), 1)
		}
	}()

	res = process(ctx, item)
	res.ID = item.ID
	res.Seq = item.Seq
	return res
}

// checkUniqueIDs rejects batches that would collide in the result mapping.
func checkUniqueIDs(items []Item) error {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateID, item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}
