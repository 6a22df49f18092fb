package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/endogpt/endokit/internal/engine/snapshot"
)

func numberedItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		id := strconv.Itoa(i + 1)
		items[i] = Item{ID: id, Seq: i, Input: "input-" + id}
	}
	return items
}

func newTestDispatcher(t *testing.T, concurrency int) (*Dispatcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results", "analysis.json")
	d, err := NewDispatcher(Config{Concurrency: concurrency, OutputPath: path})
	require.NoError(t, err)
	return d, path
}

func okProcess(_ context.Context, item Item) Result {
	return Success(item, "ok-"+item.ID, 1)
}

func TestDispatcher_Run_AllSucceed(t *testing.T) {
	d, path := newTestDispatcher(t, 4)
	items := numberedItems(8)

	results, err := d.Run(context.Background(), items, okProcess)
	require.NoError(t, err)
	require.Len(t, results, 8)

	for i := 1; i <= 8; i++ {
		id := strconv.Itoa(i)
		assert.Equal(t, "ok-"+id, results[id].Output)
		assert.False(t, results[id].Failed())
	}

	snap, err := snapshot.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, snap.Stats.TotalImages)
	assert.NotEmpty(t, snap.Stats.RunID)
	require.NotNil(t, snap.Stats.TotalTimeSeconds)
	require.NotNil(t, snap.Stats.AvgTimePerImageSeconds)
	require.NotNil(t, snap.Stats.TimestampEnd)
	assert.Empty(t, snap.Failures)

	for id, res := range results {
		assert.Equal(t, res.Text(), snap.Results[id])
	}
	assert.Len(t, snap.Results, len(results))

	_, statErr := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(statErr), "temp file must not survive a successful run")
}

func TestDispatcher_Run_IntermediateSnapshotsAreComplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.json")
	items := numberedItems(6)

	var checks int
	d, err := NewDispatcher(Config{
		Concurrency: 3,
		OutputPath:  path,
		OnProgress: func(p ProgressSnapshot) {
			snap, loadErr := snapshot.Load(path)
			require.NoError(t, loadErr)
			assert.Equal(t, len(items), snap.Stats.TotalImages)
			assert.Len(t, snap.Results, p.ProcessedItems)
			assert.Nil(t, snap.Stats.TimestampEnd, "final stats appear only in the last write")
			checks++
		},
	})
	require.NoError(t, err)

	_, err = d.Run(context.Background(), items, okProcess)
	require.NoError(t, err)
	assert.Equal(t, len(items), checks)
}

func TestDispatcher_Run_InitialSnapshotBeforeWork(t *testing.T) {
	d, path := newTestDispatcher(t, 1)
	items := numberedItems(2)

	var sawInitial atomic.Bool
	process := func(ctx context.Context, item Item) Result {
		if item.ID == "1" {
			snap, err := snapshot.Load(path)
			if err == nil && snap.Stats.TotalImages == 2 && len(snap.Results) == 0 {
				sawInitial.Store(true)
			}
		}
		return okProcess(ctx, item)
	}

	_, err := d.Run(context.Background(), items, process)
	require.NoError(t, err)
	assert.True(t, sawInitial.Load())
}

func TestDispatcher_Run_ConcurrencyCap(t *testing.T) {
	const limit = 3
	d, _ := newTestDispatcher(t, limit)

	var inFlight, peak int32
	process := func(_ context.Context, item Item) Result {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return Success(item, item.ID, 1)
	}

	results, err := d.Run(context.Background(), numberedItems(20), process)
	require.NoError(t, err)
	assert.Len(t, results, 20)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(limit))
	assert.Positive(t, atomic.LoadInt32(&peak))
}

func TestDispatcher_Run_FailureIsRecorded(t *testing.T) {
	d, path := newTestDispatcher(t, 2)
	items := numberedItems(3)

	var calls sync.Map
	call := func(_ context.Context, item Item) (string, error) {
		n, _ := calls.LoadOrStore(item.ID, new(int32))
		atomic.AddInt32(n.(*int32), 1)
		if item.ID == "2" {
			return "", errors.New("upstream unavailable")
		}
		return "ok-" + item.ID, nil
	}
	process := Retrying(call, nil, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}, nil)

	results, err := d.Run(context.Background(), items, process)
	require.NoError(t, err)
	require.Len(t, results, 3)

	failed := results["2"]
	assert.True(t, failed.Failed())
	assert.Equal(t, 3, failed.Attempts)
	assert.Contains(t, failed.Err, "upstream unavailable")
	assert.Equal(t, "ok-1", results["1"].Output)
	assert.Equal(t, "ok-3", results["3"].Output)

	// Three attempts in the pool plus three more from the final retry pass.
	n, _ := calls.Load("2")
	assert.Equal(t, int32(6), atomic.LoadInt32(n.(*int32)))

	snap, err := snapshot.Load(path)
	require.NoError(t, err)
	assert.Equal(t, failed.Text(), snap.Results["2"])
	assert.Contains(t, snap.Results["2"], "after 3 attempts")
	assert.Equal(t, snapshot.Failure{Error: failed.Err, Attempts: 3}, snap.Failures["2"])
}

func TestDispatcher_Run_FinalRetryPassRecovers(t *testing.T) {
	d, path := newTestDispatcher(t, 2)
	items := numberedItems(3)

	var invocations int32
	call := func(_ context.Context, item Item) (string, error) {
		if item.ID != "2" {
			return "ok-" + item.ID, nil
		}
		if atomic.AddInt32(&invocations, 1) < 4 {
			return "", errors.New("rate limited")
		}
		return "ok-2", nil
	}
	process := Retrying(call, nil, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, nil)

	results, err := d.Run(context.Background(), items, process)
	require.NoError(t, err)

	assert.False(t, results["2"].Failed())
	assert.Equal(t, "ok-2", results["2"].Output)
	assert.Equal(t, int32(4), atomic.LoadInt32(&invocations))

	snap, err := snapshot.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ok-2", snap.Results["2"])
	assert.Empty(t, snap.Failures)
}

func TestDispatcher_Run_RetryPassIsSequential(t *testing.T) {
	d, _ := newTestDispatcher(t, 4)
	items := numberedItems(8)

	var (
		mu       sync.Mutex
		poolDone bool
		inPass   int32
		peak     int32
		seen     = map[string]int{}
	)
	process := func(_ context.Context, item Item) Result {
		mu.Lock()
		seen[item.ID]++
		second := seen[item.ID] > 1
		if len(seen) == len(items) {
			poolDone = true
		}
		mu.Unlock()

		if second {
			cur := atomic.AddInt32(&inPass, 1)
			if cur > atomic.LoadInt32(&peak) {
				atomic.StoreInt32(&peak, cur)
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inPass, -1)
			return Success(item, "late", 2)
		}
		return Failure(item, errors.New("first try fails"), 3)
	}

	results, err := d.Run(context.Background(), items, process)
	require.NoError(t, err)
	assert.True(t, poolDone)
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
	for _, res := range results {
		assert.Equal(t, "late", res.Output)
	}
}

func TestDispatcher_Run_PanicBecomesFailure(t *testing.T) {
	d, _ := newTestDispatcher(t, 2)
	process := func(ctx context.Context, item Item) Result {
		if item.ID == "1" {
			panic("boom")
		}
		return okProcess(ctx, item)
	}

	results, err := d.Run(context.Background(), numberedItems(2), process)
	require.NoError(t, err)
	assert.True(t, results["1"].Failed())
	assert.Contains(t, results["1"].Err, "boom")
	assert.Equal(t, "ok-2", results["2"].Output)
}

func TestDispatcher_Run_ResultKeyedByItem(t *testing.T) {
	d, _ := newTestDispatcher(t, 2)
	process := func(_ context.Context, item Item) Result {
		return Result{ID: "wrong", Output: item.Input}
	}

	results, err := d.Run(context.Background(), numberedItems(3), process)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, "input-2", results["2"].Output)
	assert.Equal(t, 1, results["2"].Seq)
}

func TestDispatcher_Run_Cancellation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.json")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := NewDispatcher(Config{
		Concurrency: 1,
		OutputPath:  path,
		OnProgress: func(ProgressSnapshot) {
			cancel()
		},
	})
	require.NoError(t, err)

	items := numberedItems(5)
	results, err := d.Run(ctx, items, okProcess)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, len(items))

	assert.Equal(t, "ok-1", results["1"].Output)
	canceled := 0
	for _, res := range results {
		if res.Failed() {
			assert.Equal(t, ErrCanceled.Error(), res.Err)
			assert.Equal(t, 0, res.Attempts)
			canceled++
		}
	}
	assert.GreaterOrEqual(t, canceled, 2)

	snap, err := snapshot.Load(path)
	require.NoError(t, err)
	assert.Len(t, snap.Results, len(items))
	assert.NotNil(t, snap.Stats.TimestampEnd)
}

func TestDispatcher_Run_CancellationDuringRetryPass(t *testing.T) {
	d, path := newTestDispatcher(t, 2)
	items := numberedItems(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls2, calls3 int32
	call := func(_ context.Context, item Item) (string, error) {
		switch item.ID {
		case "2":
			if atomic.AddInt32(&calls2, 1) == 4 {
				cancel()
			}
			return "", errors.New("boom")
		case "3":
			atomic.AddInt32(&calls3, 1)
			return "", errors.New("boom")
		}
		return "ok-" + item.ID, nil
	}
	process := Retrying(call, nil, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, nil)

	results, err := d.Run(ctx, items, process)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, len(items))

	assert.True(t, results["2"].Failed())
	assert.Equal(t, 3, results["2"].Attempts)
	assert.True(t, results["3"].Failed())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls3), "item 3 is not retried after cancellation")
	assert.Equal(t, "ok-4", results["4"].Output)

	snap, err := snapshot.Load(path)
	require.NoError(t, err)
	assert.Len(t, snap.Results, len(items))
	assert.NotNil(t, snap.Stats.TimestampEnd)
}

func TestDispatcher_Run_SnapshotWriteFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "analysis.json")
	d, err := NewDispatcher(Config{Concurrency: 1, OutputPath: path})
	require.NoError(t, err)

	var once sync.Once
	process := func(ctx context.Context, item Item) Result {
		once.Do(func() {
			// Replace the snapshot with a non-empty directory so the rename fails.
			assert.NoError(t, os.Remove(path))
			assert.NoError(t, os.MkdirAll(filepath.Join(path, "blocker"), 0o750))
		})
		return okProcess(ctx, item)
	}

	results, err := d.Run(context.Background(), numberedItems(3), process)
	require.Error(t, err)
	assert.Nil(t, results)
	assert.Contains(t, err.Error(), "persisting result")
}

func TestDispatcher_Run_OutputDirectoryNotCreatable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	d, err := NewDispatcher(Config{Concurrency: 1, OutputPath: filepath.Join(blocker, "sub", "out.json")})
	require.NoError(t, err)

	var called atomic.Bool
	_, err = d.Run(context.Background(), numberedItems(1), func(ctx context.Context, item Item) Result {
		called.Store(true)
		return okProcess(ctx, item)
	})
	require.Error(t, err)
	assert.False(t, called.Load(), "no work may start when the snapshot cannot be created")
}

func TestDispatcher_Run_InvalidInput(t *testing.T) {
	d, _ := newTestDispatcher(t, 2)

	t.Run("EmptyItems", func(t *testing.T) {
		_, err := d.Run(context.Background(), nil, okProcess)
		assert.ErrorIs(t, err, ErrEmptyItems)
	})

	t.Run("NilProcess", func(t *testing.T) {
		_, err := d.Run(context.Background(), numberedItems(1), nil)
		assert.ErrorIs(t, err, ErrNilProcess)
	})

	t.Run("DuplicateID", func(t *testing.T) {
		items := []Item{{ID: "a"}, {ID: "b"}, {ID: "a"}}
		_, err := d.Run(context.Background(), items, okProcess)
		assert.ErrorIs(t, err, ErrDuplicateID)
	})
}

func TestNewDispatcher_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "zero concurrency", cfg: Config{Concurrency: 0, OutputPath: "x.json"}, wantErr: ErrInvalidConcurrency},
		{name: "too many workers", cfg: Config{Concurrency: MaxConcurrency + 1, OutputPath: "x.json"}, wantErr: ErrInvalidConcurrency},
		{name: "missing path", cfg: Config{Concurrency: 1}, wantErr: ErrEmptyOutputPath},
		{name: "valid", cfg: Config{Concurrency: DefaultConcurrency, OutputPath: "x.json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDispatcher(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, d)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, d)
		})
	}
}

func TestResult_Text(t *testing.T) {
	ok := Success(Item{ID: "a"}, "fine", 1)
	assert.Equal(t, "fine", ok.Text())

	bad := Failure(Item{ID: "a"}, fmt.Errorf("timeout"), 3)
	assert.Equal(t, "Error processing item after 3 attempts: timeout", bad.Text())

	unknown := Failure(Item{ID: "a"}, nil, 1)
	assert.True(t, unknown.Failed())
}
