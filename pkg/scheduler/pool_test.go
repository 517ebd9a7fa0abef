package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"synccursor/pkg/checkpoint"
	"synccursor/pkg/logger"
	"synccursor/pkg/store"
	"synccursor/pkg/traversal"
)

// mockRunner records passes and tracks how many run at once
type mockRunner struct {
	delay   time.Duration
	failFor map[string]error

	calls   int32
	running int32
	peak    int32

	mu    sync.Mutex
	names map[string]int
}

func newMockRunner(delay time.Duration) *mockRunner {
	return &mockRunner{delay: delay, failFor: make(map[string]error), names: make(map[string]int)}
}

func (m *mockRunner) Run(ctx context.Context, name string) (*traversal.Result, error) {
	atomic.AddInt32(&m.calls, 1)
	now := atomic.AddInt32(&m.running, 1)
	defer atomic.AddInt32(&m.running, -1)
	for {
		peak := atomic.LoadInt32(&m.peak)
		if now <= peak || atomic.CompareAndSwapInt32(&m.peak, peak, now) {
			break
		}
	}

	m.mu.Lock()
	m.names[name]++
	m.mu.Unlock()

	select {
	case <-time.After(m.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := m.failFor[name]; err != nil {
		return nil, err
	}
	return &traversal.Result{Token: "token-" + name, Changed: true}, nil
}

func collect(pool *WorkerPool) (*[]JobResult, *sync.WaitGroup) {
	var results []JobResult
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for result := range pool.Results() {
			results = append(results, result)
		}
	}()
	return &results, &wg
}

func TestWorkerPoolBasicFunctionality(t *testing.T) {
	runner := newMockRunner(10 * time.Millisecond)
	pool := NewWorkerPool(context.Background(), 3, runner, logger.NewNopLogger())
	pool.Start()
	results, wg := collect(pool)

	numJobs := 10
	for i := 0; i < numJobs; i++ {
		require.NoError(t, pool.Submit(Job{Name: fmt.Sprintf("connector%d", i)}))
	}

	pool.Stop()
	wg.Wait()

	require.Len(t, *results, numJobs)
	for _, result := range *results {
		assert.NoError(t, result.Err)
		assert.Equal(t, "token-"+result.Name, result.Result.Token)
		assert.Greater(t, result.Duration, time.Duration(0))
	}
	assert.Equal(t, int32(numJobs), atomic.LoadInt32(&runner.calls))
}

func TestWorkerPoolWithErrors(t *testing.T) {
	runner := newMockRunner(time.Millisecond)
	runner.failFor["broken"] = errors.New("repository unreachable")

	pool := NewWorkerPool(context.Background(), 2, runner, logger.NewNopLogger())
	pool.Start()
	results, wg := collect(pool)

	require.NoError(t, pool.Submit(Job{Name: "ok"}))
	require.NoError(t, pool.Submit(Job{Name: "broken"}))
	pool.Stop()
	wg.Wait()

	require.Len(t, *results, 2)
	for _, result := range *results {
		if result.Name == "broken" {
			assert.EqualError(t, result.Err, "repository unreachable")
			assert.Nil(t, result.Result)
		} else {
			assert.NoError(t, result.Err)
		}
	}
}

func TestWorkerPoolConcurrency(t *testing.T) {
	runner := newMockRunner(50 * time.Millisecond)
	pool := NewWorkerPool(context.Background(), 4, runner, logger.NewNopLogger())
	pool.Start()
	_, wg := collect(pool)

	start := time.Now()
	for i := 0; i < 8; i++ {
		require.NoError(t, pool.Submit(Job{Name: fmt.Sprintf("c%d", i)}))
	}
	pool.Stop()
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&runner.peak), int32(4))
	assert.Greater(t, atomic.LoadInt32(&runner.peak), int32(1))
	assert.Less(t, time.Since(start), 8*50*time.Millisecond, "passes ran in parallel")
}

func TestWorkerPoolRejectsDuplicateConnector(t *testing.T) {
	runner := newMockRunner(50 * time.Millisecond)
	pool := NewWorkerPool(context.Background(), 2, runner, logger.NewNopLogger())
	pool.Start()
	results, wg := collect(pool)

	require.NoError(t, pool.Submit(Job{Name: "docs"}))
	assert.ErrorIs(t, pool.Submit(Job{Name: "docs"}), ErrAlreadyQueued)

	pool.Stop()
	wg.Wait()

	assert.Len(t, *results, 1)
	assert.ErrorIs(t, pool.Submit(Job{Name: "docs"}), ErrPoolStopped)
}

func TestWorkerPoolStopWithBlockedSubmits(t *testing.T) {
	runner := newMockRunner(20 * time.Millisecond)
	pool := NewWorkerPool(context.Background(), 1, runner, logger.NewNopLogger())
	pool.Start()
	results, wg := collect(pool)

	var accepted, rejected int32
	var submitters sync.WaitGroup
	for i := 0; i < 8; i++ {
		submitters.Add(1)
		go func(i int) {
			defer submitters.Done()
			err := pool.Submit(Job{Name: fmt.Sprintf("c%d", i)})
			switch {
			case err == nil:
				atomic.AddInt32(&accepted, 1)
			case errors.Is(err, ErrPoolStopped):
				atomic.AddInt32(&rejected, 1)
			default:
				t.Errorf("unexpected submit error: %v", err)
			}
		}(i)
	}

	time.Sleep(5 * time.Millisecond)
	pool.Stop()
	submitters.Wait()
	wg.Wait()

	assert.Equal(t, int32(8), accepted+rejected)
	assert.Greater(t, rejected, int32(0), "submits blocked on the full queue give up")
	assert.Len(t, *results, int(accepted), "every accepted pass is reported")
	assert.Equal(t, 0, pool.QueueSize())
}

func TestWorkerPoolCancel(t *testing.T) {
	runner := newMockRunner(time.Hour)
	pool := NewWorkerPool(context.Background(), 1, runner, logger.NewNopLogger())
	pool.Start()
	results, wg := collect(pool)

	require.NoError(t, pool.Submit(Job{Name: "slow"}))
	require.NoError(t, pool.Submit(Job{Name: "queued"}))
	pool.Cancel()
	pool.Stop()
	wg.Wait()

	require.Len(t, *results, 2)
	for _, result := range *results {
		assert.ErrorIs(t, result.Err, context.Canceled)
	}
}

func TestRunAll(t *testing.T) {
	runner := newMockRunner(time.Millisecond)
	runner.failFor["b"] = errors.New("boom")

	results := RunAll(context.Background(), runner, []string{"a", "b", "a", "c"}, 2, logger.NewNopLogger())
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Name)
	assert.Equal(t, "b", results[1].Name)
	assert.Equal(t, "c", results[2].Name)
	assert.Error(t, results[1].Err)
	assert.Equal(t, 1, runner.names["a"], "duplicate names run once")
}

// listRepository serves the same inserted items to every connector
type listRepository struct {
	items []traversal.Item
}

func (r *listRepository) FindInserted(ctx context.Context, channel traversal.Channel, after checkpoint.Mark, limit int) ([]traversal.Item, error) {
	var out []traversal.Item
	for _, it := range r.items {
		if after.Date.Valid && !it.Date.After(after.Date.Time) {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *listRepository) FindDeleted(ctx context.Context, after checkpoint.Mark, limit int) ([]traversal.Item, error) {
	return nil, nil
}

type countingIndex struct {
	fed int32
}

func (x *countingIndex) Feed(ctx context.Context, it traversal.Item) error {
	atomic.AddInt32(&x.fed, 1)
	return nil
}

func (x *countingIndex) Remove(ctx context.Context, it traversal.Item) error { return nil }

func TestRunAllWithTraversalRunner(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2009, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := &listRepository{items: []traversal.Item{
		{ID: "x", Date: base},
		{ID: "y", Date: base.Add(time.Minute)},
	}}
	index := &countingIndex{}
	log := logger.NewNopLogger()

	tr := traversal.New(repo, index, traversal.Options{
		Checkpoint: &checkpoint.Options{Location: time.UTC, Logger: log},
		Logger:     log,
	})
	cursors := store.NewMockStore()
	runner := traversal.NewRunner(tr, cursors, log)

	results := RunAll(ctx, runner, []string{"north", "south"}, 2, log)
	require.Len(t, results, 2)
	for _, result := range results {
		require.NoError(t, result.Err)
		assert.Equal(t, 2, result.Result.Inserted)

		saved, err := cursors.Load(ctx, result.Name)
		require.NoError(t, err)
		assert.Equal(t, `{"uuid":"y","lastModified":"2009-06-01 12:01:00"}`, saved)
	}
	assert.Equal(t, int32(4), atomic.LoadInt32(&index.fed))
}
