package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"synccursor/pkg/logger"
	"synccursor/pkg/traversal"
)

var (
	// ErrPoolStopped is returned when submitting to a stopped pool
	ErrPoolStopped = errors.New("worker pool is shutting down")

	// ErrAlreadyQueued is returned when a pass for the connector is queued
	// or running
	ErrAlreadyQueued = errors.New("connector pass already queued")
)

// PassRunner runs one traversal pass for a connector
type PassRunner interface {
	Run(ctx context.Context, name string) (*traversal.Result, error)
}

// Job is a pass to run
type Job struct {
	Name string
}

// JobResult is the outcome of a pass
type JobResult struct {
	Name     string
	Result   *traversal.Result
	Err      error
	Duration time.Duration
}

// WorkerPool runs passes of different connectors concurrently. A connector
// never has two passes in flight, since both would resume from and save the
// same checkpoint.
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan JobResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	runner      PassRunner
	logger      logger.Logger

	// quit is closed by Stop before jobQueue, so blocked senders give up
	// instead of sending on a closed channel
	quit    chan struct{}
	senders sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]bool
	stopped  bool
}

// NewWorkerPool creates a pool of numWorkers workers. Passes run with a
// context derived from ctx.
func NewWorkerPool(ctx context.Context, numWorkers int, runner PassRunner, log logger.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}

	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan JobResult, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		runner:      runner,
		logger:      log,
		quit:        make(chan struct{}),
		inFlight:    make(map[string]bool),
	}
}

// Start starts all workers
func (wp *WorkerPool) Start() {
	wp.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop waits for queued passes to finish and closes the result channel.
// Submit calls blocked on a full queue return ErrPoolStopped.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.quit)
	wp.mu.Unlock()

	wp.senders.Wait()
	close(wp.jobQueue)

	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Info("Worker pool stopped")
}

// Cancel aborts running passes. Queued passes fail with the context error.
func (wp *WorkerPool) Cancel() {
	wp.cancel()
}

// Submit queues a pass. It blocks while the queue is full.
func (wp *WorkerPool) Submit(job Job) error {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return ErrPoolStopped
	}
	if wp.inFlight[job.Name] {
		wp.mu.Unlock()
		return ErrAlreadyQueued
	}
	wp.inFlight[job.Name] = true
	wp.senders.Add(1)
	wp.mu.Unlock()
	defer wp.senders.Done()

	select {
	case wp.jobQueue <- job:
		wp.logger.DebugWithFields("Job submitted to queue", map[string]interface{}{
			"connector":  job.Name,
			"queue_size": wp.QueueSize(),
		})
		return nil
	case <-wp.quit:
		wp.release(job.Name)
		return ErrPoolStopped
	case <-wp.ctx.Done():
		wp.release(job.Name)
		return ErrPoolStopped
	}
}

// Results returns the channel results are delivered on. It must be drained
// for workers to make progress.
func (wp *WorkerPool) Results() <-chan JobResult {
	return wp.resultQueue
}

// QueueSize returns the number of passes waiting for a worker
func (wp *WorkerPool) QueueSize() int {
	return len(wp.jobQueue)
}

func (wp *WorkerPool) release(name string) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	delete(wp.inFlight, name)
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		result := wp.processJob(job, id)
		wp.release(job.Name)

		// Results are always delivered so that every submitted job is
		// accounted for
		wp.resultQueue <- result
	}

	wp.logger.DebugWithFields("Worker stopping - job queue closed", map[string]interface{}{
		"worker_id": id,
	})
}

func (wp *WorkerPool) processJob(job Job, workerID int) JobResult {
	start := time.Now()
	result := JobResult{Name: job.Name}

	if err := wp.ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	res, err := wp.runner.Run(wp.ctx, job.Name)
	result.Result = res
	result.Err = err
	result.Duration = time.Since(start)

	fields := map[string]interface{}{
		"worker_id": workerID,
		"connector": job.Name,
		"duration":  result.Duration,
	}
	if err != nil {
		wp.logger.WithError(err).ErrorWithFields("Pass failed", fields)
	} else {
		wp.logger.DebugWithFields("Pass completed", fields)
	}
	return result
}

// RunAll runs one pass for each name with up to workers passes at a time and
// returns the results in the order of names. Duplicate names run once.
func RunAll(ctx context.Context, runner PassRunner, names []string, workers int, log logger.Logger) []JobResult {
	pool := NewWorkerPool(ctx, workers, runner, log)
	pool.Start()

	collected := make(map[string]JobResult, len(names))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for result := range pool.Results() {
			collected[result.Name] = result
		}
	}()

	rejected := make(map[string]JobResult)
	seen := make(map[string]bool, len(names))
	var order []string
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		order = append(order, name)
		if err := pool.Submit(Job{Name: name}); err != nil {
			rejected[name] = JobResult{Name: name, Err: err}
		}
	}

	pool.Stop()
	<-done

	for name, result := range rejected {
		collected[name] = result
	}

	results := make([]JobResult, 0, len(order))
	for _, name := range order {
		results = append(results, collected[name])
	}
	return results
}
