package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rmitchellscott/epdkit/internal/logging"
)

const (
	defaultWorkerCount = 3
	defaultBufferSize  = 100
)

// Job is one conversion queued on the pool. Name travels through to
// the result so callers can match outputs to sources.
type Job struct {
	ID      uuid.UUID
	Name    string
	Data    []byte
	Options Options
}

// JobResult pairs a finished job with its outcome.
type JobResult struct {
	JobID      uuid.UUID
	Name       string
	Result     *Result
	Err        error
	DurationMs int
}

// Metrics tracks pool counters.
type Metrics struct {
	TotalJobs     int64
	SuccessJobs   int64
	FailedJobs    int64
	ActiveWorkers int32
	QueueLength   int32
}

// Pool fans conversions out over a fixed set of workers. Results come
// back on a buffered channel in completion order.
type Pool struct {
	workerCount int
	workers     []*worker
	jobChan     chan Job
	resultChan  chan JobResult
	quitChan    chan struct{}
	wg          sync.WaitGroup
	metrics     *Metrics

	mu      sync.RWMutex
	running bool
}

type worker struct {
	id           int
	pool         *Pool
	jobChan      <-chan Job
	resultChan   chan<- JobResult
	quitChan     <-chan struct{}
	isProcessing int32
}

// NewPool sizes a pool. Non-positive arguments fall back to defaults.
func NewPool(workerCount, bufferSize int) *Pool {
	if workerCount <= 0 {
		workerCount = defaultWorkerCount
	}
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	pool := &Pool{
		workerCount: workerCount,
		workers:     make([]*worker, workerCount),
		jobChan:     make(chan Job, bufferSize),
		resultChan:  make(chan JobResult, bufferSize),
		quitChan:    make(chan struct{}),
		metrics:     &Metrics{},
	}
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = &worker{
			id:         i,
			pool:       pool,
			jobChan:    pool.jobChan,
			resultChan: pool.resultChan,
			quitChan:   pool.quitChan,
		}
	}
	return pool
}

// Start launches the workers. Starting a running pool is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	logging.InfoWithComponent(logging.ComponentPool, "Starting conversion pool", "workers", p.workerCount)
	p.running = true
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.workers[i].start()
	}
}

// Stop signals the workers, waits for in-flight jobs to finish and
// closes the result channel. Jobs still queued are dropped.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}

	p.running = false
	close(p.quitChan)
	p.wg.Wait()
	close(p.resultChan)
	logging.InfoWithComponent(logging.ComponentPool, "Conversion pool stopped")
}

// Submit queues a job, blocking until there is room in the queue. It
// reports false when the context ends or the pool shuts down first.
func (p *Pool) Submit(ctx context.Context, job Job) bool {
	select {
	case p.jobChan <- job:
		atomic.AddInt32(&p.metrics.QueueLength, 1)
		return true
	case <-ctx.Done():
		return false
	case <-p.quitChan:
		return false
	}
}

// Results yields one entry per processed job.
func (p *Pool) Results() <-chan JobResult {
	return p.resultChan
}

// IsRunning reports whether the pool has been started and not stopped.
func (p *Pool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// GetMetrics returns a snapshot of the pool counters.
func (p *Pool) GetMetrics() Metrics {
	return Metrics{
		TotalJobs:     atomic.LoadInt64(&p.metrics.TotalJobs),
		SuccessJobs:   atomic.LoadInt64(&p.metrics.SuccessJobs),
		FailedJobs:    atomic.LoadInt64(&p.metrics.FailedJobs),
		ActiveWorkers: atomic.LoadInt32(&p.metrics.ActiveWorkers),
		QueueLength:   int32(len(p.jobChan)),
	}
}

func (w *worker) start() {
	defer w.pool.wg.Done()

	logging.DebugWithComponent(logging.ComponentPool, "Starting worker", "worker_id", w.id)
	atomic.AddInt32(&w.pool.metrics.ActiveWorkers, 1)
	defer atomic.AddInt32(&w.pool.metrics.ActiveWorkers, -1)

	for {
		select {
		case <-w.quitChan:
			logging.DebugWithComponent(logging.ComponentPool, "Worker stopping", "worker_id", w.id)
			return
		case job, ok := <-w.jobChan:
			if !ok {
				return
			}
			w.processJob(job)
		}
	}
}

func (w *worker) processJob(job Job) {
	atomic.StoreInt32(&w.isProcessing, 1)
	defer atomic.StoreInt32(&w.isProcessing, 0)

	atomic.AddInt64(&w.pool.metrics.TotalJobs, 1)
	atomic.AddInt32(&w.pool.metrics.QueueLength, -1)

	start := time.Now()
	result, err := Run(job.Data, job.Options)
	durationMs := int(time.Since(start).Milliseconds())

	if err != nil {
		atomic.AddInt64(&w.pool.metrics.FailedJobs, 1)
		logging.ErrorWithComponent(logging.ComponentPool, "Conversion failed",
			"worker_id", w.id, "job_id", job.ID, "name", job.Name, "error", err)
	} else {
		atomic.AddInt64(&w.pool.metrics.SuccessJobs, 1)
		logging.DebugWithComponent(logging.ComponentPool, "Conversion finished",
			"worker_id", w.id, "job_id", job.ID, "name", job.Name, "duration_ms", durationMs)
	}

	w.resultChan <- JobResult{
		JobID:      job.ID,
		Name:       job.Name,
		Result:     result,
		Err:        err,
		DurationMs: durationMs,
	}
}

// ConvertAll runs every job through a dedicated pool and returns the
// results in completion order. Jobs without an ID get one assigned. A
// canceled context abandons jobs not yet submitted; results for jobs
// already queued still arrive.
func ConvertAll(ctx context.Context, jobs []Job, workers int) []JobResult {
	pool := NewPool(workers, len(jobs))
	pool.Start()
	defer pool.Stop()

	submitted := 0
	for _, job := range jobs {
		if job.ID == uuid.Nil {
			job.ID = uuid.New()
		}
		if pool.Submit(ctx, job) {
			submitted++
		}
	}

	results := make([]JobResult, 0, submitted)
	for i := 0; i < submitted; i++ {
		results = append(results, <-pool.Results())
	}
	return results
}
