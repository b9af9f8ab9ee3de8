// Package worker runs queued batch jobs to completion.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/survcast/internal/adapters/mq/queue"
	"github.com/okian/survcast/internal/batch"
	"github.com/okian/survcast/pkg/logger"
	"github.com/okian/survcast/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Job is what workers read off the queue.
type Job = queue.Job

// Processor scores one job's upload.
type Processor interface {
	Process(ctx context.Context, j Job) (*batch.Result, error)
}

// Tracker records job lifecycle transitions.
type Tracker interface {
	Start(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, res *batch.Result) error
	Fail(ctx context.Context, id string, reason string) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes jobs until its queue is drained or it is stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	tracker   Tracker
	name      string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, p Processor, t Tracker, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		processor: p,
		tracker:   t,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.processJob(ctx, j); err != nil {
				w.logger.Error(ctx, "job failed", logger.String("jobID", j.ID), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) processJob(ctx context.Context, j Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()
	metrics.AddWorkerActive(1)
	defer func() {
		metrics.AddWorkerActive(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.tracker.Start(ctx, j.ID); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "tracker_error")
		return fmt.Errorf("start job %s: %w", j.ID, err)
	}

	res, err := w.processor.Process(ctx, j)
	if err == nil && res == nil {
		err = fmt.Errorf("processor returned no result")
	}
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "process_error")
		if terr := w.tracker.Fail(ctx, j.ID, err.Error()); terr != nil {
			w.logger.Error(ctx, "could not mark job failed", logger.String("jobID", j.ID), logger.Error(terr))
		}
		return fmt.Errorf("process job %s: %w", j.ID, err)
	}

	if err := w.tracker.Complete(ctx, j.ID, res); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "tracker_error")
		return fmt.Errorf("complete job %s: %w", j.ID, err)
	}

	w.logger.Info(ctx, "job done",
		logger.String("jobID", j.ID),
		logger.String("file", j.FileName),
		logger.Int("patients", res.TotalPatients),
		logger.Int("failed", res.FailedPatients),
	)
	return nil
}

// Closer is implemented by queues that can stop accepting jobs.
type Closer interface {
	Close() error
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers; a count below 1 means one
// per CPU.
func NewPool(workerCount int, q Queue, p Processor, t Tracker) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range workerCount {
		pool.workers[i] = NewInMemoryWorker(q, p, t, WithName("worker-"+strconv.Itoa(i)))
	}

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and lets workers drain it. Workers still busy
// when ctx (or the pool's own timeout) expires are told to stop.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(Closer); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	drainCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-drainCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker still busy at shutdown", logger.Int("worker_id", i))
		}
	}
	if timedOut {
		for _, w := range p.workers {
			select {
			case <-w.done:
			default:
				close(w.shutdown)
			}
		}
		return fmt.Errorf("worker pool shutdown: %w", drainCtx.Err())
	}
	return nil
}
