// Package worker runs side-effect tasks off the request path.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/callledger/internal/adapters/mq/queue"
	"github.com/okian/callledger/pkg/logger"
	"github.com/okian/callledger/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount  = 4
	defaultTaskTimeout  = 10 * time.Second
	defaultDrainTimeout = 30 * time.Second
)

// Task is what workers run.
type Task = queue.Task

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Task
}

// InMemoryWorker runs side effect tasks until its queue is closed or it is
// told to stop.
type InMemoryWorker struct {
	queue       Queue
	name        string
	taskTimeout time.Duration

	processed atomic.Int64
	failed    atomic.Int64

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       q,
		name:        "worker",
		taskTimeout: defaultTaskTimeout,
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run processes tasks until the queue channel closes or Shutdown is called.
// Cancelling ctx does not stop the loop; it only bounds running tasks, so a
// closed queue can still be drained during shutdown.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	tasks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-w.shutdown:
			return
		case t, ok := <-tasks:
			if !ok {
				return
			}
			if err := w.process(ctx, t); err != nil {
				w.failed.Add(1)
				w.logger.Warn(ctx, "side effect failed",
					logger.String("task", t.Name),
					logger.String("call_id", t.CallID),
					logger.Error(err))
			}
			w.processed.Add(1)
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
}

// Processed returns how many tasks this worker finished.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

// Failed returns how many tasks returned an error or panicked.
func (w *InMemoryWorker) Failed() int64 { return w.failed.Load() }

// process runs one task under its own deadline. The deadline is detached
// from ctx cancellation so queued work finishes during shutdown.
func (w *InMemoryWorker) process(ctx context.Context, t Task) (err error) {
	start := time.Now()
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.taskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.Name, r)
			w.logger.Error(ctx, "side effect panicked",
				logger.String("task", t.Name),
				logger.String("call_id", t.CallID),
				logger.String("stack", string(debug.Stack())))
			metrics.RecordSideEffect(t.Name, "panic")
		}
		metrics.RecordSideEffectLatency(t.Name, float64(time.Since(start).Milliseconds()))
	}()

	if err := t.Run(tctx); err != nil {
		metrics.RecordSideEffect(t.Name, "error")
		return err
	}
	metrics.RecordSideEffect(t.Name, "ok")
	return nil
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers      []*InMemoryWorker
	queue        Queue
	drainTimeout time.Duration

	logger logger.Logger
}

// NewPool creates workerCount workers reading from q.
func NewPool(workerCount int, q Queue, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	p := &Pool{
		workers:      make([]*InMemoryWorker, workerCount),
		queue:        q,
		drainTimeout: defaultDrainTimeout,
		logger:       logger.Get().Named("worker-pool"),
	}
	cfg := poolConfig{}
	for _, opt := range opts {
		opt(p, &cfg)
	}

	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, cfg.workerOpts...)
		p.workers[i] = NewInMemoryWorker(q, wopts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Serve runs the pool until ctx is cancelled, then drains it. It satisfies
// suture.Service.
func (p *Pool) Serve(ctx context.Context) error {
	p.Start(ctx)
	<-ctx.Done()

	drainCtx, cancel := context.WithTimeout(context.Background(), p.drainTimeout)
	defer cancel()
	if err := p.Shutdown(drainCtx); err != nil {
		return err
	}
	return ctx.Err()
}

// String names the pool for the supervisor.
func (p *Pool) String() string { return "side-effect-pool" }

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns tasks finished across all workers.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Failed returns failed tasks across all workers.
func (p *Pool) Failed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Failed()
	}
	return n
}

// Shutdown closes the queue and lets workers drain it until ctx expires,
// then stops whatever is still running.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
		}
	}
	if !timedOut {
		return nil
	}

	// Workers stuck in a task exit once it returns or hits its deadline.
	for _, w := range p.workers {
		w.stop()
	}
	return fmt.Errorf("drain incomplete: %w", ctx.Err())
}
