package worker

import (
	"time"

	"github.com/okian/callledger/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithTaskTimeout bounds each task.
func WithTaskTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.taskTimeout = d
		}
	}
}

type poolConfig struct {
	workerOpts []Option
}

// PoolOption configures a Pool.
type PoolOption func(*Pool, *poolConfig)

// WithWorkerOptions applies opts to every worker in the pool.
func WithWorkerOptions(opts ...Option) PoolOption {
	return func(_ *Pool, c *poolConfig) {
		c.workerOpts = append(c.workerOpts, opts...)
	}
}

// WithDrainTimeout bounds how long Serve waits for queued tasks on shutdown.
func WithDrainTimeout(d time.Duration) PoolOption {
	return func(p *Pool, _ *poolConfig) {
		if d > 0 {
			p.drainTimeout = d
		}
	}
}

// WithPoolLogger sets the pool's logger.
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(p *Pool, _ *poolConfig) {
		if l != nil {
			p.logger = l
		}
	}
}
