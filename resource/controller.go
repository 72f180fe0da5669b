// Package resource bounds the work done on behalf of a simulation: the
// number of concurrent predictor workers, the memory reserved for scoring
// buffers and the pace at which an oracle hands out labels.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for scoring buffers.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxWorkers is the maximum number of concurrent predictor workers.
	// If 0, defaults to 1.
	MaxWorkers int64

	// LabelsPerSecond is the sustained labelling throughput.
	// If 0, unlimited.
	LabelsPerSecond float64

	// LabelBurst is the number of labels that may be handed out at once.
	// If 0, defaults to 1.
	LabelBurst int
}

// Controller manages shared limits. A nil *Controller imposes none.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Concurrency
	workerSem *semaphore.Weighted

	// Labelling
	labelLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.LabelBurst <= 0 {
		cfg.LabelBurst = 1
	}

	c := &Controller{
		cfg:       cfg,
		workerSem: semaphore.NewWeighted(cfg.MaxWorkers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.LabelsPerSecond > 0 {
		c.labelLimiter = rate.NewLimiter(rate.Limit(cfg.LabelsPerSecond), cfg.LabelBurst)
	}

	return c
}

// Workers returns the worker limit.
func (c *Controller) Workers() int {
	if c == nil {
		return 1
	}
	return int(c.cfg.MaxWorkers)
}

// AcquireMemory reserves memory for a scoring buffer.
// If a hard limit is configured and usage would exceed it,
// this blocks until memory is available or ctx is canceled.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireWorker reserves a worker slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	if c == nil {
		return ctx.Err()
	}
	return c.workerSem.Acquire(ctx, 1)
}

// ReleaseWorker releases a worker slot.
func (c *Controller) ReleaseWorker() {
	if c == nil {
		return
	}
	c.workerSem.Release(1)
}

// AcquireLabels waits until the labelling rate allows n more labels.
func (c *Controller) AcquireLabels(ctx context.Context, n int) error {
	if c == nil || c.labelLimiter == nil || n <= 0 {
		return ctx.Err()
	}
	// WaitN rejects n above the burst, so wait in burst-sized steps.
	burst := c.labelLimiter.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := c.labelLimiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
