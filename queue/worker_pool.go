package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/naashmtp/odoo-shopify-connector/core"
)

const defaultPollInterval = 5 * time.Second

// Runner is the part of Engine a WorkerPool drives.
type Runner interface {
	RunOnce(ctx context.Context, limit int) (core.RunStats, error)
}

// WorkerPool polls a Runner from N goroutines until Stop is called or the
// context given to Start is cancelled.
type WorkerPool struct {
	runner       Runner
	workers      int
	batchSize    int
	pollInterval time.Duration
	observer     core.Observer

	running    *atomic.Bool
	closing    *atomic.Bool
	executed   *atomic.Int64
	succeeded  *atomic.Int64
	failed     *atomic.Int64
	errors     *atomic.Int64
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

type PoolStats struct {
	Executed  int64
	Succeeded int64
	Failed    int64
	Errors    int64
}

func NewWorkerPool(runner Runner, cfg core.QueueConfig, observer core.Observer) *WorkerPool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &WorkerPool{
		runner:       runner,
		workers:      workers,
		batchSize:    batchSize,
		pollInterval: poll,
		observer:     observer,
		running:      atomic.NewBool(false),
		closing:      atomic.NewBool(false),
		executed:     atomic.NewInt64(0),
		succeeded:    atomic.NewInt64(0),
		failed:       atomic.NewInt64(0),
		errors:       atomic.NewInt64(0),
		shutdownCh:   make(chan struct{}),
	}
}

// Start launches the workers. It returns false when the pool was already
// started.
func (p *WorkerPool) Start(ctx context.Context) bool {
	if p == nil || p.runner == nil {
		return false
	}
	if !p.running.CAS(false, true) {
		return false
	}
	p.observer.Info(ctx, "queue: worker pool starting", map[string]any{
		"workers":       p.workers,
		"poll_interval": p.pollInterval.String(),
	})
	for index := 0; index < p.workers; index++ {
		p.wg.Add(1)
		go p.loop(ctx, index)
	}
	return true
}

// Stop signals every worker and waits for in-flight batches to finish.
func (p *WorkerPool) Stop() {
	if p == nil {
		return
	}
	if !p.closing.CAS(false, true) {
		return
	}
	close(p.shutdownCh)
	p.wg.Wait()
	p.observer.Info(context.Background(), "queue: worker pool stopped", p.fields())
}

func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Executed:  p.executed.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		Errors:    p.errors.Load(),
	}
}

func (p *WorkerPool) loop(ctx context.Context, index int) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if p.closing.Load() || ctx.Err() != nil {
			return
		}
		stats, err := p.runner.RunOnce(ctx, p.batchSize)
		p.executed.Add(int64(stats.Claimed))
		p.succeeded.Add(int64(stats.Succeeded))
		p.failed.Add(int64(stats.Failed))
		if err != nil {
			p.errors.Inc()
			p.observer.Warn(ctx, "queue: worker run failed", map[string]any{
				"worker": index,
				"error":  err.Error(),
			})
		}
		// a full batch means more work is probably due
		if err == nil && stats.Claimed > 0 && stats.Claimed >= p.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-p.shutdownCh:
			return
		case <-ticker.C:
		}
	}
}

func (p *WorkerPool) fields() map[string]any {
	stats := p.Stats()
	return map[string]any{
		"executed":  stats.Executed,
		"succeeded": stats.Succeeded,
		"failed":    stats.Failed,
		"errors":    stats.Errors,
	}
}
