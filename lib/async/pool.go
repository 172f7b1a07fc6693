// Package async provides bounded worker pool utilities.
package async

import (
	"context"
	"fmt"
	"sync"

	"github.com/vigoferrel/qbtc-futures-system-sub008/errs"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/observability"
)

// Task represents a unit of work executed by the pool workers.
type Task func(context.Context) error

// Pool is a bounded worker pool that rejects work when saturated instead of
// blocking the submitter. The hub uses it for fire-and-forget dispatch so
// publish never waits on network I/O.
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

type job struct {
	ctx context.Context
	fn  Task
}

// NewPool creates a worker pool with the given concurrency and queue depth.
func NewPool(workers, queue int) (*Pool, error) {
	if workers <= 0 {
		return nil, errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("workers must be >0"))
	}
	if queue < 0 {
		queue = 0
	}
	p := new(Pool)
	p.jobs = make(chan job, queue)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p, nil
}

// Submit schedules the provided task for execution, failing fast when the
// pool is saturated or closed.
func (p *Pool) Submit(ctx context.Context, fn Task) error {
	if fn == nil {
		return errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("task must not be nil"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("submit context: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool closed"))
	}
	select {
	case p.jobs <- job{ctx: ctx, fn: fn}:
		p.wg.Add(1)
		return nil
	default:
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool at capacity"))
	}
}

// Close stops accepting new tasks. Queued tasks still run to completion.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.jobs)
	})
}

// Shutdown closes the pool and waits for in-flight tasks to complete or
// until the context expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.Close()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (p *Pool) worker() {
	for job := range p.jobs {
		p.run(job)
		p.wg.Done()
	}
}

func (p *Pool) run(j job) {
	defer func() {
		if r := recover(); r != nil {
			observability.Log().Error("async task panicked", observability.F("panic", r))
		}
	}()
	if err := j.fn(j.ctx); err != nil {
		observability.Log().Debug("async task failed", observability.F("error", err))
	}
}
