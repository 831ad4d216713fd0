// Package pool provides the bounded worker pool shared by module resolution
// and transformation.
//
// Tasks may submit further tasks while running; the queue is unbounded so a
// submitting worker never blocks on a full channel. Wait returns once every
// submitted task, including tasks submitted by other tasks, has finished.
package pool

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// Task is a unit of work. The context is cancelled when the pool's parent
// context is.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed number of workers in FIFO order.
type Pool struct {
	ctx     context.Context
	workers int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	closed bool

	pending  sync.WaitGroup
	workerWg sync.WaitGroup

	completed atomic.Int64
	skipped   atomic.Int64
}

// New starts a pool with the given number of workers. A non-positive count
// uses the number of CPUs.
func New(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{ctx: ctx, workers: workers}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < workers; i++ {
		p.workerWg.Add(1)
		go p.worker()
	}
	return p
}

// Submit enqueues a task. It reports false when the pool is already closed.
func (p *Pool) Submit(task Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.pending.Add(1)
	p.queue = append(p.queue, task)
	p.cond.Signal()
	return true
}

// Wait blocks until the pending count drops to zero.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Close waits for outstanding work and stops the workers.
func (p *Pool) Close() {
	p.Wait()
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.workerWg.Wait()
}

// Workers returns the worker count.
func (p *Pool) Workers() int {
	return p.workers
}

// Stats returns the number of tasks run and the number skipped after
// cancellation.
func (p *Pool) Stats() (completed, skipped int64) {
	return p.completed.Load(), p.skipped.Load()
}

func (p *Pool) worker() {
	defer p.workerWg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	defer p.pending.Done()

	// Cancelled work is drained, not run, so Wait still returns.
	if p.ctx.Err() != nil {
		p.skipped.Add(1)
		return
	}
	task(p.ctx)
	p.completed.Add(1)
}

// ForEach runs fn for every item on a temporary pool and waits for all of
// them. It returns the context error if the run was cancelled.
func ForEach[T any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, item T)) error {
	p := New(ctx, workers)
	for _, item := range items {
		item := item
		p.Submit(func(ctx context.Context) { fn(ctx, item) })
	}
	p.Close()
	return ctx.Err()
}
