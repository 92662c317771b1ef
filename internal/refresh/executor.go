// Package refresh implements the bounded background worker pool for SWR
// refreshes (spec §2 component I). The consumer/worker-pool shape is
// grounded on the reference library's internal/lifetimer.LifetimeWorker
// (a fixed set of goroutines draining a channel under ctx); unlike that
// worker, Submit here is non-blocking and drops tasks when the queue is
// full, because spec §4.5 requires SWR refresh loss to be safe (the next
// request simply retries).
package refresh

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arslanovdev/quotecache/internal/rate"
)

// Executor is the RefreshExecutor capability.
type Executor struct {
	ctx     context.Context
	cancel  context.CancelFunc
	queue   chan func()
	limiter *rate.Limiter

	dispatched atomic.Int64
	dropped    atomic.Int64

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool

	wg sync.WaitGroup
}

// New starts workers background goroutines draining a bounded queue.
// ratePerSec optionally caps dispatch throughput on top of the worker pool
// (SPEC_FULL §12.2); 0 disables the limiter.
func New(ctx context.Context, workers int, queueCap int, ratePerSec int) *Executor {
	if workers < 1 {
		workers = 1
	}
	if queueCap < 1 {
		queueCap = workers
	}

	ctx, cancel := context.WithCancel(ctx)
	e := &Executor{
		ctx:     ctx,
		cancel:  cancel,
		queue:   make(chan func(), queueCap),
		limiter: rate.New(ctx, ratePerSec),
	}

	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	return e
}

// worker drains the queue until Close closes it, running every task that
// was already buffered before shutdown instead of racing a buffered task
// against ctx cancellation.
func (e *Executor) worker() {
	defer e.wg.Done()
	for task := range e.queue {
		task()
	}
}

// Submit enqueues task without blocking. If the queue is full, the executor
// is closed, or the optional rate limiter has no permit available, the task
// is dropped — this is the explicit, spec-sanctioned "SWR refresh loss is
// safe" path.
func (e *Executor) Submit(task func()) (accepted bool) {
	if !e.limiter.Allow() {
		e.dropped.Add(1)
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.dropped.Add(1)
		return false
	}

	select {
	case e.queue <- task:
		e.dispatched.Add(1)
		return true
	default:
		e.dropped.Add(1)
		return false
	}
}

// Metrics exposes dispatched/dropped counters for telemetry.
func (e *Executor) Metrics() (dispatched, dropped int64) {
	return e.dispatched.Load(), e.dropped.Load()
}

// Close stops accepting new Submits, closes the queue so workers drain
// every already-buffered task, then waits for all workers to exit. Safe to
// call more than once.
func (e *Executor) Close() error {
	e.closeOnce.Do(func() {
		e.cancel()
		e.mu.Lock()
		e.closed = true
		close(e.queue)
		e.mu.Unlock()
	})
	e.wg.Wait()
	return nil
}
