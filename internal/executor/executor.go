// Package executor runs tasks on spawned goroutines while capping how many
// execute at once.
//
// Submission never blocks: each task gets its own goroutine immediately, and
// that goroutine waits for one of MaxConcurrentTasks permits before running
// the task. Excess work therefore queues on the semaphore, never on the
// caller. Connection goroutines hand requests over through Submit so a slow
// handler only ever occupies a permit.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrClosed is returned by Submit after Close has been called.
	ErrClosed = errors.New("executor: closed")

	// ErrShutdownTimeout is returned by Close when tasks were still pending
	// when its context expired. Their contexts have been cancelled.
	ErrShutdownTimeout = errors.New("executor: shutdown timed out, remaining tasks cancelled")

	// ErrPanic wraps a panic raised by a task.
	ErrPanic = errors.New("executor: task panicked")
)

// Config sizes an Executor.
type Config struct {
	// MaxConcurrentTasks is the number of tasks allowed to run at once.
	MaxConcurrentTasks int
}

// Stats is a point-in-time snapshot of executor activity.
type Stats struct {
	Running   int64 // tasks holding a permit
	Waiting   int64 // tasks spawned but waiting for a permit
	Completed int64 // tasks finished since start, successfully or not
}

// Executor is a bounded concurrent task runner.
type Executor struct {
	maxTasks int64
	sem      *semaphore.Weighted

	// baseCtx parents every task context; cancel forces them to stop.
	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	running   atomic.Int64
	waiting   atomic.Int64
	completed atomic.Int64
}

// New creates an Executor. MaxConcurrentTasks must be positive.
func New(cfg Config) (*Executor, error) {
	if cfg.MaxConcurrentTasks <= 0 {
		return nil, fmt.Errorf("executor: max_concurrent_tasks must be positive, got %d", cfg.MaxConcurrentTasks)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		maxTasks: int64(cfg.MaxConcurrentTasks),
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentTasks)),
		baseCtx:  ctx,
		cancel:   cancel,
	}, nil
}

// MaxConcurrentTasks returns the configured permit count.
func (e *Executor) MaxConcurrentTasks() int {
	return int(e.maxTasks)
}

// Future is the eventual result of a submitted task.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Done is closed once the task has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the task outcome. It must only be called after Done is
// closed.
func (f *Future[T]) Result() (T, error) {
	return f.value, f.err
}

// Wait blocks until the task finishes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit schedules fn and returns immediately.
//
// fn runs with a context derived from ctx that is additionally cancelled
// when the executor is force-closed. If ctx is cancelled while the task is
// still waiting for a permit, the task never runs and the future resolves
// with the context error.
//
// Submit is a function rather than a method because Go methods cannot have
// type parameters.
func Submit[T any](e *Executor, ctx context.Context, fn func(context.Context) (T, error)) (*Future[T], error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ErrClosed
	}
	e.wg.Add(1)
	e.mu.RUnlock()

	f := &Future[T]{done: make(chan struct{})}
	e.waiting.Add(1)

	go func() {
		defer e.wg.Done()
		defer close(f.done)
		defer e.completed.Add(1)

		taskCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(e.baseCtx, cancel)
		defer stop()

		if err := e.sem.Acquire(taskCtx, 1); err != nil {
			e.waiting.Add(-1)
			f.err = err
			return
		}
		e.waiting.Add(-1)
		e.running.Add(1)
		defer func() {
			e.running.Add(-1)
			e.sem.Release(1)
		}()

		f.value, f.err = run(taskCtx, fn)
	}()

	return f, nil
}

// run invokes fn, converting a panic into an error so a faulty task cannot
// take down the process.
func run[T any](ctx context.Context, fn func(context.Context) (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrPanic, r, debug.Stack())
		}
	}()
	return fn(ctx)
}

// Close stops accepting new tasks and waits for submitted ones.
//
// If ctx expires first, every remaining task context is cancelled and
// ErrShutdownTimeout is returned without waiting further: a task that
// ignores its context cannot hold shutdown hostage. Close is idempotent.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		return ErrShutdownTimeout
	}
}

// Stats returns current activity counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Running:   e.running.Load(),
		Waiting:   e.waiting.Load(),
		Completed: e.completed.Load(),
	}
}
