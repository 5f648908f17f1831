package executor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/diagnostic"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
	referrors "github.com/skoriche/Climate-REF4CMIP-sub000/pkg/errors"
)

var _ ports.Executor = (*LocalExecutor)(nil)

type completion struct {
	job    ports.Job
	result diagnostic.ExecutionResult
	err    error
}

// LocalExecutor runs jobs on a bounded pool of goroutines. Results are handed to
// the result handler on the goroutine calling Join, never on a worker.
type LocalExecutor struct {
	*runner
	workers int64
	sem     *semaphore.Weighted

	mu        sync.Mutex
	pending   int
	completed []completion
	notify    chan struct{}
}

// NewLocalExecutor builds a pool of n workers. n <= 0 uses the number of
// available CPUs.
func NewLocalExecutor(handler ports.ResultHandler, n int, opts ...Option) *LocalExecutor {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &LocalExecutor{
		runner:  newRunner(handler, opts),
		workers: int64(n),
		sem:     semaphore.NewWeighted(int64(n)),
		notify:  make(chan struct{}, 1),
	}
}

// Workers is the pool size.
func (e *LocalExecutor) Workers() int { return int(e.workers) }

// Run enqueues job and returns immediately.
func (e *LocalExecutor) Run(ctx context.Context, job ports.Job) {
	e.mu.Lock()
	e.pending++
	e.mu.Unlock()

	go func() {
		var c completion
		c.job = job
		// A worker slot is only refused when ctx ends first.
		if err := e.sem.Acquire(ctx, 1); err != nil {
			c.result, c.err = diagnostic.Failed(job.Definition), referrors.NewExecutionError(executionID(job), err)
		} else {
			c.result, c.err = e.execute(ctx, job)
			e.sem.Release(1)
		}

		e.mu.Lock()
		e.completed = append(e.completed, c)
		e.mu.Unlock()
		select {
		case e.notify <- struct{}{}:
		default:
		}
	}()
}

// Join handles finished jobs until none are outstanding. A positive timeout
// bounds the wait and returns *errors.TimeoutError when exceeded; jobs still
// running are not cancelled and are handled by a later Join.
func (e *LocalExecutor) Join(ctx context.Context, timeout time.Duration) error {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		e.mu.Lock()
		batch := e.completed
		e.completed = nil
		e.mu.Unlock()

		for _, c := range batch {
			e.handle(ctx, c.job, c.result, c.err)
		}

		e.mu.Lock()
		e.pending -= len(batch)
		remaining := e.pending
		e.mu.Unlock()
		if remaining == 0 {
			return nil
		}

		select {
		case <-e.notify:
		case <-deadline:
			e.logger.Warn(ctx, "timed out waiting for executions", "pending", remaining, "timeout", timeout.String())
			return referrors.NewTimeoutError(timeout, remaining)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
