package executor

import (
	"context"
	"time"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
)

var _ ports.Executor = (*SynchronousExecutor)(nil)

// SynchronousExecutor runs each job inline inside Run. It is meant for
// debugging and tests.
type SynchronousExecutor struct {
	*runner
}

// NewSynchronousExecutor builds an inline executor.
func NewSynchronousExecutor(handler ports.ResultHandler, opts ...Option) *SynchronousExecutor {
	return &SynchronousExecutor{runner: newRunner(handler, opts)}
}

// Run executes job and handles its result before returning.
func (e *SynchronousExecutor) Run(ctx context.Context, job ports.Job) {
	result, err := e.execute(ctx, job)
	e.handle(ctx, job, result, err)
}

// Join returns immediately: every job finished inside Run.
func (e *SynchronousExecutor) Join(context.Context, time.Duration) error {
	return nil
}
