// Package executor runs diagnostic jobs and hands their results to a result
// handler. Every failure inside a job, panics included, becomes a failed result.
package executor

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/diagnostic"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/events"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/logging"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
	referrors "github.com/skoriche/Climate-REF4CMIP-sub000/pkg/errors"
)

// runner holds what both executors share: collaborators and the job body.
type runner struct {
	handler ports.ResultHandler
	logger  ports.Logger
	metrics ports.MetricsCollector
	tracer  ports.Tracer
	events  ports.EventPublisher
	active  atomic.Int64
}

// Option configures an executor.
type Option func(*runner)

// WithExecutorLogger injects a logger into the executor.
func WithExecutorLogger(logger ports.Logger) Option {
	return func(r *runner) {
		r.logger = logger
	}
}

// WithExecutorMetrics injects a metrics collector.
func WithExecutorMetrics(metrics ports.MetricsCollector) Option {
	return func(r *runner) {
		r.metrics = metrics
	}
}

// WithExecutorTracer injects a tracer.
func WithExecutorTracer(tracer ports.Tracer) Option {
	return func(r *runner) {
		r.tracer = tracer
	}
}

// WithExecutorEvents injects an event publisher.
func WithExecutorEvents(events ports.EventPublisher) Option {
	return func(r *runner) {
		r.events = events
	}
}

func newRunner(handler ports.ResultHandler, opts []Option) *runner {
	r := &runner{handler: handler, logger: logging.NewNoOpLogger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// execute runs one job. It never panics and never returns a job failure other
// than through err; the returned result is unsuccessful whenever err is set.
func (r *runner) execute(ctx context.Context, job ports.Job) (result diagnostic.ExecutionResult, err error) {
	def := job.Definition
	start := time.Now()

	if r.tracer != nil {
		var span ports.Span
		ctx, span = r.tracer.StartSpan(ctx, "executor.run",
			"diagnostic", def.Provider+"/"+def.Diagnostic, "group_key", def.Key)
		defer func() {
			if err != nil {
				span.SetStatus(ports.SpanStatusError, err.Error())
			} else {
				span.SetStatus(ports.SpanStatusOK, "completed")
			}
			span.End()
		}()
	}

	r.gauge(ctx, r.active.Add(1))
	defer func() { r.gauge(ctx, r.active.Add(-1)) }()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(ctx, "diagnostic panicked", "diagnostic", def.Diagnostic, "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
			err = fmt.Errorf("diagnostic panicked: %v", rec)
		}
		if err != nil {
			err = referrors.NewExecutionError(executionID(job), err)
			result = diagnostic.Failed(def)
		}
		if r.metrics != nil {
			r.metrics.ObserveHistogram(ctx, ports.MetricExecutionDuration, time.Since(start).Seconds(),
				map[string]string{"provider": def.Provider, "diagnostic": def.Diagnostic})
		}
	}()

	if job.Diagnostic == nil {
		return diagnostic.Failed(def), fmt.Errorf("job has no diagnostic")
	}
	if err := os.MkdirAll(def.OutputDirectory, 0o755); err != nil {
		return diagnostic.Failed(def), fmt.Errorf("create output directory: %w", err)
	}
	logFile, err := os.OpenFile(def.OutputPath(diagnostic.LogFilename), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return diagnostic.Failed(def), fmt.Errorf("open execution log: %w", err)
	}
	defer logFile.Close()

	human := false
	runLogger, err := logging.New(logging.Options{
		Writer:        logFile,
		Level:         "debug",
		HumanReadable: &human,
		Component:     "diagnostic",
		Fields:        map[string]interface{}{"diagnostic": def.Diagnostic, "provider": def.Provider, "group_key": def.Key},
	})
	if err != nil {
		return diagnostic.Failed(def), err
	}
	runCtx := logging.ContextWithLogger(ctx, runLogger)

	runLogger.Info(runCtx, "execution started", "output_directory", def.OutputDirectory)
	result, err = job.Diagnostic.Run(runCtx, def)
	if err != nil {
		runLogger.Error(runCtx, "execution failed", "error", err)
		return result, err
	}
	runLogger.Info(runCtx, "execution finished", "successful", result.Successful, "duration", time.Since(start).String())
	result.Definition = def
	return result, nil
}

// handle passes a finished job to the result handler. Handler errors are logged;
// they never stop the executor.
func (r *runner) handle(ctx context.Context, job ports.Job, result diagnostic.ExecutionResult, runErr error) {
	if runErr != nil {
		r.logger.Warn(ctx, "execution failed", "execution_id", executionID(job), "diagnostic", job.Definition.Diagnostic, "error", runErr)
	}
	if r.handler == nil {
		return
	}
	if err := r.handler.Handle(ctx, job, result, runErr); err != nil {
		r.logger.Error(ctx, "failed to handle execution result", "execution_id", executionID(job), "error", err)
		events.Emit(ctx, r.events, ports.EventExecutionFailed, "execution_id", executionID(job), "error", err)
	}
}

func (r *runner) gauge(ctx context.Context, active int64) {
	if r.metrics != nil {
		r.metrics.SetGauge(ctx, ports.MetricActiveExecutions, float64(active), nil)
	}
}

func executionID(job ports.Job) uint {
	if job.Execution == nil {
		return 0
	}
	return job.Execution.ID
}
