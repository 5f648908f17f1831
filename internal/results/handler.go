// Package results persists what a finished execution produced: its artifacts,
// its metric values and its final state.
package results

import (
	"context"
	"errors"
	"fmt"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/diagnostic"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/execution"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/events"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/logging"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
)

var _ ports.ResultHandler = (*Handler)(nil)

// Handler implements ports.ResultHandler.
type Handler struct {
	store      ports.ResultStore
	artifacts  ports.ArtifactStore
	vocabulary *Vocabulary
	logger     ports.Logger
	metrics    ports.MetricsCollector
	tracer     ports.Tracer
	events     ports.EventPublisher
}

// Option configures a Handler.
type Option func(*Handler)

// WithHandlerLogger injects a logger.
func WithHandlerLogger(logger ports.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithHandlerMetrics injects a metrics collector.
func WithHandlerMetrics(metrics ports.MetricsCollector) Option {
	return func(h *Handler) {
		h.metrics = metrics
	}
}

// WithHandlerTracer injects a tracer.
func WithHandlerTracer(tracer ports.Tracer) Option {
	return func(h *Handler) {
		h.tracer = tracer
	}
}

// WithHandlerEvents injects an event publisher.
func WithHandlerEvents(events ports.EventPublisher) Option {
	return func(h *Handler) {
		h.events = events
	}
}

// WithVocabulary enables controlled vocabulary checks on metric bundles.
func WithVocabulary(v *Vocabulary) Option {
	return func(h *Handler) {
		h.vocabulary = v
	}
}

// NewHandler builds a handler writing to store and artifacts.
func NewHandler(store ports.ResultStore, artifacts ports.ArtifactStore, opts ...Option) *Handler {
	h := &Handler{store: store, artifacts: artifacts, logger: logging.NewNoOpLogger()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle records the outcome of one job. The execution log is relocated first;
// without it, or without a successful run and a metric bundle, the execution is
// marked failed. Controlled vocabulary and value ingestion problems are logged
// and never fail the execution. The returned error is only set when the store
// itself cannot be updated.
func (h *Handler) Handle(ctx context.Context, job ports.Job, result diagnostic.ExecutionResult, runErr error) (err error) {
	exec := job.Execution
	if exec == nil {
		return fmt.Errorf("job has no execution")
	}
	def := job.Definition
	logger := h.logger.With("execution_id", exec.ID, "diagnostic", def.Provider+"/"+def.Diagnostic, "group_key", def.Key)

	if h.tracer != nil {
		var span ports.Span
		ctx, span = h.tracer.StartSpan(ctx, "results.handle", "execution_id", exec.ID)
		defer func() {
			if err != nil {
				span.SetStatus(ports.SpanStatusError, err.Error())
			}
			span.End()
		}()
	}

	if err := h.artifacts.Relocate(ctx, exec.OutputFragment, diagnostic.LogFilename); err != nil {
		logger.Error(ctx, "execution log missing", "error", err)
		return h.fail(ctx, logger, exec, err)
	}
	if runErr != nil {
		return h.fail(ctx, logger, exec, runErr)
	}
	if !result.Successful {
		return h.fail(ctx, logger, exec, errors.New("diagnostic reported failure"))
	}
	if result.MetricBundleFilename == "" {
		return h.fail(ctx, logger, exec, errors.New("diagnostic produced no metric bundle"))
	}

	for _, name := range []string{result.MetricBundleFilename, result.OutputBundleFilename, result.SeriesFilename} {
		if name == "" {
			continue
		}
		if err := h.artifacts.Relocate(ctx, exec.OutputFragment, name); err != nil {
			return h.fail(ctx, logger, exec, fmt.Errorf("relocate %s: %w", name, err))
		}
	}

	bundle, err := ReadMetricBundle(def.OutputPath(result.MetricBundleFilename))
	if err != nil {
		return h.fail(ctx, logger, exec, err)
	}
	if h.vocabulary != nil {
		if err := h.vocabulary.ValidateBundle(bundle); err != nil {
			logger.Warn(ctx, "metric bundle does not match the controlled vocabulary", "error", err)
		}
	}

	values, err := bundle.Scalars()
	if err != nil {
		logger.Warn(ctx, "could not extract scalar values", "error", err)
		values = nil
	}
	if result.SeriesFilename != "" {
		series, err := ReadSeries(def.OutputPath(result.SeriesFilename))
		switch {
		case err != nil:
			logger.Warn(ctx, "could not read series", "error", err)
		case h.vocabulary != nil:
			if err := h.vocabulary.ValidateValues(series); err != nil {
				logger.Warn(ctx, "series do not match the controlled vocabulary", "error", err)
			}
			values = append(values, series...)
		default:
			values = append(values, series...)
		}
	}

	var outputs []execution.Output
	if result.OutputBundleFilename != "" {
		outputs = h.collectOutputs(ctx, logger, def, exec, result.OutputBundleFilename)
	}

	location := h.artifacts.Location(exec.OutputFragment)
	err = h.store.WithinTransaction(ctx, func(tx ports.ResultStore) error {
		if err := tx.RegisterOutputs(ctx, exec.ID, outputs); err != nil {
			logger.Warn(ctx, "could not register outputs", "error", err)
		}
		if err := tx.InsertMetricValues(ctx, exec.ID, values); err != nil {
			logger.Error(ctx, "could not ingest metric values", "error", err, "values", len(values))
		} else {
			h.countValues(ctx, values)
		}
		return tx.MarkExecutionSuccessful(ctx, exec.ID, location)
	})
	if err != nil {
		return fmt.Errorf("record execution %d: %w", exec.ID, err)
	}

	logger.Info(ctx, "execution successful", "path", location, "values", len(values), "outputs", len(outputs))
	h.count(ctx, "success")
	events.Emit(ctx, h.events, ports.EventExecutionCompleted, "execution_id", exec.ID, "diagnostic", def.Diagnostic, "path", location)
	return nil
}

// collectOutputs reads the output bundle and relocates every file it lists.
// Entries whose file is missing are dropped with a warning.
func (h *Handler) collectOutputs(ctx context.Context, logger ports.Logger, def diagnostic.ExecutionDefinition, exec *execution.Execution, filename string) []execution.Output {
	bundle, err := ReadOutputBundle(def.OutputPath(filename))
	if err != nil {
		logger.Warn(ctx, "could not read output bundle", "error", err)
		return nil
	}
	var kept []execution.Output
	for _, o := range bundle.Outputs() {
		if err := h.artifacts.Relocate(ctx, exec.OutputFragment, o.Filename); err != nil {
			logger.Warn(ctx, "output listed in bundle is missing", "output", o.ShortName, "filename", o.Filename, "error", err)
			continue
		}
		kept = append(kept, o)
	}
	return kept
}

func (h *Handler) fail(ctx context.Context, logger ports.Logger, exec *execution.Execution, cause error) error {
	logger.Warn(ctx, "execution failed", "error", cause)
	h.count(ctx, "failure")
	events.Emit(ctx, h.events, ports.EventExecutionFailed, "execution_id", exec.ID, "error", cause)
	if err := h.store.MarkExecutionFailed(ctx, exec.ID); err != nil {
		return fmt.Errorf("mark execution %d failed: %w", exec.ID, err)
	}
	return nil
}

func (h *Handler) count(ctx context.Context, status string) {
	if h.metrics != nil {
		h.metrics.IncCounter(ctx, ports.MetricExecutionsTotal, map[string]string{"status": status})
	}
}

func (h *Handler) countValues(ctx context.Context, values []execution.MetricValue) {
	if h.metrics == nil {
		return
	}
	for _, v := range values {
		h.metrics.IncCounter(ctx, ports.MetricValuesIngested, map[string]string{"kind": string(v.Kind)})
	}
}
