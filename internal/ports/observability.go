package ports

import "context"

// Metric names recorded by the solver, executor and result handler.
const (
	// MetricCandidatesTotal counts solved candidates by decision="run|skip".
	MetricCandidatesTotal = "solver_candidates_total"
	// MetricExecutionsTotal counts finished executions by status="success|failure".
	MetricExecutionsTotal = "executions_total"
	// MetricActiveExecutions is the number of jobs currently holding a worker.
	MetricActiveExecutions = "executor_active_executions"
	// MetricExecutionDuration observes wall time per job in seconds.
	MetricExecutionDuration = "execution_duration_seconds"
	// MetricValuesIngested counts metric values persisted by kind="scalar|series".
	MetricValuesIngested = "metric_values_ingested_total"
)

// MetricsCollector records quantitative signals. Adapters decide the backend.
type MetricsCollector interface {
	IncCounter(ctx context.Context, name string, labels map[string]string)
	SetGauge(ctx context.Context, name string, value float64, labels map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, labels map[string]string)
}

// Tracer starts spans named `<component>.<operation>`, e.g. `solver.solve`,
// `executor.run`, `results.handle`.
type Tracer interface {
	StartSpan(ctx context.Context, name string, attributes ...interface{}) (context.Context, Span)
}

// Span represents an active tracing span.
type Span interface {
	SetAttribute(key string, value interface{})
	SetStatus(status SpanStatus, message string)
	End()
}

// SpanStatus provides strongly typed span result semantics.
type SpanStatus string

const (
	SpanStatusOK    SpanStatus = "ok"
	SpanStatusError SpanStatus = "error"
)

// NoOpMetrics discards every measurement.
type NoOpMetrics struct{}

func (NoOpMetrics) IncCounter(context.Context, string, map[string]string)                {}
func (NoOpMetrics) SetGauge(context.Context, string, float64, map[string]string)         {}
func (NoOpMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// NoOpTracer starts spans that record nothing.
type NoOpTracer struct{}

func (NoOpTracer) StartSpan(ctx context.Context, _ string, _ ...interface{}) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) SetAttribute(string, interface{}) {}
func (noopSpan) SetStatus(SpanStatus, string)     {}
func (noopSpan) End()                             {}
