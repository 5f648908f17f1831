// Package tracing backs ports.Tracer with OpenTelemetry.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
)

// InstrumentationName identifies spans created by this module.
const InstrumentationName = "github.com/skoriche/Climate-REF4CMIP-sub000"

// Tracer adapts an OpenTelemetry tracer to ports.Tracer.
type Tracer struct {
	tracer trace.Tracer
}

// New wraps a tracer from provider.
func New(provider trace.TracerProvider) *Tracer {
	return &Tracer{tracer: provider.Tracer(InstrumentationName)}
}

// NewStdoutProvider returns a provider that writes finished spans as JSON to w.
// Callers must Shutdown the provider to flush.
func NewStdoutProvider(w io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)), nil
}

// StartSpan implements ports.Tracer. Attributes are key/value pairs; the
// correlation ID in ctx is attached automatically.
func (t *Tracer) StartSpan(ctx context.Context, name string, attributes ...interface{}) (context.Context, ports.Span) {
	attrs := toAttributes(attributes)
	if id := ports.GetCorrelationID(ctx); id != "" {
		attrs = append(attrs, attribute.String("correlation_id", id))
	}
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(toAttribute(key, value))
}

func (s *otelSpan) SetStatus(status ports.SpanStatus, message string) {
	if status == ports.SpanStatusError {
		s.span.SetStatus(codes.Error, message)
		return
	}
	s.span.SetStatus(codes.Ok, message)
}

func (s *otelSpan) End() { s.span.End() }

func toAttributes(kv []interface{}) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, toAttribute(key, kv[i+1]))
	}
	return out
}

func toAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case uint:
		return attribute.Int64(key, int64(v))
	case float64:
		return attribute.Float64(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

var _ ports.Tracer = (*Tracer)(nil)
