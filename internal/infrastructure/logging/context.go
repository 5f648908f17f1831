package logging

import (
	"context"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
)

// WithCorrelationID stores the provided correlation identifier inside the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return ports.WithCorrelationID(ctx, id)
}

// GetCorrelationID retrieves the correlation identifier from the context, returning
// an empty string when none is present.
func GetCorrelationID(ctx context.Context) string {
	return ports.GetCorrelationID(ctx)
}

// GenerateCorrelationID creates a new correlation identifier suitable for request tracing.
func GenerateCorrelationID() string {
	return ports.GenerateCorrelationID()
}

type loggerKey struct{}

// ContextWithLogger attaches logger to ctx. Diagnostics use it to write into
// their execution's log.
func ContextWithLogger(ctx context.Context, logger ports.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger attached with ContextWithLogger, or a no-op
// logger.
func FromContext(ctx context.Context) ports.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(ports.Logger); ok {
			return l
		}
	}
	return NewNoOpLogger()
}
