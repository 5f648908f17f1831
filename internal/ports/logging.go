package ports

import (
	"context"

	"github.com/google/uuid"
)

// Logger is the structured logging contract every component receives. Calls take
// key/value pairs, must be safe for concurrent use, and should enrich entries with
// the correlation ID carried in ctx. Common fields:
//   - correlation_id (one per CLI invocation or scheduled pass)
//   - component (solver, executor, results, store)
//   - diagnostic / group_key / execution_id for per-job entries
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, msg string, fields ...interface{})
	Error(ctx context.Context, msg string, fields ...interface{})
	With(fields ...interface{}) Logger
}

type correlationIDKey struct{}

// WithCorrelationID attaches the correlation ID to ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// GetCorrelationID extracts the correlation ID from ctx, or "" when none is set.
func GetCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GenerateCorrelationID returns a new random UUID.
func GenerateCorrelationID() string {
	return uuid.NewString()
}
