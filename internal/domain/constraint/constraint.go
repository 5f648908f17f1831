// Package constraint holds the conditions a group of catalog records must meet
// before it becomes an execution. A constraint either transforms a group
// (Operation) or accepts/rejects it (Validator).
package constraint

import (
	"context"
	"errors"
	"fmt"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/catalog"
)

// ErrNotSatisfiable signals that a group cannot meet an operation. The group is
// dropped; it is never surfaced to callers as a failure.
var ErrNotSatisfiable = errors.New("constraint not satisfiable")

// Constraint is the closed set of group conditions defined in this package.
type Constraint interface {
	fmt.Stringer
	isConstraint()
}

// Operation produces a new group from the input group. It never mutates its input.
type Operation interface {
	Constraint
	Apply(ctx context.Context, group catalog.Records, cat *catalog.DataCatalog) (catalog.Records, error)
}

// Validator accepts or rejects a group as a whole.
type Validator interface {
	Constraint
	Validate(ctx context.Context, group catalog.Records, cat *catalog.DataCatalog) (bool, error)
}

// Apply evaluates c against group. It returns ok=false when the group must be
// dropped: the operation was not satisfiable, it left no records, or the
// validator rejected the group. A non-nil error is always a configuration error.
func Apply(ctx context.Context, group catalog.Records, c Constraint, cat *catalog.DataCatalog) (catalog.Records, bool, error) {
	switch typed := c.(type) {
	case Operation:
		out, err := typed.Apply(ctx, group, cat)
		if errors.Is(err, ErrNotSatisfiable) {
			LoggerFrom(ctx).Debug(ctx, "constraint not satisfiable", "constraint", c.String())
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		if len(out) == 0 {
			return nil, false, nil
		}
		return out, true, nil
	case Validator:
		ok, err := typed.Validate(ctx, group, cat)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			LoggerFrom(ctx).Debug(ctx, "constraint rejected group", "constraint", c.String())
			return nil, false, nil
		}
		if len(group) == 0 {
			return nil, false, nil
		}
		return group, true, nil
	default:
		return nil, false, fmt.Errorf("unsupported constraint %T", c)
	}
}

// Logger is the subset of ports.Logger constraints use. It is declared here so
// the domain does not depend on the ports package.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, msg string, fields ...interface{})
}

type loggerKey struct{}

// WithLogger attaches a logger to ctx for constraint evaluation.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger attached with WithLogger, or one that discards.
func LoggerFrom(ctx context.Context) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
			return l
		}
	}
	return discard{}
}

type discard struct{}

func (discard) Debug(context.Context, string, ...interface{}) {}
func (discard) Warn(context.Context, string, ...interface{})  {}

// subgroups partitions records by groupBy, or returns them as one partition when
// groupBy is empty.
func subgroups(records catalog.Records, groupBy []string) []catalog.Records {
	if len(groupBy) == 0 {
		return []catalog.Records{records}
	}
	groups := records.GroupBy(groupBy)
	out := make([]catalog.Records, len(groups))
	for i, g := range groups {
		out[i] = g.Records
	}
	return out
}
