package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
)

// Options configures the zerolog adapter.
type Options struct {
	Writer io.Writer
	Level  string
	// HumanReadable selects the console writer. When nil, the console writer is
	// used only if Writer is a terminal.
	HumanReadable *bool
	Component     string
	Fields        map[string]interface{}
}

// Logger implements ports.Logger using zerolog.
type Logger struct {
	base   zerolog.Logger
	fields []interface{}
}

// New creates a Logger adapter with the supplied options.
func New(opts Options) (*Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	human := isTerminal(writer)
	if opts.HumanReadable != nil {
		human = *opts.HumanReadable
	}
	output := writer
	if human {
		console := zerolog.NewConsoleWriter()
		console.Out = writer
		console.TimeFormat = time.RFC3339
		output = console
	}

	builder := zerolog.New(output).Level(level).With().Timestamp()
	for _, k := range sortedKeys(opts.Fields) {
		builder = builder.Interface(k, opts.Fields[k])
	}

	var fields []interface{}
	if opts.Component != "" {
		fields = append(fields, "component", opts.Component)
	}
	return &Logger{base: builder.Logger(), fields: fields}, nil
}

// Debug emits a debug log entry.
func (l *Logger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	l.log(ctx, zerolog.DebugLevel, msg, fields...)
}

// Info emits an info log entry.
func (l *Logger) Info(ctx context.Context, msg string, fields ...interface{}) {
	l.log(ctx, zerolog.InfoLevel, msg, fields...)
}

// Warn emits a warning log entry.
func (l *Logger) Warn(ctx context.Context, msg string, fields ...interface{}) {
	l.log(ctx, zerolog.WarnLevel, msg, fields...)
}

// Error emits an error log entry.
func (l *Logger) Error(ctx context.Context, msg string, fields ...interface{}) {
	l.log(ctx, zerolog.ErrorLevel, msg, fields...)
}

// With derives a new logger with persistent fields.
func (l *Logger) With(fields ...interface{}) ports.Logger {
	if l == nil {
		return discard{}
	}
	next := make([]interface{}, len(l.fields), len(l.fields)+len(fields))
	copy(next, l.fields)
	next = append(next, fields...)
	return &Logger{base: l.base, fields: next}
}

func (l *Logger) log(ctx context.Context, level zerolog.Level, msg string, fields ...interface{}) {
	if l == nil {
		return
	}
	event := l.base.WithLevel(level)
	if !event.Enabled() {
		return
	}
	for _, kv := range mergeFields(l.fields, fields) {
		if err, ok := kv.value.(error); ok {
			event = event.AnErr(kv.key, err)
			continue
		}
		event = event.Interface(kv.key, kv.value)
	}
	if id := ports.GetCorrelationID(ctx); id != "" {
		event = event.Str("correlation_id", id)
	}
	event.Msg(msg)
}

type pair struct {
	key   string
	value interface{}
}

// mergeFields flattens key/value lists, later keys overriding earlier ones while
// keeping first-seen order.
func mergeFields(lists ...[]interface{}) []pair {
	index := map[string]int{}
	var out []pair
	for _, values := range lists {
		for i := 0; i+1 < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok || key == "" {
				continue
			}
			if pos, seen := index[key]; seen {
				out[pos].value = values[i+1]
				continue
			}
			index[key] = len(out)
			out = append(out, pair{key: key, value: values[i+1]})
		}
	}
	return out
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

var _ ports.Logger = (*Logger)(nil)

type discard struct{}

// NewNoOpLogger returns the logger every component starts with until one is injected.
func NewNoOpLogger() ports.Logger { return discard{} }

func (discard) Debug(context.Context, string, ...interface{}) {}
func (discard) Info(context.Context, string, ...interface{})  {}
func (discard) Warn(context.Context, string, ...interface{})  {}
func (discard) Error(context.Context, string, ...interface{}) {}
func (d discard) With(...interface{}) ports.Logger            { return d }
