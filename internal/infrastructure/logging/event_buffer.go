package logging

import (
	"context"
	"sync"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
)

const defaultBufferLimit = 1000

// Level names a buffered entry's severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is one buffered log call.
type Entry struct {
	Ctx     context.Context
	Level   Level
	Message string
	Fields  []interface{}
}

// Field returns the value logged under key, if any.
func (e Entry) Field(key string) (interface{}, bool) {
	for i := 0; i+1 < len(e.Fields); i += 2 {
		if k, ok := e.Fields[i].(string); ok && k == key {
			return e.Fields[i+1], true
		}
	}
	return nil, false
}

// EventBuffer holds log entries emitted before the configured logger exists, such
// as warnings raised while the configuration itself is loaded. When full, the
// oldest entry is dropped.
type EventBuffer struct {
	mu      sync.Mutex
	limit   int
	entries []Entry
}

// NewEventBuffer creates a buffer with the provided capacity (defaults to 1000).
func NewEventBuffer(limit int) *EventBuffer {
	if limit <= 0 {
		limit = defaultBufferLimit
	}
	return &EventBuffer{limit: limit, entries: make([]Entry, 0, limit)}
}

func (b *EventBuffer) add(entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) == b.limit {
		copy(b.entries, b.entries[1:])
		b.entries[len(b.entries)-1] = entry
		return
	}
	b.entries = append(b.entries, entry)
}

// Entries returns a snapshot of the buffered entries.
func (b *EventBuffer) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Entry(nil), b.entries...)
}

// Flush replays buffered entries into delegate in order and empties the buffer.
func (b *EventBuffer) Flush(delegate ports.Logger) {
	if delegate == nil {
		return
	}
	b.mu.Lock()
	entries := append([]Entry(nil), b.entries...)
	b.entries = b.entries[:0]
	b.mu.Unlock()

	for _, e := range entries {
		switch e.Level {
		case LevelDebug:
			delegate.Debug(e.Ctx, e.Message, e.Fields...)
		case LevelWarn:
			delegate.Warn(e.Ctx, e.Message, e.Fields...)
		case LevelError:
			delegate.Error(e.Ctx, e.Message, e.Fields...)
		default:
			delegate.Info(e.Ctx, e.Message, e.Fields...)
		}
	}
}

// Logger returns a ports.Logger that records into the buffer.
func (b *EventBuffer) Logger() ports.Logger {
	return &bufferLogger{buffer: b}
}

type bufferLogger struct {
	buffer *EventBuffer
	fields []interface{}
}

func (l *bufferLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	l.record(ctx, LevelDebug, msg, fields)
}

func (l *bufferLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	l.record(ctx, LevelInfo, msg, fields)
}

func (l *bufferLogger) Warn(ctx context.Context, msg string, fields ...interface{}) {
	l.record(ctx, LevelWarn, msg, fields)
}

func (l *bufferLogger) Error(ctx context.Context, msg string, fields ...interface{}) {
	l.record(ctx, LevelError, msg, fields)
}

func (l *bufferLogger) With(fields ...interface{}) ports.Logger {
	return &bufferLogger{buffer: l.buffer, fields: concatFields(l.fields, fields)}
}

func (l *bufferLogger) record(ctx context.Context, level Level, msg string, fields []interface{}) {
	l.buffer.add(Entry{Ctx: ctx, Level: level, Message: msg, Fields: concatFields(l.fields, fields)})
}

func concatFields(base, extra []interface{}) []interface{} {
	out := make([]interface{}, 0, len(base)+len(extra))
	return append(append(out, base...), extra...)
}
