// Package logging provides structured logging for sessions, servers and
// transports. Loggers are values passed through options; nothing in this
// module logs through a global.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
)

// Level represents the severity of a log message
type Level int

const (
	DebugLevel Level = iota - 1
	InfoLevel
	WarnLevel
	ErrorLevel
	// OffLevel disables output entirely.
	OffLevel
)

// String returns the string representation of a log level
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case OffLevel:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name to a Level. Unknown names yield InfoLevel
// and an error.
func ParseLevel(name string) (Level, error) {
	switch name {
	case "debug", "DEBUG":
		return DebugLevel, nil
	case "info", "INFO", "":
		return InfoLevel, nil
	case "warn", "WARN", "warning":
		return WarnLevel, nil
	case "error", "ERROR":
		return ErrorLevel, nil
	case "off", "OFF", "none":
		return OffLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", name)
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field                 { return Field{Key: key, Value: value} }
func Int(key string, value int) Field                { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field              { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }
func Time(key string, value time.Time) Field         { return Field{Key: key, Value: value} }
func Any(key string, value any) Field                { return Field{Key: key, Value: value} }

// ErrorField creates an error field
func ErrorField(err error) Field {
	return Field{Key: "error", Value: err}
}

// Logger is the interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// WithFields returns a new logger with additional fields
	WithFields(fields ...Field) Logger
	// WithContext returns a new logger carrying the envelope ID stored in ctx
	WithContext(ctx context.Context) Logger
	// WithError returns a new logger with error fields; typed errors
	// contribute their code, type and severity
	WithError(err error) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// Entry represents a log entry
type Entry struct {
	Level      Level
	Message    string
	Fields     map[string]any
	Timestamp  time.Time
	EnvelopeID string
	Component  string
	Operation  string
}

// Formatter formats log entries
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Well-known field keys lifted into Entry.
const (
	EnvelopeIDKey = "envelope_id"
	ComponentKey  = "component"
	OperationKey  = "operation"
)

// sink is shared by a logger and every logger derived from it, so
// concurrent writes through child loggers never interleave.
type sink struct {
	mu        sync.Mutex
	output    io.Writer
	formatter Formatter
}

type baseLogger struct {
	sink   *sink
	mu     sync.RWMutex
	level  Level
	fields map[string]any
}

// New creates a new structured logger writing to output. Nil arguments
// default to os.Stderr and a text formatter.
func New(output io.Writer, formatter Formatter) Logger {
	if output == nil {
		output = os.Stderr
	}
	if formatter == nil {
		formatter = NewTextFormatter()
	}

	return &baseLogger{
		sink:   &sink{output: output, formatter: formatter},
		level:  InfoLevel,
		fields: make(map[string]any),
	}
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return nopLogger{}
}

// Component returns l with the component field set, or a no-op logger
// when l is nil.
func Component(l Logger, name string) Logger {
	if l == nil {
		return NewNop()
	}
	return l.WithFields(String(ComponentKey, name))
}

func (l *baseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields...) }
func (l *baseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields...) }
func (l *baseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields...) }
func (l *baseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields...) }

func (l *baseLogger) WithFields(fields ...Field) Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	newFields := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for _, field := range fields {
		newFields[field.Key] = field.Value
	}

	return &baseLogger{
		sink:   l.sink,
		level:  l.level,
		fields: newFields,
	}
}

func (l *baseLogger) WithContext(ctx context.Context) Logger {
	if id := EnvelopeIDFromContext(ctx); id != "" {
		return l.WithFields(String(EnvelopeIDKey, id))
	}
	return l.WithFields()
}

func (l *baseLogger) WithError(err error) Logger {
	if err == nil {
		return l.WithFields()
	}
	fields := []Field{ErrorField(err)}
	if te, ok := sdkerrors.AsTypedError(err); ok {
		fields = append(fields,
			String("error_code", te.Code()),
			String("error_type", string(te.Type())),
			String("error_severity", string(te.Severity())),
			Bool("retryable", te.Retryable()),
		)
	}
	return l.WithFields(fields...)
}

func (l *baseLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *baseLogger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *baseLogger) log(level Level, msg string, fields ...Field) {
	l.mu.RLock()
	if level < l.level || l.level == OffLevel {
		l.mu.RUnlock()
		return
	}
	entry := &Entry{
		Level:     level,
		Message:   msg,
		Fields:    make(map[string]any, len(l.fields)+len(fields)),
		Timestamp: time.Now(),
	}
	for k, v := range l.fields {
		entry.Fields[k] = v
	}
	l.mu.RUnlock()

	for _, field := range fields {
		entry.Fields[field.Key] = field.Value
	}

	if id, ok := entry.Fields[EnvelopeIDKey].(string); ok {
		entry.EnvelopeID = id
	}
	if component, ok := entry.Fields[ComponentKey].(string); ok {
		entry.Component = component
	}
	if operation, ok := entry.Fields[OperationKey].(string); ok {
		entry.Operation = operation
	}

	data, err := l.sink.formatter.Format(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to format log entry: %v\n", err)
		return
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if _, err := l.sink.output.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write log entry: %v\n", err)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...Field)               {}
func (nopLogger) Info(string, ...Field)                {}
func (nopLogger) Warn(string, ...Field)                {}
func (nopLogger) Error(string, ...Field)               {}
func (n nopLogger) WithFields(...Field) Logger         { return n }
func (n nopLogger) WithContext(context.Context) Logger { return n }
func (n nopLogger) WithError(error) Logger             { return n }
func (nopLogger) SetLevel(Level)                       {}
func (nopLogger) GetLevel() Level                      { return OffLevel }

type contextKey struct{}

// ContextWithEnvelopeID returns a context carrying the ID of the envelope
// being processed.
func ContextWithEnvelopeID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// EnvelopeIDFromContext extracts the envelope ID from a context
func EnvelopeIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}
