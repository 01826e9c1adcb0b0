// Package log provides the common leveled logging interface for flatkv
// components.
package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"
)

// Level represents the logging level
type Level int

const (
	// LevelDebug level for detailed troubleshooting information
	LevelDebug Level = iota
	// LevelInfo level for general operational information
	LevelInfo
	// LevelWarn level for potentially harmful situations
	LevelWarn
	// LevelError level for error events
	LevelError
)

// String returns the string representation of the log level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", l)
	}
}

// ParseLevel maps a level name to a Level, defaulting to info.
func ParseLevel(name string) Level {
	switch name {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is the interface flatkv components log through
type Logger interface {
	// Debug logs a debug-level message
	Debug(msg string, args ...interface{})
	// Info logs an info-level message
	Info(msg string, args ...interface{})
	// Warn logs a warning-level message
	Warn(msg string, args ...interface{})
	// Error logs an error-level message
	Error(msg string, args ...interface{})
	// WithField returns a new logger with the given field added to the context
	WithField(key string, value interface{}) Logger
	// SetLevel sets the logging level
	SetLevel(level Level)
}

// StandardLogger implements Logger with a timestamped line format
type StandardLogger struct {
	mu     sync.Mutex
	level  Level
	out    io.Writer
	fields map[string]interface{}
}

// LoggerOption configures a StandardLogger
type LoggerOption func(*StandardLogger)

// WithLevel sets the logging level
func WithLevel(level Level) LoggerOption {
	return func(l *StandardLogger) { l.level = level }
}

// WithOutput sets the output writer
func WithOutput(out io.Writer) LoggerOption {
	return func(l *StandardLogger) { l.out = out }
}

// NewStandardLogger creates a new StandardLogger with the given options
func NewStandardLogger(options ...LoggerOption) *StandardLogger {
	logger := &StandardLogger{
		level:  LevelInfo,
		out:    os.Stderr,
		fields: make(map[string]interface{}),
	}
	for _, option := range options {
		option(logger)
	}
	return logger
}

func (l *StandardLogger) log(level Level, msg string, args ...interface{}) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	fieldsStr := ""
	if len(l.fields) > 0 {
		keys := make([]string, 0, len(l.fields))
		for k := range l.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fieldsStr += fmt.Sprintf(" %s=%v", k, l.fields[k])
		}
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(l.out, "[%s] [%s]%s %s\n", timestamp, level.String(), fieldsStr, msg)
}

// Debug logs a debug-level message
func (l *StandardLogger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info-level message
func (l *StandardLogger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning-level message
func (l *StandardLogger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error-level message
func (l *StandardLogger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// WithField returns a new logger with the given field added to the context
func (l *StandardLogger) WithField(key string, value interface{}) Logger {
	fields := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value
	return &StandardLogger{level: l.level, out: l.out, fields: fields}
}

// SetLevel sets the logging level
func (l *StandardLogger) SetLevel(level Level) {
	l.level = level
}

var defaultLogger = NewStandardLogger()

// GetDefaultLogger returns the default logger instance
func GetDefaultLogger() *StandardLogger {
	return defaultLogger
}

// NewNopLogger returns a logger that discards everything, for callers that
// do not care about store logging.
func NewNopLogger() Logger {
	return &StandardLogger{level: LevelError + 1, out: io.Discard, fields: map[string]interface{}{}}
}
