// Package logger provides structured logging utilities.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with additional context.
type Logger struct {
	*slog.Logger
}

// New creates a new logger with the specified level and format writing to stderr.
func New(level, format string) *Logger {
	return NewWithWriter(level, format, os.Stderr)
}

// NewWithWriter creates a new logger writing to w.
func NewWithWriter(level, format string, w io.Writer) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})),
	}
}

// WithTopic returns a logger with topic context.
func (l *Logger) WithTopic(topic string) *Logger {
	return &Logger{
		Logger: l.With("topic", topic),
	}
}

// WithMode returns a logger with deterioration mode context.
func (l *Logger) WithMode(mode string) *Logger {
	return &Logger{
		Logger: l.With("mode", mode),
	}
}

// WithCell returns a logger with grid cell context.
func (l *Logger) WithCell(cell string) *Logger {
	return &Logger{
		Logger: l.With("cell", cell),
	}
}

// WithError returns a logger with error context.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.With("error", err.Error()),
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the default logger.
func Default() *Logger {
	return New("info", "text")
}
