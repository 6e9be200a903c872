// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while callers plug in any
// structured logger. Components default to NoOpLogger so library code never
// forces a logging dependency on its users.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Logger defines the minimal logging interface for DefiMesh. Arguments
// follow the slog convention of alternating keys and values.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// NewSlogLogger creates a Logger writing structured entries to stdout. Level
// is one of debug, info, warn or error; format is text or json. Unknown
// values fall back to info and text.
func NewSlogLogger(level, format string) Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	return NewSlogAdapter(slog.New(handler))
}

// With returns a Logger that attaches the given key/value pairs to every
// entry. Used to scope a logger to one execution or component. A nil logger
// yields a NoOpLogger.
func With(l Logger, args ...any) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	if len(args) == 0 {
		return l
	}
	if s, ok := l.(*SlogAdapter); ok {
		return &SlogAdapter{Logger: s.Logger.With(args...)}
	}
	return &scopedLogger{base: l, args: args}
}

type scopedLogger struct {
	base Logger
	args []any
}

func (s *scopedLogger) Debug(msg string, args ...any) {
	s.base.Debug(msg, append(s.args[:len(s.args):len(s.args)], args...)...)
}

func (s *scopedLogger) Info(msg string, args ...any) {
	s.base.Info(msg, append(s.args[:len(s.args):len(s.args)], args...)...)
}

func (s *scopedLogger) Warn(msg string, args ...any) {
	s.base.Warn(msg, append(s.args[:len(s.args):len(s.args)], args...)...)
}

func (s *scopedLogger) Error(msg string, args ...any) {
	s.base.Error(msg, append(s.args[:len(s.args):len(s.args)], args...)...)
}

// NoOpLogger discards all log messages. Useful for testing or when logging
// is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}
