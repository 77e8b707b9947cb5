// Package logger provides structured logging using slog for the build orchestrator.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with orchestration-specific field helpers.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger writing to w with the specified level and format.
func New(w io.Writer, level slog.Level, json bool) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Default creates a logger with default settings (INFO level, text format, stderr).
func Default() *Logger {
	return New(os.Stderr, slog.LevelInfo, false)
}

// ParseLevel maps a level name ("debug", "info", "warn", "error") onto the
// slog level, defaulting to info for anything unrecognized.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard creates a logger that drops all output. Useful in tests.
func Discard() *Logger {
	return New(io.Discard, slog.LevelError+1, false)
}

// WithComponent returns a new Logger with the component field.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", component),
	}
}

// WithRun returns a new Logger with the run ID field.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{
		Logger: l.Logger.With("run_id", runID),
	}
}

// WithArch returns a new Logger with the architecture field.
func (l *Logger) WithArch(arch string) *Logger {
	return &Logger{
		Logger: l.Logger.With("arch", arch),
	}
}

// WithHost returns a new Logger with the host field.
func (l *Logger) WithHost(host string) *Logger {
	return &Logger{
		Logger: l.Logger.With("host", host),
	}
}

// WithPhase returns a new Logger with the run phase field.
func (l *Logger) WithPhase(phase string) *Logger {
	return &Logger{
		Logger: l.Logger.With("phase", phase),
	}
}

// WithError returns a new Logger with the error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.Logger.With("error", err.Error()),
	}
}
