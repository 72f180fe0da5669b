package acton

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace is a level below Debug used for per-row storage tracing.
const LevelTrace = slog.LevelDebug - 4

// Logger wraps slog.Logger with acton-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// ParseLevel maps a level name to a slog.Level.
// Supported values: "trace", "debug", "info", "warn", "error" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
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

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that writes human-readable text logs to w.
// A nil writer means stderr.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	})
	return NewLogger(handler)
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// WithComponent tags every record with the emitting component.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
	}
}

// WithEpoch adds an epoch field to the logger.
func (l *Logger) WithEpoch(epoch int) *Logger {
	return &Logger{
		Logger: l.Logger.With("epoch", epoch),
	}
}

// LogCast logs a dtype conversion performed on write.
func (l *Logger) LogCast(ctx context.Context, what, from, to string, lossy bool) {
	l.WarnContext(ctx, "casting "+what,
		"from", from,
		"to", to,
		"lossy", lossy,
	)
}

// LogEpoch logs the outcome of one active-learning epoch.
func (l *Logger) LogEpoch(ctx context.Context, epoch, labelled, pool int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "epoch failed",
			"epoch", epoch,
			"labelled", labelled,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "epoch completed",
		"epoch", epoch,
		"labelled", labelled,
		"pool", pool,
	)
}

// LogSnapshot logs a snapshot append.
func (l *Logger) LogSnapshot(ctx context.Context, path string, records int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot append failed",
			"path", path,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "snapshot appended",
		"path", path,
		"records", records,
	)
}
