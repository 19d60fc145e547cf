package vqcodec

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/hupe1980/vqcodec/codebook"
)

// Logger wraps slog.Logger with codec-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
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

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{
		Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(1000), // Unreachable level
		})),
	}
}

// WithRole adds the plane role ("R", "Y", ...) to the logger.
func (l *Logger) WithRole(role string) *Logger {
	return &Logger{Logger: l.Logger.With("role", role)}
}

// WithImage adds an image name to the logger.
func (l *Logger) WithImage(name string) *Logger {
	return &Logger{Logger: l.Logger.With("image", name)}
}

// WithCodebookSet adds a codebook set ID to the logger.
func (l *Logger) WithCodebookSet(id string) *Logger {
	return &Logger{Logger: l.Logger.With("codebook_set", id)}
}

// LogTrain logs one per-role training run.
func (l *Logger) LogTrain(ctx context.Context, role string, stats codebook.Stats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "codebook training failed",
			"role", role,
			"vectors", stats.Vectors,
			"error", err,
		)
		return
	}
	if stats.Backfill > 0 {
		l.WarnContext(ctx, "codebook back-filled",
			"role", role,
			"vectors", stats.Vectors,
			"realized", stats.Realized,
			"backfill", stats.Backfill,
		)
	}
	l.InfoContext(ctx, "codebook trained",
		"role", role,
		"vectors", stats.Vectors,
		"size", stats.Requested,
		"effective", stats.Effective,
	)
}

// LogCompress logs an image compression.
func (l *Logger) LogCompress(ctx context.Context, width, height, blocks int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "compress failed",
			"width", width,
			"height", height,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "compress completed",
			"width", width,
			"height", height,
			"blocks", blocks,
		)
	}
}

// LogDecompress logs an image reconstruction.
func (l *Logger) LogDecompress(ctx context.Context, width, height, clamped int, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "decompress failed",
			"width", width,
			"height", height,
			"error", err,
		)
	case clamped > 0:
		l.WarnContext(ctx, "decompress completed with clamped indices",
			"width", width,
			"height", height,
			"clamped", clamped,
		)
	default:
		l.DebugContext(ctx, "decompress completed",
			"width", width,
			"height", height,
		)
	}
}
