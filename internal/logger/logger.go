// Package logger configures the application slog logger and provides a request-scoped logger.
//
// The RequestLogging middleware stores a logger in the request context that already carries the request id,
// method and path. Handlers retrieve it with ContextRequestLogger and can attach attributes to the
// final "request completed" log line with ContextWithLogAttrs.
package logger

import (
	"context"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// LevelNone disables logging altogether (used by tests)
const LevelNone = slog.Level(math.MaxInt32)

type contextKey int

const (
	requestLoggerKey contextKey = iota
	logAttrsKey
)

// logAttrs collects attributes added by handlers during a request.
// It is stored as a pointer so handlers can add attributes without replacing the request context.
type logAttrs struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

// InitLogger creates the application logger and installs it as the slog default.
//
// dev and test environments use the tint handler (coloured, human readable output),
// staging and prod use JSON output.
func InitLogger(level slog.Level, environment string) *slog.Logger {
	var handler slog.Handler

	switch environment {
	case "prod", "staging":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLogLevel converts a LOG_LEVEL string to a slog.Level. Unrecognised values default to info.
// "none" returns LevelNone.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none", "off":
		return LevelNone
	default:
		return slog.LevelInfo
	}
}

// ContextWithRequestLogger returns a copy of ctx carrying the request logger and an empty attribute collector.
func ContextWithRequestLogger(ctx context.Context, logger *slog.Logger) context.Context {
	ctx = context.WithValue(ctx, requestLoggerKey, logger)
	return context.WithValue(ctx, logAttrsKey, &logAttrs{})
}

// ContextRequestLogger returns the request logger stored in ctx, or the default logger when there is none.
func ContextRequestLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(requestLoggerKey).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// ContextWithLogAttrs adds attributes to the final request log line.
// It is a no-op when ctx was not created by the RequestLogging middleware.
func ContextWithLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	if ctx == nil {
		return
	}
	holder, ok := ctx.Value(logAttrsKey).(*logAttrs)
	if !ok || holder == nil {
		return
	}
	holder.mu.Lock()
	holder.attrs = append(holder.attrs, attrs...)
	holder.mu.Unlock()
}

// contextLogAttrs returns the attributes collected for the current request
func contextLogAttrs(ctx context.Context) []slog.Attr {
	holder, ok := ctx.Value(logAttrsKey).(*logAttrs)
	if !ok || holder == nil {
		return nil
	}
	holder.mu.Lock()
	defer holder.mu.Unlock()
	out := make([]slog.Attr, len(holder.attrs))
	copy(out, holder.attrs)
	return out
}
