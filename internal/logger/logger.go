package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// ContextKey is a type for context keys used by the logger
type ContextKey string

const (
	// RequestIDKey is the context key for request IDs
	RequestIDKey ContextKey = "request_id"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// Init initializes the global logger with the specified log level.
// Output is JSON when ENV=production and text otherwise.
func Init(levelStr string) {
	format := "text"
	if os.Getenv("ENV") == "production" {
		format = "json"
	}
	InitWithWriter(os.Stdout, levelStr, format)
}

// InitWithWriter initializes the global logger writing to w in the given format ("json" or "text").
func InitWithWriter(w io.Writer, levelStr, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(levelStr)}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	l := slog.New(handler)
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	slog.SetDefault(l)
}

// parseLevel converts a string log level to slog.Level
func parseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the default logger
func Get() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l == nil {
		Init("info")
		mu.RLock()
		l = defaultLogger
		mu.RUnlock()
	}
	return l
}

// WithRequestID returns a logger with the request ID from context
func WithRequestID(ctx context.Context) *slog.Logger {
	l := Get()
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok && reqID != "" {
		l = l.With("request_id", reqID)
	}
	return l
}

// WithComponent returns a logger with a component label
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

func Debug(msg string, args ...any) { Get().Debug(msg, args...) }
func Info(msg string, args ...any)  { Get().Info(msg, args...) }
func Warn(msg string, args ...any)  { Get().Warn(msg, args...) }
func Error(msg string, args ...any) { Get().Error(msg, args...) }

// InfoContext logs an info message tagged with the request ID from ctx
func InfoContext(ctx context.Context, msg string, args ...any) {
	WithRequestID(ctx).Info(msg, args...)
}

// WarnContext logs a warning tagged with the request ID from ctx
func WarnContext(ctx context.Context, msg string, args ...any) {
	WithRequestID(ctx).Warn(msg, args...)
}

// ErrorContext logs an error tagged with the request ID from ctx
func ErrorContext(ctx context.Context, msg string, args ...any) {
	WithRequestID(ctx).Error(msg, args...)
}
