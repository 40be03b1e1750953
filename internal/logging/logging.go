// Package logging provides structured logging on top of log/slog, plus the
// named events the engine and query service emit.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Level is a log severity; values match slog's.
type Level slog.Level

const (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

// Format selects the record encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatText
)

var (
	logger *slog.Logger

	// Stdout is reserved for command output.
	output io.Writer = os.Stderr
)

func init() {
	InitLogger(LevelInfo, FormatJSON)
}

// ParseLevel maps a configuration string to a Level. Empty means info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// ParseFormat maps a configuration string to a Format. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "text":
		return FormatText, nil
	}
	return FormatJSON, fmt.Errorf("unknown log format %q", s)
}

// SetOutput redirects subsequent InitLogger calls to w.
func SetOutput(w io.Writer) {
	output = w
}

// InitLogger replaces the package and slog default loggers.
func InitLogger(level Level, format Format) {
	opts := &slog.HandlerOptions{
		Level: slog.Level(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	var h slog.Handler = slog.NewJSONHandler(output, opts)
	if format == FormatText {
		h = slog.NewTextHandler(output, opts)
	}
	logger = slog.New(h)
	slog.SetDefault(logger)
}

// GetLogger returns the package logger.
func GetLogger() *slog.Logger {
	return logger
}

type requestIDKey struct{}

// WithRequestID attaches a request ID to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID carried by ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// FromContext returns the package logger annotated with ctx's request ID.
func FromContext(ctx context.Context) *slog.Logger {
	if id := RequestID(ctx); id != "" {
		return logger.With("request_id", id)
	}
	return logger
}

func Debug(msg string, args ...any) { logger.Debug(msg, args...) }
func Info(msg string, args ...any)  { logger.Info(msg, args...) }
func Warn(msg string, args ...any)  { logger.Warn(msg, args...) }
func Error(msg string, args ...any) { logger.Error(msg, args...) }

// event emits a named record with its fixed attributes first.
func event(ctx context.Context, level slog.Level, name string, fixed, extra []any) {
	FromContext(ctx).Log(ctx, level, name, append(fixed, extra...)...)
}

// DatasetLoaded records a dataset that finished loading.
func DatasetLoaded(kind, path string, records int, took time.Duration, args ...any) {
	event(context.Background(), slog.LevelInfo, "dataset_loaded", []any{
		"kind", kind,
		"path", path,
		"records", records,
		"duration_ms", took.Milliseconds(),
	}, args)
}

// DatasetAnomaly records a dataset row that was skipped or defaulted.
func DatasetAnomaly(kind, record, reason string, args ...any) {
	event(context.Background(), slog.LevelWarn, "dataset_anomaly", []any{
		"kind", kind,
		"record", record,
		"reason", reason,
	}, args)
}

// QueryServed records a completed engine query at debug level.
func QueryServed(ctx context.Context, operation, reference string, results int, args ...any) {
	event(ctx, slog.LevelDebug, "query_served", []any{
		"operation", operation,
		"reference", reference,
		"results", results,
	}, args)
}

// ServerStartup records a listener coming up.
func ServerStartup(serverType, protocol string, port int, args ...any) {
	event(context.Background(), slog.LevelInfo, "server_startup", []any{
		"server_type", serverType,
		"protocol", protocol,
		"port", port,
	}, args)
}

// httpRequest records a served request. Level is chosen by the caller.
func httpRequest(ctx context.Context, level slog.Level, r requestLine, args ...any) {
	event(ctx, level, "http_request", []any{
		"method", r.method,
		"path", r.path,
		"query", r.query,
		"remote_addr", r.remoteAddr,
		"status_code", r.status,
		"bytes", r.bytes,
		"duration_ms", r.took.Milliseconds(),
	}, args)
}
