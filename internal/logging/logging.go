// Package logging builds the process logger and carries it through contexts.
//
// Environment variables:
//
//	LOG_LEVEL  = debug | info | warn | error  (default: info)
//	LOG_FORMAT = json | text                  (default: json)
//	LOG_SOURCE = true to add file:line to every record
//
// Records go to stderr; stdout belongs to command output and the MCP stdio
// transport.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type ctxKey struct{}

// levels maps accepted LOG_LEVEL spellings. Anything else is info.
var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// New returns a stderr logger configured from the LOG_* variables.
func New() *slog.Logger {
	src, _ := strconv.ParseBool(os.Getenv("LOG_SOURCE"))
	return build(os.Stderr, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), src)
}

// NewWriter returns a logger on w. Unknown levels mean info and unknown
// formats mean json.
func NewWriter(w io.Writer, level, format string) *slog.Logger {
	return build(w, level, format, false)
}

func build(w io.Writer, level, format string, addSource bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level), AddSource: addSource}
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l
	}
	return slog.LevelInfo
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or [slog.Default].
func FromContext(ctx context.Context) *slog.Logger {
	if l, _ := ctx.Value(ctxKey{}).(*slog.Logger); l != nil {
		return l
	}
	return slog.Default()
}

// WithComponent derives a logger tagged component=name and stores it in ctx.
func WithComponent(ctx context.Context, name string) context.Context {
	return WithLogger(ctx, FromContext(ctx).With(slog.String("component", name)))
}
