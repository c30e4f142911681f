// Package logging configures the process-wide slog logger and carries the
// request-scoped attributes (correlation_id, convenio_id) through context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"convenios/internal/common/types"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	convenioIDKey    contextKey = "convenio_id"
)

// Config holds logging configuration.
type Config struct {
	Level   string // debug, info, warn, error
	Format  string // json, text
	Service string // added to every record when set
	Output  io.Writer
}

// Setup installs the default logger. Records logged with a context pick up
// the correlation and convenio IDs stored in it.
func Setup(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var base slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		base = slog.NewTextHandler(out, opts)
	} else {
		base = slog.NewJSONHandler(out, opts)
	}
	if cfg.Service != "" {
		base = base.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}

	slog.SetDefault(slog.New(contextHandler{Handler: base}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// contextHandler appends the context attributes to each record.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := CorrelationIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String(string(correlationIDKey), id.String()))
	}
	if id, ok := ConvenioIDFromContext(ctx); ok {
		r.AddAttrs(slog.Int64(string(convenioIDKey), id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name)}
}

func WithCorrelationID(ctx context.Context, id types.CorrelationID) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// WithConvenioID scopes the context to a single convenio.
func WithConvenioID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, convenioIDKey, id)
}

func CorrelationIDFromContext(ctx context.Context) types.CorrelationID {
	id, _ := ctx.Value(correlationIDKey).(types.CorrelationID)
	return id
}

func ConvenioIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(convenioIDKey).(int64)
	return id, ok
}

// Info, Warn and Error log without request scope (startup, shutdown, CLIs).
func Info(msg string, args ...any) { slog.Info(msg, args...) }
func Warn(msg string, args ...any) { slog.Warn(msg, args...) }
func Error(msg string, args ...any) { slog.Error(msg, args...) }

func InfoContext(ctx context.Context, msg string, args ...any) {
	slog.InfoContext(ctx, msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	slog.WarnContext(ctx, msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	slog.ErrorContext(ctx, msg, args...)
}
