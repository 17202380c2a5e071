// Package logging provides structured logging for the router's components,
// built on the standard library's log/slog. It exists to give every
// component the same JSON-vs-text, service-tagged logger without each one
// reaching for slog.Default() directly.
package logging

import (
	"context"
	"log/slog"
	"os"

	"github.com/SHINZO111/llm-smart-router/internal/redact"
)

// Level mirrors slog's severity levels under names the rest of the router
// uses in configuration (e.g. ROUTER_LOG_LEVEL=warn).
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) toSlog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config controls where and how a Logger writes.
type Config struct {
	Level   Level
	Service string
	JSON    bool
}

// New builds a *slog.Logger tagged with the given service name. JSON output
// is used for production (container log aggregation); text output is used
// for interactive CLI sessions.
func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level.toSlog()}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	handler = &redactingHandler{next: handler}
	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}
	return slog.New(handler)
}

// redactingHandler wraps another slog.Handler and scrubs credential-shaped
// substrings from the record message and every string-valued attribute
// before they reach the wrapped handler. No component that logs through
// this package can leak a key, token, or bearer header into a log sink.
type redactingHandler struct {
	next slog.Handler
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, redact.String(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &redactingHandler{next: h.next.WithAttrs(redacted)}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{next: h.next.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, redact.String(a.Value.String()))
	default:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, redact.Error(err))
		}
	}
	return a
}

// Default returns the router's standard CLI logger: info level, text
// output, tagged "router".
func Default() *slog.Logger {
	return New(Config{Level: LevelInfo, Service: "router"})
}
