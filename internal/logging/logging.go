// Package logging sets up the structured logger shared by the knxunlock
// commands.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Config holds logging configuration.
type Config struct {
	Format string `mapstructure:"format" yaml:"format"` // "json" | "text"
	Level  string `mapstructure:"level" yaml:"level"`   // "debug" | "info" | "warn" | "error"
}

// New builds a logger writing to w. A nil w writes to stderr so that stdout
// stays free for reports.
func New(cfg Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Setup installs a logger built from cfg and writing to w as the slog
// default and returns it.
func Setup(cfg Config, w io.Writer) *slog.Logger {
	l := New(cfg, w)
	slog.SetDefault(l)
	return l
}

// ParseLevel converts a level name to slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
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

type runIDKey struct{}

// NewRunID returns a fresh run correlation id.
func NewRunID() string {
	return uuid.New().String()
}

// WithRunID stores the run id in ctx.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the run id stored in ctx, or "".
func RunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRun tags l with the run id of ctx, generating and storing one when ctx
// has none.
func WithRun(ctx context.Context, l *slog.Logger) (context.Context, *slog.Logger) {
	id := RunID(ctx)
	if id == "" {
		id = NewRunID()
		ctx = WithRunID(ctx, id)
	}
	return ctx, l.With("run", id)
}

// Component returns a child of parent for one subsystem. A nil parent means
// the default logger.
func Component(parent *slog.Logger, name string) *slog.Logger {
	if parent == nil {
		parent = slog.Default()
	}
	return parent.With("component", name)
}
