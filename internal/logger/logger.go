// Package logger builds the slog loggers used by the finauth commands.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects the handler. Format is "json" (default) or "text"; Level
// is debug, info (default), warn or error.
type Options struct {
	Format string
	Level  string
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Setup returns a logger writing to w, or stderr when w is nil.
func Setup(w io.Writer, opts Options) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(opts.Format) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
