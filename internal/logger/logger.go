// Package logger provides structured logging setup for DealFlow.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/DealFlow/internal/config"
)

// New creates a *slog.Logger from the given Logging config and a Closer
// that flushes the async handler on shutdown. Output is JSON to stdout
// with a "service" attribute on every record.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	level := parseLevel(cfg.Level)

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	closer := Closer(nopCloser{})
	if cfg.Async {
		async := NewAsyncHandler(handler, cfg.Buffer, cfg.Workers)
		handler = async
		closer = async
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
