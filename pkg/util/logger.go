package util

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a debug text logger in development and an info JSON
// logger everywhere else. Every record carries the service name plus any
// component given, e.g. NewLogger(env, "worker").
func NewLogger(env string, component ...string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var handler slog.Handler
	switch strings.ToLower(env) {
	case "development", "dev", "local":
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", "asset-shipper")
	if len(component) > 0 && component[0] != "" {
		logger = logger.With("component", component[0])
	}
	return logger
}
