package app

import (
	"log/slog"
	"os"
)

// NewLogger returns the process logger. Production runs emit JSON with
// source locations for log aggregation; everything else gets the text
// handler. Every record carries the service name and environment.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}

	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	env := "development"
	if cfg != nil && cfg.AppEnv != "" {
		env = cfg.AppEnv
	}
	return slog.New(handler).With(
		slog.String("service", "pharmaxis"),
		slog.String("env", env),
	)
}
