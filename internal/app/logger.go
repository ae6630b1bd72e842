package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production runs ship JSON for log
// collection; everything else gets the readable text handler with source
// locations for debugging.
func NewLogger(cfg *Config) *slog.Logger {
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug, AddSource: true})
	}
	return slog.New(handler).With(slog.String("app", "moldworks"))
}
