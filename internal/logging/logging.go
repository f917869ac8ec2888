package logging

import (
	"log/slog"
	"os"
	"strings"

	"cmodel/internal/config"
)

// New returns a slog.Logger with the provided level string (info,
// debug, warn, error). format may be "json" or "text".
func New(level string, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// Setup builds the process logger from configuration and installs it
// as the slog default.
func Setup(cfg *config.Config) *slog.Logger {
	logger := New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	return logger
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
