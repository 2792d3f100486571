package logger

import (
	"io"
	"log/slog"

	"github.com/jwebster45206/villager-trader/internal/config"
)

// Setup configures the global slog logger based on environment, writing to w.
// The console UI routes logs to a file so they do not tear the terminal.
func Setup(cfg *config.Config, w io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	if cfg.Environment == "production" {
		// JSON format for production
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// WithBot tags every record with the bot name and instance id.
func WithBot(logger *slog.Logger, username, instanceID string) *slog.Logger {
	return logger.With("bot", username, "instance_id", instanceID)
}
