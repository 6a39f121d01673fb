package notify

import (
	"context"
	"log/slog"
)

// Log writes alerts to the logger instead of a chat. Used when no bot token is configured.
type Log struct {
	log *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{log: logger.With("component", "notify")}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Send(ctx context.Context, message, media string) error {
	l.log.InfoContext(ctx, "alert", "message", message, "media", media)
	return nil
}
