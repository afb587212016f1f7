package email

import (
	"context"
	"log/slog"
)

// LogTransport writes messages to the log instead of sending them. Used in
// development when no mail provider is configured.
type LogTransport struct {
	logger *slog.Logger
}

func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (l *LogTransport) Deliver(ctx context.Context, msg Message) error {
	l.logger.InfoContext(ctx, "email",
		"from", msg.From,
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.TextBody,
	)
	return nil
}
