// Package platform delivers outbound messages to the messaging
// platform. The core treats delivery as fire-and-forget: a failed send
// is logged, never surfaced back into command state.
package platform

import (
	"context"
	"log/slog"
)

// Sender pushes one message to one recipient on the messaging
// platform. Implementations must be safe for concurrent use; the
// webhook path and the reminder scheduler both call Send.
type Sender interface {
	Send(ctx context.Context, senderID, text string) error
}

// LogSender records deliveries in the log instead of sending them.
// It is the default when no broker is configured, which keeps local
// development working without any messaging infrastructure.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the delivery and always succeeds.
func (s *LogSender) Send(_ context.Context, senderID, text string) error {
	s.logger.Info("message delivered (log only)",
		"recipient", senderID,
		"text_len", len(text),
	)
	return nil
}
