package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSender only logs the notification. Used when SMTP is not configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger.With(zap.String("component", "notify"))}
}

func (s *LogSender) Notify(_ context.Context, to, subject, body string) error {
	s.logger.Info("notification (smtp disabled)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_length", len(body)),
	)
	return nil
}

// Notifier is satisfied by both senders.
type Notifier interface {
	Notify(ctx context.Context, to, subject, body string) error
}

// New picks the SMTP sender when configured, the log sender otherwise.
func New(cfg SMTPConfig, logger *zap.Logger) Notifier {
	if cfg.Enabled() {
		return NewEmailSender(cfg, logger)
	}
	return NewLogSender(logger)
}
