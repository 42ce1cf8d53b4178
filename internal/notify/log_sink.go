package notify

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// LogSink records intents as debug log lines for email and webhook channels.
type LogSink struct {
	logger     *zap.Logger
	emailFrom  string
	webhookURL string
}

// NewLogSink builds the sink.
func NewLogSink(logger *zap.Logger, emailFrom, webhookURL string) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("notify"), emailFrom: emailFrom, webhookURL: webhookURL}
}

func (s *LogSink) Deliver(_ context.Context, intent Intent) error {
	s.logger.Info("notification intent",
		zap.String("recipient_id", intent.RecipientID),
		zap.String("ticket_id", intent.TicketID),
		zap.String("event_type", string(intent.EventType)))
	if strings.TrimSpace(s.emailFrom) != "" {
		s.logger.Debug("email channel",
			zap.String("from", s.emailFrom),
			zap.String("recipient_id", intent.RecipientID))
	}
	if strings.TrimSpace(s.webhookURL) != "" {
		s.logger.Debug("webhook channel",
			zap.String("url", s.webhookURL),
			zap.String("recipient_id", intent.RecipientID))
	}
	return nil
}
