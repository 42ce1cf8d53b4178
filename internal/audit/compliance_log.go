package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/events"
)

// LogService is the broader compliance log. External reporting reads it
// independently of the ticket history.
type LogService interface {
	Emit(ctx context.Context, event events.Event)
}

// ComplianceLog writes every domain event as one structured log line.
type ComplianceLog struct {
	logger *zap.Logger
}

// NewComplianceLog builds a log writing to a named child of logger.
func NewComplianceLog(logger *zap.Logger) *ComplianceLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ComplianceLog{logger: logger.Named("compliance")}
}

func (c *ComplianceLog) Emit(_ context.Context, event events.Event) {
	c.logger.Info("ticket_event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor_id", event.Actor.ID),
		zap.String("actor_role", string(event.Actor.Role)),
		zap.Time("timestamp", event.Timestamp),
		zap.Any("payload", event.Payload),
	)
}

// Register subscribes the log to every event on dispatcher.
func (c *ComplianceLog) Register(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.SubscribeAll(func(ctx context.Context, event events.Event) error {
		c.Emit(ctx, event)
		return nil
	})
}
