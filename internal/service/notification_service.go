package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/notify"
)

// NotificationService turns single-ticket domain events into notification
// intents, one per recipient. Bulk events are skipped; the bulk coordinator
// sends digests for them.
type NotificationService struct {
	events   events.Dispatcher
	notifier notify.Dispatcher
	logger   *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, notifier notify.Dispatcher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		events:   dispatcher,
		notifier: notifier,
		logger:   logger.Named("notifications"),
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.events == nil {
		return
	}
	n.events.Subscribe(events.EventTicketCreated, n.handle)
	n.events.Subscribe(events.EventTicketStatusChanged, n.handle)
	n.events.Subscribe(events.EventTicketPriorityChanged, n.handle)
	n.events.Subscribe(events.EventTicketAssigned, n.handle)
	n.events.Subscribe(events.EventTicketUnassigned, n.handle)
	n.events.Subscribe(events.EventTicketCommented, n.handle)
	n.events.Subscribe(events.EventTicketEscalated, n.handle)
	n.events.Subscribe(events.EventTicketDeleted, n.handle)
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	if event.BatchID != "" || n.notifier == nil {
		return nil
	}
	for _, recipient := range event.Recipients {
		n.notifier.Dispatch(ctx, recipient, event.TicketID, event.Type, event.Payload)
	}
	n.logger.Debug(string(event.Type),
		zap.String("ticket_id", event.TicketID),
		zap.Int("recipients", len(event.Recipients)))
	return nil
}
