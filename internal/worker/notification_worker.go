package worker

import (
	"github.com/spec-kit/helpdesk-engine/internal/audit"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/service"
)

// StartNotificationWorker registers the event subscribers: notification
// intents and the compliance log.
func StartNotificationWorker(dispatcher events.Dispatcher, notificationService *service.NotificationService, compliance *audit.ComplianceLog) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if compliance != nil && dispatcher != nil {
		compliance.Register(dispatcher)
	}
}
