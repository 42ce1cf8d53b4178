// Package notify turns domain events into notification intents and hands
// them to delivery sinks. Delivery itself is external.
package notify

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/events"
)

// Dispatcher receives notification intents. It is fire-and-forget.
type Dispatcher interface {
	Dispatch(ctx context.Context, recipientID, ticketID string, eventType events.EventType, payload any)
}

// Intent is one notification to one recipient.
type Intent struct {
	RecipientID string           `json:"recipient_id"`
	TicketID    string           `json:"ticket_id,omitempty"`
	EventType   events.EventType `json:"event_type"`
	Payload     any              `json:"payload,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Sink delivers intents somewhere (log, queue, webhook relay).
type Sink interface {
	Deliver(ctx context.Context, intent Intent) error
}

// FanoutSink delivers to every sink, returning the first error.
type FanoutSink []Sink

func (f FanoutSink) Deliver(ctx context.Context, intent Intent) error {
	var firstErr error
	for _, sink := range f {
		if err := sink.Deliver(ctx, intent); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
