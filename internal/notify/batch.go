package notify

import (
	"context"
	"sort"

	"github.com/spec-kit/helpdesk-engine/internal/events"
)

// Batch collects events from a bulk execution and folds them into one
// digest intent per recipient.
type Batch struct {
	action  string
	actorID string
	// recipient -> ticket -> event types seen
	byRecipient map[string]map[string]map[events.EventType]struct{}
}

// NewBatch starts a batch for action performed by actorID. The actor is
// never notified about their own changes.
func NewBatch(action, actorID string) *Batch {
	return &Batch{
		action:      action,
		actorID:     actorID,
		byRecipient: make(map[string]map[string]map[events.EventType]struct{}),
	}
}

// AddEvent records event for each of its recipients.
func (b *Batch) AddEvent(event events.Event) {
	for _, recipient := range event.Recipients {
		b.Add(recipient, event.TicketID, event.Type)
	}
}

// Add records one (recipient, ticket, event type) triple; duplicates collapse.
func (b *Batch) Add(recipientID, ticketID string, eventType events.EventType) {
	if recipientID == "" || recipientID == b.actorID {
		return
	}
	tickets, ok := b.byRecipient[recipientID]
	if !ok {
		tickets = make(map[string]map[events.EventType]struct{})
		b.byRecipient[recipientID] = tickets
	}
	types, ok := tickets[ticketID]
	if !ok {
		types = make(map[events.EventType]struct{})
		tickets[ticketID] = types
	}
	types[eventType] = struct{}{}
}

// Len returns the number of distinct recipients.
func (b *Batch) Len() int {
	return len(b.byRecipient)
}

// Intents returns one digest per recipient, ordered by recipient id.
func (b *Batch) Intents() []Intent {
	recipients := make([]string, 0, len(b.byRecipient))
	for r := range b.byRecipient {
		recipients = append(recipients, r)
	}
	sort.Strings(recipients)

	intents := make([]Intent, 0, len(recipients))
	for _, recipient := range recipients {
		tickets := b.byRecipient[recipient]
		payload := events.BulkDigestPayload{
			Action: b.action,
			Events: make(map[string][]string, len(tickets)),
		}
		for ticketID, types := range tickets {
			payload.TicketIDs = append(payload.TicketIDs, ticketID)
			names := make([]string, 0, len(types))
			for t := range types {
				names = append(names, string(t))
			}
			sort.Strings(names)
			payload.Events[ticketID] = names
		}
		sort.Strings(payload.TicketIDs)
		intents = append(intents, Intent{
			RecipientID: recipient,
			EventType:   events.EventBulkDigest,
			Payload:     payload,
		})
	}
	return intents
}

// DispatchTo hands every digest to dispatcher.
func (b *Batch) DispatchTo(ctx context.Context, dispatcher Dispatcher) int {
	if dispatcher == nil {
		return 0
	}
	intents := b.Intents()
	for _, intent := range intents {
		dispatcher.Dispatch(ctx, intent.RecipientID, intent.TicketID, intent.EventType, intent.Payload)
	}
	return len(intents)
}
