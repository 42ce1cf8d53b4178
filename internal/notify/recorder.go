package notify

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/events"
)

// Recorder is a synchronous Dispatcher that keeps every intent in memory.
// Useful for tests and dry runs.
type Recorder struct {
	mu      sync.Mutex
	intents []Intent
}

func (r *Recorder) Dispatch(_ context.Context, recipientID, ticketID string, eventType events.EventType, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, Intent{
		RecipientID: recipientID,
		TicketID:    ticketID,
		EventType:   eventType,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	})
}

// Intents returns a copy of everything dispatched so far.
func (r *Recorder) Intents() []Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Intent, len(r.intents))
	copy(out, r.intents)
	return out
}

// Reset forgets recorded intents.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.intents = nil
	r.mu.Unlock()
}

// Deliver lets a Recorder act as a Sink too.
func (r *Recorder) Deliver(ctx context.Context, intent Intent) error {
	r.Dispatch(ctx, intent.RecipientID, intent.TicketID, intent.EventType, intent.Payload)
	return nil
}
