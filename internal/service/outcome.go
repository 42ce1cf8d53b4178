package service

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util"
)

// Outcome is the result of one committed mutation: the ticket as written and
// the domain events it produced. Callers decide where the events go.
type Outcome struct {
	Ticket *domain.Ticket
	Events []events.Event
}

func systemClock() time.Time {
	return time.Now().UTC()
}

func validateActor(actor domain.Actor) error {
	if actor.ID == "" || !actor.Role.Valid() {
		return apperrors.NewValidationError("a known actor is required", map[string]any{
			"actor_id":   actor.ID,
			"actor_role": actor.Role,
		})
	}
	return nil
}

// recipients returns the parties interested in ticket, minus the actor.
func recipients(ticket *domain.Ticket, actor domain.Actor, extra ...*string) []string {
	candidates := make([]string, 0, 2+len(extra))
	candidates = append(candidates, ticket.RequesterID)
	if ticket.AssignedTechnicianID != nil {
		candidates = append(candidates, *ticket.AssignedTechnicianID)
	}
	for _, id := range extra {
		if id != nil {
			candidates = append(candidates, *id)
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if id == "" || id == actor.ID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func newEvent(eventType events.EventType, ticket *domain.Ticket, actor domain.Actor, at time.Time, payload any, extra ...*string) events.Event {
	return events.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		TicketID:   ticket.ID,
		Actor:      events.FromDomain(actor),
		Timestamp:  at,
		Recipients: recipients(ticket, actor, extra...),
		Payload:    payload,
	}
}

// publishEvents hands committed events to the in-process dispatcher.
func publishEvents(ctx context.Context, dispatcher events.Dispatcher, evts []events.Event) {
	if dispatcher == nil {
		return
	}
	for _, event := range evts {
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = systemClock()
		}
		_ = dispatcher.Publish(ctx, event)
	}
}

// stringPreview shortens body to at most max runes, never splitting one.
func stringPreview(body string, max int) string {
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	if max <= 3 {
		return firstRunes(body, max)
	}
	return firstRunes(body, max-3) + "..."
}

func firstRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func optionalString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
