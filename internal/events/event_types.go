package events

import (
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketUnassigned      EventType = "ticket_unassigned"
	EventTicketCommented       EventType = "ticket_commented"
	EventTicketEscalated       EventType = "ticket_escalated"
	EventTicketDeleted         EventType = "ticket_deleted"
	EventBulkDigest            EventType = "bulk_digest"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string           `json:"id"`
	Role domain.ActorRole `json:"role"`
}

// FromDomain converts a domain actor.
func FromDomain(a domain.Actor) Actor {
	return Actor{ID: a.ID, Role: a.Role}
}

// Event represents a domain event emitted by services. Recipients are
// resolved at emit time. BatchID is set for events produced inside a bulk
// execution; their notifications go out as one digest per recipient.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	TicketID   string    `json:"ticket_id"`
	Actor      Actor     `json:"actor"`
	Timestamp  time.Time `json:"timestamp"`
	Recipients []string  `json:"recipients,omitempty"`
	BatchID    string    `json:"batch_id,omitempty"`
	Payload    any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketNumber string                `json:"ticket_number"`
	Priority     domain.TicketPriority `json:"priority"`
	DueDate      time.Time             `json:"due_date"`
	Title        string                `json:"title"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Notes     string              `json:"notes,omitempty"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
	OldDueDate  time.Time             `json:"old_due_date"`
	NewDueDate  time.Time             `json:"new_due_date"`
	Reason      string                `json:"reason,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	PreviousTechnicianID *string             `json:"previous_technician_id,omitempty"`
	TechnicianID         string              `json:"technician_id"`
	OldStatus            domain.TicketStatus `json:"old_status"`
	NewStatus            domain.TicketStatus `json:"new_status"`
}

// TicketUnassignedPayload payload.
type TicketUnassignedPayload struct {
	TechnicianID string `json:"technician_id"`
}

// TicketCommentedPayload payload.
type TicketCommentedPayload struct {
	BodyPreview string `json:"body_preview"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	Reason   string                `json:"reason"`
	Priority domain.TicketPriority `json:"priority"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	TicketNumber string              `json:"ticket_number"`
	Status       domain.TicketStatus `json:"status"`
}

// BulkDigestPayload summarizes many ticket events for one recipient.
type BulkDigestPayload struct {
	Action    string              `json:"action"`
	TicketIDs []string            `json:"ticket_ids"`
	Events    map[string][]string `json:"events"`
}
