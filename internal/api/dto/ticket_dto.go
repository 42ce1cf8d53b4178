package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// CreateTicketRequest payload. RequesterID is honored only for staff
// filing on behalf of a user.
type CreateTicketRequest struct {
	Title       string                `json:"title" validate:"required,max=255"`
	Priority    domain.TicketPriority `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	RequesterID string                `json:"requester_id" validate:"omitempty,max=64"`
}

// TransitionRequest payload.
type TransitionRequest struct {
	Status domain.TicketStatus `json:"status" validate:"required,oneof=open assigned in_progress waiting_user waiting_admin resolved closed cancelled"`
	Notes  string              `json:"notes" validate:"max=2000"`
}

// AssignRequest payload for assign and reassign.
type AssignRequest struct {
	TechnicianID string `json:"technician_id" validate:"required,max=64"`
	Notes        string `json:"notes" validate:"max=2000"`
}

// UnassignRequest payload.
type UnassignRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

// PriorityRequest payload.
type PriorityRequest struct {
	Priority domain.TicketPriority `json:"priority" validate:"required,oneof=low medium high urgent"`
	Reason   string                `json:"reason" validate:"max=2000"`
}

// CommentRequest payload.
type CommentRequest struct {
	Body string `json:"body" validate:"required,max=10000"`
}

// BulkRequest payload.
type BulkRequest struct {
	Action       string   `json:"action" validate:"required,oneof=assign update_status update_priority close delete"`
	TicketIDs    []string `json:"ticket_ids" validate:"required,min=1,dive,required"`
	TechnicianID string   `json:"technician_id"`
	Status       string   `json:"status"`
	Priority     string   `json:"priority"`
	Notes        string   `json:"notes" validate:"max=2000"`
}

// TicketResponse is the API view of a ticket.
type TicketResponse struct {
	ID                   string                 `json:"id"`
	TicketNumber         string                 `json:"ticket_number"`
	RequesterID          string                 `json:"requester_id"`
	Title                string                 `json:"title"`
	Status               domain.TicketStatus    `json:"status"`
	Priority             domain.TicketPriority  `json:"priority"`
	AssignedTechnicianID *string                `json:"assigned_technician_id"`
	DueDate              time.Time              `json:"due_date"`
	FirstResponseAt      *time.Time             `json:"first_response_at"`
	ResolvedAt           *time.Time             `json:"resolved_at"`
	ResolutionMinutes    *int                   `json:"resolution_minutes"`
	PriorityAtResolution *domain.TicketPriority `json:"priority_at_resolution,omitempty"`
	ClosedAt             *time.Time             `json:"closed_at"`
	Escalated            bool                   `json:"escalated"`
	EscalationReason     *string                `json:"escalation_reason"`
	Breached             bool                   `json:"breached"`
	Version              int64                  `json:"version"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

// HistoryEntryResponse is the API view of one history entry.
type HistoryEntryResponse struct {
	ID         string              `json:"id"`
	OldStatus  domain.TicketStatus `json:"old_status"`
	NewStatus  domain.TicketStatus `json:"new_status"`
	ActorID    string              `json:"actor_id"`
	ActorRole  domain.ActorRole    `json:"actor_role"`
	ActionKind domain.ActionKind   `json:"action_kind"`
	Notes      string              `json:"notes,omitempty"`
	OldValue   map[string]any      `json:"old_value,omitempty"`
	NewValue   map[string]any      `json:"new_value,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t *domain.Ticket, breached bool) TicketResponse {
	return TicketResponse{
		ID:                   t.ID,
		TicketNumber:         t.TicketNumber,
		RequesterID:          t.RequesterID,
		Title:                t.Title,
		Status:               t.Status,
		Priority:             t.Priority,
		AssignedTechnicianID: t.AssignedTechnicianID,
		DueDate:              t.DueDate,
		FirstResponseAt:      t.FirstResponseAt,
		ResolvedAt:           t.ResolvedAt,
		ResolutionMinutes:    t.ResolutionMinutes,
		PriorityAtResolution: t.PriorityAtResolution,
		ClosedAt:             t.ClosedAt,
		Escalated:            t.Escalated,
		EscalationReason:     t.EscalationReason,
		Breached:             breached,
		Version:              t.Version,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
}

// NewHistoryResponse maps history entries.
func NewHistoryResponse(entries []domain.HistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntryResponse{
			ID:         e.ID,
			OldStatus:  e.OldStatus,
			NewStatus:  e.NewStatus,
			ActorID:    e.ActorID,
			ActorRole:  e.ActorRole,
			ActionKind: e.ActionKind,
			Notes:      e.Notes,
			OldValue:   e.OldValue,
			NewValue:   e.NewValue,
			Timestamp:  e.Timestamp,
		})
	}
	return out
}
