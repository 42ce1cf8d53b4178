// Package audit owns the append-only ticket history and the structured
// compliance log fed by domain events.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util"
)

// Trail is the only write path for history entries. Entries are written
// inside the caller's transaction so they commit with the ticket change.
type Trail struct {
	now func() time.Time
}

// NewTrail builds a trail stamping entries with now.
func NewTrail(now func() time.Time) *Trail {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Trail{now: now}
}

// Append validates, stamps and stages entry on tx.
func (t *Trail) Append(ctx context.Context, tx repository.Tx, entry *domain.HistoryEntry) error {
	if entry == nil {
		return apperrors.NewValidationError("history entry required", nil)
	}
	if entry.TicketID == "" {
		return apperrors.NewValidationError("history entry requires ticket_id", nil)
	}
	if !entry.ActionKind.Valid() {
		return apperrors.NewValidationError("unknown history action kind", map[string]any{"action_kind": entry.ActionKind})
	}
	if entry.ActorID == "" || !entry.ActorRole.Valid() {
		return apperrors.NewValidationError("history entry requires a known actor", map[string]any{
			"actor_id":   entry.ActorID,
			"actor_role": entry.ActorRole,
		})
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = t.now()
	}
	return tx.AppendHistory(ctx, entry)
}

// Entry starts a history entry for ticket, actor and kind.
func Entry(ticket *domain.Ticket, actor domain.Actor, kind domain.ActionKind, notes string) *domain.HistoryEntry {
	return &domain.HistoryEntry{
		TicketID:   ticket.ID,
		OldStatus:  ticket.Status,
		NewStatus:  ticket.Status,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		ActionKind: kind,
		Notes:      notes,
	}
}
