package service

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/audit"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util"
)

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:         {domain.TicketStatusAssigned, domain.TicketStatusCancelled},
	domain.TicketStatusAssigned:     {domain.TicketStatusInProgress, domain.TicketStatusOpen, domain.TicketStatusCancelled},
	domain.TicketStatusInProgress:   {domain.TicketStatusWaitingUser, domain.TicketStatusWaitingAdmin, domain.TicketStatusResolved, domain.TicketStatusCancelled},
	domain.TicketStatusWaitingUser:  {domain.TicketStatusInProgress, domain.TicketStatusResolved},
	domain.TicketStatusWaitingAdmin: {domain.TicketStatusInProgress},
	domain.TicketStatusResolved:     {domain.TicketStatusClosed, domain.TicketStatusInProgress},
	domain.TicketStatusClosed:       {},
	domain.TicketStatusCancelled:    {},
}

// CanTransition reports whether from→to is an edge of the lifecycle.
func CanTransition(from, to domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// AllowedTransitions lists the states reachable from status in one step.
func AllowedTransitions(status domain.TicketStatus) []domain.TicketStatus {
	next := allowedTransitions[status]
	out := make([]domain.TicketStatus, len(next))
	copy(out, next)
	return out
}

// StateMachine validates and executes ticket status transitions.
type StateMachine struct {
	store        repository.Store
	trail        *audit.Trail
	reopenWindow time.Duration
	now          func() time.Time
}

// StateMachineDependencies bundles collaborators. A zero ReopenWindow
// allows reopening at any time.
type StateMachineDependencies struct {
	Store        repository.Store
	Trail        *audit.Trail
	ReopenWindow time.Duration
	Clock        func() time.Time
}

// NewStateMachine constructs the state machine.
func NewStateMachine(deps StateMachineDependencies) *StateMachine {
	clock := deps.Clock
	if clock == nil {
		clock = systemClock
	}
	trail := deps.Trail
	if trail == nil {
		trail = audit.NewTrail(clock)
	}
	return &StateMachine{
		store:        deps.Store,
		trail:        trail,
		reopenWindow: deps.ReopenWindow,
		now:          clock,
	}
}

// TransitionTo moves the ticket to newStatus. Illegal edges fail with
// INVALID_TRANSITION and leave the ticket and its history untouched.
func (m *StateMachine) TransitionTo(ctx context.Context, ticketID string, newStatus domain.TicketStatus, actor domain.Actor, notes string) (*Outcome, error) {
	if !newStatus.Valid() {
		return nil, apperrors.NewValidationError("unknown ticket status", map[string]any{"status": newStatus})
	}
	if err := validateActor(actor); err != nil {
		return nil, err
	}

	var outcome *Outcome
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ticket, err := tx.LockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		outcome, err = m.transition(ctx, tx, ticket, newStatus, actor, notes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (m *StateMachine) transition(ctx context.Context, tx repository.Tx, ticket *domain.Ticket, newStatus domain.TicketStatus, actor domain.Actor, notes string) (*Outcome, error) {
	now := m.now()
	if err := m.check(ticket, newStatus, now); err != nil {
		return nil, err
	}

	oldStatus := ticket.Status
	previousTech := ticket.AssignedTechnicianID
	updated := ticket.Clone()
	m.enter(updated, newStatus, now)
	if err := tx.UpdateTicket(ctx, updated, ticket.Version); err != nil {
		return nil, err
	}

	entry := audit.Entry(updated, actor, domain.ActionStatusChange, notes)
	entry.OldStatus = oldStatus
	if previousTech != nil && updated.AssignedTechnicianID == nil {
		entry.OldValue = map[string]any{"technician_id": *previousTech}
	}
	if err := m.trail.Append(ctx, tx, entry); err != nil {
		return nil, err
	}

	event := newEvent(events.EventTicketStatusChanged, updated, actor, now, events.TicketStatusChangedPayload{
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Notes:     notes,
	}, previousTech)
	return &Outcome{Ticket: updated, Events: []events.Event{event}}, nil
}

// check validates the edge and the reopen window without touching ticket.
func (m *StateMachine) check(ticket *domain.Ticket, newStatus domain.TicketStatus, now time.Time) error {
	if !CanTransition(ticket.Status, newStatus) {
		return apperrors.NewInvalidTransition(string(ticket.Status), string(newStatus), map[string]any{
			"ticket_id": ticket.ID,
		})
	}
	if ticket.Status == domain.TicketStatusResolved && newStatus == domain.TicketStatusInProgress &&
		m.reopenWindow > 0 && ticket.ResolvedAt != nil && now.Sub(*ticket.ResolvedAt) > m.reopenWindow {
		return apperrors.NewInvalidTransition(string(ticket.Status), string(newStatus), map[string]any{
			"ticket_id":           ticket.ID,
			"reason":              "reopen window expired",
			"reopen_window_hours": m.reopenWindow.Hours(),
		})
	}
	return nil
}

// enter applies newStatus and its side effects to ticket.
func (m *StateMachine) enter(ticket *domain.Ticket, newStatus domain.TicketStatus, now time.Time) {
	oldStatus := ticket.Status
	ticket.Status = newStatus
	ticket.UpdatedAt = now

	switch newStatus {
	case domain.TicketStatusInProgress:
		if ticket.FirstResponseAt == nil {
			at := now
			ticket.FirstResponseAt = &at
		}
	case domain.TicketStatusResolved:
		// resolution is recorded once; reopen and re-resolve keep the first values
		if ticket.ResolutionMinutes == nil {
			at := now
			minutes := sla.ElapsedMinutes(ticket.CreatedAt, now)
			priority := ticket.Priority
			ticket.ResolvedAt = &at
			ticket.ResolutionMinutes = &minutes
			ticket.PriorityAtResolution = &priority
		}
	case domain.TicketStatusClosed:
		at := now
		ticket.ClosedAt = &at
	case domain.TicketStatusOpen:
		if oldStatus == domain.TicketStatusAssigned {
			ticket.AssignedTechnicianID = nil
		}
	}
}
