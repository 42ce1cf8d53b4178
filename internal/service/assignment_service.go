package service

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/audit"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util"
)

// AssignmentRouter assigns tickets to technicians under capacity limits.
type AssignmentRouter struct {
	store   repository.Store
	trail   *audit.Trail
	machine *StateMachine
	now     func() time.Time
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	Store   repository.Store
	Trail   *audit.Trail
	Machine *StateMachine
	Clock   func() time.Time
}

// NewAssignmentRouter creates the router.
func NewAssignmentRouter(deps AssignmentDependencies) *AssignmentRouter {
	clock := deps.Clock
	if clock == nil {
		clock = systemClock
	}
	trail := deps.Trail
	if trail == nil {
		trail = audit.NewTrail(clock)
	}
	machine := deps.Machine
	if machine == nil {
		machine = NewStateMachine(StateMachineDependencies{Store: deps.Store, Trail: trail, Clock: clock})
	}
	return &AssignmentRouter{
		store:   deps.Store,
		trail:   trail,
		machine: machine,
		now:     clock,
	}
}

// AssignToTechnician sets the ticket's technician. An open ticket moves to
// assigned through the state machine table; an already assigned ticket has
// its technician swapped in the same write.
func (r *AssignmentRouter) AssignToTechnician(ctx context.Context, ticketID, technicianID string, actor domain.Actor, notes string) (*Outcome, error) {
	if err := r.validate(technicianID, actor); err != nil {
		return nil, err
	}
	var outcome *Outcome
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ticket, err := tx.LockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		outcome, err = r.assign(ctx, tx, ticket, technicianID, actor, notes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// Reassign moves an assigned ticket to another technician. The release of
// the old slot and the new assignment commit together or not at all.
func (r *AssignmentRouter) Reassign(ctx context.Context, ticketID, newTechnicianID string, actor domain.Actor, notes string) (*Outcome, error) {
	if err := r.validate(newTechnicianID, actor); err != nil {
		return nil, err
	}
	var outcome *Outcome
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ticket, err := tx.LockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if !ticket.Assigned() {
			return apperrors.NewValidationError("ticket has no technician to reassign from", map[string]any{"ticket_id": ticket.ID})
		}
		outcome, err = r.assign(ctx, tx, ticket, newTechnicianID, actor, notes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// Unassign clears the technician without changing status.
func (r *AssignmentRouter) Unassign(ctx context.Context, ticketID string, actor domain.Actor, notes string) (*Outcome, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	var outcome *Outcome
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ticket, err := tx.LockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if !ticket.Assigned() {
			return apperrors.NewValidationError("ticket is not assigned", map[string]any{"ticket_id": ticket.ID})
		}

		now := r.now()
		previous := *ticket.AssignedTechnicianID
		updated := ticket.Clone()
		updated.AssignedTechnicianID = nil
		updated.UpdatedAt = now
		if err := tx.UpdateTicket(ctx, updated, ticket.Version); err != nil {
			return err
		}

		entry := audit.Entry(updated, actor, domain.ActionUnassignment, notes)
		entry.OldValue = map[string]any{"technician_id": previous}
		if err := r.trail.Append(ctx, tx, entry); err != nil {
			return err
		}

		event := newEvent(events.EventTicketUnassigned, updated, actor, now,
			events.TicketUnassignedPayload{TechnicianID: previous}, &previous)
		outcome = &Outcome{Ticket: updated, Events: []events.Event{event}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (r *AssignmentRouter) validate(technicianID string, actor domain.Actor) error {
	if technicianID == "" {
		return apperrors.NewValidationError("technician_id is required", nil)
	}
	return validateActor(actor)
}

// assign runs inside tx with the ticket already locked. The technician row is
// locked while its workload is counted so concurrent assignments cannot
// overshoot the limit.
func (r *AssignmentRouter) assign(ctx context.Context, tx repository.Tx, ticket *domain.Ticket, technicianID string, actor domain.Actor, notes string) (*Outcome, error) {
	if !assignable(ticket.Status) {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusAssigned), map[string]any{
			"ticket_id": ticket.ID,
		})
	}
	if ticket.Assigned() && *ticket.AssignedTechnicianID == technicianID {
		return nil, apperrors.NewValidationError("ticket already assigned to technician", map[string]any{
			"ticket_id":     ticket.ID,
			"technician_id": technicianID,
		})
	}

	tech, err := tx.LockTechnician(ctx, technicianID)
	if err != nil {
		return nil, err
	}
	if !tech.Active() {
		return nil, apperrors.NewTechnicianInactive(tech.ID)
	}
	workload, err := tx.CurrentWorkload(ctx, tech.ID, ticket.ID)
	if err != nil {
		return nil, err
	}
	if workload >= tech.MaxConcurrentTickets {
		return nil, apperrors.NewCapacityExceeded(tech.ID, workload, tech.MaxConcurrentTickets)
	}

	now := r.now()
	oldStatus := ticket.Status
	previous := ticket.AssignedTechnicianID
	updated := ticket.Clone()
	if updated.Status == domain.TicketStatusOpen {
		if err := r.machine.check(updated, domain.TicketStatusAssigned, now); err != nil {
			return nil, err
		}
		r.machine.enter(updated, domain.TicketStatusAssigned, now)
	}
	updated.AssignedTechnicianID = &tech.ID
	updated.UpdatedAt = now
	if err := tx.UpdateTicket(ctx, updated, ticket.Version); err != nil {
		return nil, err
	}

	entry := audit.Entry(updated, actor, domain.ActionAssignment, notes)
	entry.OldStatus = oldStatus
	entry.OldValue = map[string]any{"technician_id": optionalString(previous)}
	entry.NewValue = map[string]any{"technician_id": tech.ID}
	if err := r.trail.Append(ctx, tx, entry); err != nil {
		return nil, err
	}

	event := newEvent(events.EventTicketAssigned, updated, actor, now, events.TicketAssignedPayload{
		PreviousTechnicianID: previous,
		TechnicianID:         tech.ID,
		OldStatus:            oldStatus,
		NewStatus:            updated.Status,
	}, previous)
	return &Outcome{Ticket: updated, Events: []events.Event{event}}, nil
}

// assignable reports whether a technician may be attached in status.
func assignable(status domain.TicketStatus) bool {
	switch status {
	case domain.TicketStatusOpen, domain.TicketStatusAssigned, domain.TicketStatusInProgress,
		domain.TicketStatusWaitingUser, domain.TicketStatusWaitingAdmin:
		return true
	}
	return false
}
