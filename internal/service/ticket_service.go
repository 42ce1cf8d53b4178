package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/audit"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util"
)

const ticketNumberAttempts = 3

// TicketService is the public contract of the lifecycle core. Every
// mutation commits first and then publishes the events it produced.
type TicketService struct {
	store      repository.Store
	sla        *sla.Engine
	trail      *audit.Trail
	machine    *StateMachine
	router     *AssignmentRouter
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	validate   *validator.Validate
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store      repository.Store
	SLA        *sla.Engine
	Trail      *audit.Trail
	Machine    *StateMachine
	Router     *AssignmentRouter
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
}

// CreateTicketInput describes ticket intake.
type CreateTicketInput struct {
	RequesterID string                `validate:"required,max=64"`
	Title       string                `validate:"required,max=255"`
	Priority    domain.TicketPriority `validate:"omitempty,oneof=low medium high urgent"`
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clock := deps.Clock
	if clock == nil {
		clock = systemClock
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := deps.SLA
	if engine == nil {
		engine = sla.MustNewEngine(sla.DefaultPolicy())
	}
	trail := deps.Trail
	if trail == nil {
		trail = audit.NewTrail(clock)
	}
	machine := deps.Machine
	if machine == nil {
		machine = NewStateMachine(StateMachineDependencies{Store: deps.Store, Trail: trail, Clock: clock})
	}
	router := deps.Router
	if router == nil {
		router = NewAssignmentRouter(AssignmentDependencies{Store: deps.Store, Trail: trail, Machine: machine, Clock: clock})
	}
	return &TicketService{
		store:      deps.Store,
		sla:        engine,
		trail:      trail,
		machine:    machine,
		router:     router,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		validate:   validator.New(),
		now:        clock,
	}
}

// CreateTicket opens a new ticket with a due date from the SLA policy.
func (s *TicketService) CreateTicket(ctx context.Context, input CreateTicketInput, actor domain.Actor) (*domain.Ticket, error) {
	input.Title = strings.TrimSpace(input.Title)
	if err := s.validate.Struct(input); err != nil {
		return nil, apperrors.NewValidationError("invalid ticket", validationDetails(err))
	}
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if input.Priority == "" {
		input.Priority = domain.TicketPriorityMedium
	}

	var (
		outcome *Outcome
		err     error
	)
	for attempt := 0; attempt < ticketNumberAttempts; attempt++ {
		outcome, err = s.createTicket(ctx, input, actor)
		if !apperrors.IsKind(err, apperrors.CodeConflict) {
			break
		}
		s.logger.Warn("ticket number collision; retrying", zap.Int("attempt", attempt+1))
	}
	s.record("create", err)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, outcome)
	return outcome.Ticket, nil
}

func (s *TicketService) createTicket(ctx context.Context, input CreateTicketInput, actor domain.Actor) (*Outcome, error) {
	now := s.now()
	ticket := &domain.Ticket{
		ID:           uuid.NewString(),
		TicketNumber: generateTicketKey(),
		RequesterID:  input.RequesterID,
		Title:        input.Title,
		Status:       domain.TicketStatusOpen,
		Priority:     input.Priority,
		DueDate:      s.sla.ComputeDueDate(now, input.Priority),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.InsertTicket(ctx, ticket); err != nil {
			return err
		}
		entry := audit.Entry(ticket, actor, domain.ActionStatusChange, "ticket created")
		entry.OldStatus = ""
		entry.NewValue = map[string]any{"priority": string(ticket.Priority), "due_date": ticket.DueDate}
		return s.trail.Append(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	event := newEvent(events.EventTicketCreated, ticket, actor, now, events.TicketCreatedPayload{
		TicketNumber: ticket.TicketNumber,
		Priority:     ticket.Priority,
		DueDate:      ticket.DueDate,
		Title:        ticket.Title,
	})
	return &Outcome{Ticket: ticket, Events: []events.Event{event}}, nil
}

// GetTicket returns the current ticket.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.store.FindTicket(ctx, ticketID)
}

// ListHistory returns the ticket's history in append order.
func (s *TicketService) ListHistory(ctx context.Context, ticketID string) ([]domain.HistoryEntry, error) {
	return s.store.ListHistory(ctx, ticketID)
}

// SLAStatus reports the ticket's SLA timers at now.
type SLAStatus struct {
	DueDate          time.Time `json:"due_date"`
	ResponseDue      time.Time `json:"response_due"`
	ResponseBreached bool      `json:"response_breached"`
	Breached         bool      `json:"breached"`
	EscalationDue    bool      `json:"escalation_due"`
}

// SLAStatus evaluates the SLA timers for a ticket.
func (s *TicketService) SLAStatus(ctx context.Context, ticketID string) (*SLAStatus, error) {
	ticket, err := s.store.FindTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &SLAStatus{
		DueDate:          ticket.DueDate,
		ResponseDue:      s.sla.ResponseDue(ticket),
		ResponseBreached: s.sla.IsResponseBreached(ticket, now),
		Breached:         s.sla.IsBreached(ticket),
		EscalationDue:    s.sla.IsEscalationCandidate(ticket, now),
	}, nil
}

// TransitionTo moves a ticket along the lifecycle.
func (s *TicketService) TransitionTo(ctx context.Context, ticketID string, newStatus domain.TicketStatus, actor domain.Actor, notes string) (*domain.Ticket, error) {
	outcome, err := s.machine.TransitionTo(ctx, ticketID, newStatus, actor, notes)
	return s.finish(ctx, "transition", outcome, err)
}

// AssignToTechnician assigns a technician to a ticket.
func (s *TicketService) AssignToTechnician(ctx context.Context, ticketID, technicianID string, actor domain.Actor, notes string) (*domain.Ticket, error) {
	outcome, err := s.router.AssignToTechnician(ctx, ticketID, technicianID, actor, notes)
	return s.finish(ctx, "assign", outcome, err)
}

// Reassign moves a ticket to a different technician.
func (s *TicketService) Reassign(ctx context.Context, ticketID, newTechnicianID string, actor domain.Actor, notes string) (*domain.Ticket, error) {
	outcome, err := s.router.Reassign(ctx, ticketID, newTechnicianID, actor, notes)
	return s.finish(ctx, "reassign", outcome, err)
}

// Unassign clears a ticket's technician.
func (s *TicketService) Unassign(ctx context.Context, ticketID string, actor domain.Actor, notes string) (*domain.Ticket, error) {
	outcome, err := s.router.Unassign(ctx, ticketID, actor, notes)
	return s.finish(ctx, "unassign", outcome, err)
}

// UpdatePriority changes priority and recomputes the due date.
func (s *TicketService) UpdatePriority(ctx context.Context, ticketID string, newPriority domain.TicketPriority, actor domain.Actor, reason string) (*domain.Ticket, error) {
	outcome, err := s.updatePriority(ctx, ticketID, newPriority, actor, reason)
	return s.finish(ctx, "update_priority", outcome, err)
}

func (s *TicketService) updatePriority(ctx context.Context, ticketID string, newPriority domain.TicketPriority, actor domain.Actor, reason string) (*Outcome, error) {
	if !newPriority.Valid() {
		return nil, apperrors.NewValidationError("unknown ticket priority", map[string]any{"priority": newPriority})
	}
	if err := validateActor(actor); err != nil {
		return nil, err
	}

	var outcome *Outcome
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ticket, err := tx.LockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status.Terminal() {
			return apperrors.NewValidationError("priority cannot change on a terminal ticket", map[string]any{
				"ticket_id": ticket.ID,
				"status":    ticket.Status,
			})
		}
		if ticket.Priority == newPriority {
			return apperrors.NewValidationError("ticket already has this priority", map[string]any{
				"ticket_id": ticket.ID,
				"priority":  newPriority,
			})
		}

		now := s.now()
		oldPriority, oldDue := ticket.Priority, ticket.DueDate
		updated := ticket.Clone()
		updated.Priority = newPriority
		updated.DueDate = s.sla.OnPriorityChanged(ticket, newPriority)
		updated.UpdatedAt = now
		if err := tx.UpdateTicket(ctx, updated, ticket.Version); err != nil {
			return err
		}

		entry := audit.Entry(updated, actor, domain.ActionPriorityChange, reason)
		entry.OldValue = map[string]any{"priority": string(oldPriority), "due_date": oldDue}
		entry.NewValue = map[string]any{"priority": string(newPriority), "due_date": updated.DueDate}
		if err := s.trail.Append(ctx, tx, entry); err != nil {
			return err
		}

		event := newEvent(events.EventTicketPriorityChanged, updated, actor, now, events.TicketPriorityChangedPayload{
			OldPriority: oldPriority,
			NewPriority: newPriority,
			OldDueDate:  oldDue,
			NewDueDate:  updated.DueDate,
			Reason:      reason,
		})
		outcome = &Outcome{Ticket: updated, Events: []events.Event{event}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// AddComment records a comment in the ticket history.
func (s *TicketService) AddComment(ctx context.Context, ticketID, body string, actor domain.Actor) (*domain.Ticket, error) {
	outcome, err := s.addComment(ctx, ticketID, body, actor)
	return s.finish(ctx, "comment", outcome, err)
}

func (s *TicketService) addComment(ctx context.Context, ticketID, body string, actor domain.Actor) (*Outcome, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("comment body is required", nil)
	}
	if err := validateActor(actor); err != nil {
		return nil, err
	}

	var outcome *Outcome
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ticket, err := tx.LockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		now := s.now()
		updated := ticket.Clone()
		updated.UpdatedAt = now
		if err := tx.UpdateTicket(ctx, updated, ticket.Version); err != nil {
			return err
		}
		if err := s.trail.Append(ctx, tx, audit.Entry(updated, actor, domain.ActionComment, body)); err != nil {
			return err
		}
		event := newEvent(events.EventTicketCommented, updated, actor, now, events.TicketCommentedPayload{
			BodyPreview: stringPreview(body, 120),
		})
		outcome = &Outcome{Ticket: updated, Events: []events.Event{event}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// DeleteTicket removes an open or closed ticket. Its history is kept.
func (s *TicketService) DeleteTicket(ctx context.Context, ticketID string, actor domain.Actor, notes string) error {
	outcome, err := s.deleteTicket(ctx, ticketID, actor, notes)
	s.record("delete", err)
	if err != nil {
		return err
	}
	s.publish(ctx, outcome)
	return nil
}

func (s *TicketService) deleteTicket(ctx context.Context, ticketID string, actor domain.Actor, notes string) (*Outcome, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	var outcome *Outcome
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ticket, err := tx.LockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status != domain.TicketStatusOpen && ticket.Status != domain.TicketStatusClosed {
			return apperrors.NewValidationError("only open or closed tickets can be deleted", map[string]any{
				"ticket_id": ticket.ID,
				"status":    ticket.Status,
			})
		}

		entry := audit.Entry(ticket, actor, domain.ActionDeletion, notes)
		entry.OldValue = map[string]any{"ticket_number": ticket.TicketNumber}
		if err := s.trail.Append(ctx, tx, entry); err != nil {
			return err
		}
		if err := tx.DeleteTicket(ctx, ticket.ID, ticket.Version); err != nil {
			return err
		}

		event := newEvent(events.EventTicketDeleted, ticket, actor, s.now(), events.TicketDeletedPayload{
			TicketNumber: ticket.TicketNumber,
			Status:       ticket.Status,
		})
		outcome = &Outcome{Ticket: ticket, Events: []events.Event{event}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *TicketService) finish(ctx context.Context, operation string, outcome *Outcome, err error) (*domain.Ticket, error) {
	s.record(operation, err)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, outcome)
	return outcome.Ticket, nil
}

func (s *TicketService) publish(ctx context.Context, outcome *Outcome) {
	if outcome == nil {
		return
	}
	publishEvents(ctx, s.dispatcher, outcome.Events)
}

func (s *TicketService) record(operation string, err error) {
	if err == nil {
		s.metrics.RecordOperation(operation, "ok")
		return
	}
	s.metrics.RecordOperation(operation, apperrors.Code(err))
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func validationDetails(err error) map[string]any {
	details := map[string]any{}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			details[strings.ToLower(fe.Field())] = fe.Tag()
		}
		return details
	}
	details["error"] = err.Error()
	return details
}
