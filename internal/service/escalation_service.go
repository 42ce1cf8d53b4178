package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/audit"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/internal/sla"
)

// EscalationService marks tickets that sat unassigned past their escalation threshold.
type EscalationService struct {
	store      repository.Store
	sla        *sla.Engine
	trail      *audit.Trail
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	batchSize  int
	now        func() time.Time
}

// EscalationDependencies bundles collaborators.
type EscalationDependencies struct {
	Store      repository.Store
	SLA        *sla.Engine
	Trail      *audit.Trail
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	BatchSize  int
	Clock      func() time.Time
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned   int      `json:"scanned"`
	Escalated []string `json:"escalated"`
	Failed    int      `json:"failed"`
}

// NewEscalationService creates the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	clock := deps.Clock
	if clock == nil {
		clock = systemClock
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	trail := deps.Trail
	if trail == nil {
		trail = audit.NewTrail(clock)
	}
	engine := deps.SLA
	if engine == nil {
		engine = sla.MustNewEngine(sla.DefaultPolicy())
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = 500
	}
	return &EscalationService{
		store:      deps.Store,
		sla:        engine,
		trail:      trail,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger.Named("escalation"),
		batchSize:  batch,
		now:        clock,
	}
}

// Sweep escalates every current candidate. A failure on one ticket is logged
// and does not stop the others.
func (s *EscalationService) Sweep(ctx context.Context) (*SweepResult, error) {
	candidates, err := s.store.ListEscalationCandidates(ctx, s.sla.EscalationCutoffs(s.now()), s.batchSize)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Scanned: len(candidates), Escalated: []string{}}
	for i := range candidates {
		if ctx.Err() != nil {
			break
		}
		if !s.sla.IsEscalationCandidate(&candidates[i], s.now()) {
			continue
		}
		outcome, err := s.escalate(ctx, candidates[i].ID)
		if err != nil {
			result.Failed++
			s.logger.Warn("escalation failed", zap.String("ticket_id", candidates[i].ID), zap.Error(err))
			continue
		}
		if outcome == nil {
			continue
		}
		result.Escalated = append(result.Escalated, outcome.Ticket.ID)
		publishEvents(ctx, s.dispatcher, outcome.Events)
	}

	s.metrics.RecordEscalations(len(result.Escalated))
	s.logger.Info("escalation sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("escalated", len(result.Escalated)),
		zap.Int("failed", result.Failed))
	return result, nil
}

// escalate re-checks the ticket under its lock; a nil outcome means it no
// longer qualifies.
func (s *EscalationService) escalate(ctx context.Context, ticketID string) (*Outcome, error) {
	var outcome *Outcome
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ticket, err := tx.LockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		now := s.now()
		if ticket.Escalated || !s.sla.IsEscalationCandidate(ticket, now) {
			return nil
		}

		reason := fmt.Sprintf("unassigned for more than %dh", s.sla.EscalationHours(ticket.Priority))
		updated := ticket.Clone()
		updated.Escalated = true
		updated.EscalationReason = &reason
		updated.UpdatedAt = now
		if err := tx.UpdateTicket(ctx, updated, ticket.Version); err != nil {
			return err
		}

		entry := audit.Entry(updated, domain.SystemActor, domain.ActionEscalation, reason)
		entry.NewValue = map[string]any{"escalated": true}
		if err := s.trail.Append(ctx, tx, entry); err != nil {
			return err
		}

		event := newEvent(events.EventTicketEscalated, updated, domain.SystemActor, now, events.TicketEscalatedPayload{
			Reason:   reason,
			Priority: updated.Priority,
		})
		outcome = &Outcome{Ticket: updated, Events: []events.Event{event}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}
