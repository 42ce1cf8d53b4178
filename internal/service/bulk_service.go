package service

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/notify"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util"
)

// BulkAction names an action applied across many tickets.
type BulkAction string

const (
	BulkAssign         BulkAction = "assign"
	BulkUpdateStatus   BulkAction = "update_status"
	BulkUpdatePriority BulkAction = "update_priority"
	BulkClose          BulkAction = "close"
	BulkDelete         BulkAction = "delete"
)

// Valid reports whether a is a supported bulk action.
func (a BulkAction) Valid() bool {
	switch a {
	case BulkAssign, BulkUpdateStatus, BulkUpdatePriority, BulkClose, BulkDelete:
		return true
	}
	return false
}

// BulkParams carries the action arguments. Only the field the action needs is read.
type BulkParams struct {
	TechnicianID string                `json:"technician_id,omitempty"`
	Status       domain.TicketStatus   `json:"status,omitempty"`
	Priority     domain.TicketPriority `json:"priority,omitempty"`
	Notes        string                `json:"notes,omitempty"`
}

// ItemResult is the outcome for one ticket id.
type ItemResult struct {
	TicketID  string `json:"ticket_id"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// BatchResult aggregates a bulk execution.
type BatchResult struct {
	PerItem      []ItemResult `json:"per_item"`
	SuccessCount int          `json:"success_count"`
	FailureCount int          `json:"failure_count"`
}

// BulkCoordinator runs one action over many tickets with per-item isolation.
type BulkCoordinator struct {
	tickets    *TicketService
	dispatcher events.Dispatcher
	notifier   notify.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	workers    int
	maxItems   int
}

// BulkDependencies bundles collaborators.
type BulkDependencies struct {
	Tickets    *TicketService
	Dispatcher events.Dispatcher
	Notifier   notify.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Workers    int
	MaxItems   int
}

// NewBulkCoordinator constructs the coordinator.
func NewBulkCoordinator(deps BulkDependencies) *BulkCoordinator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = 8
	}
	return &BulkCoordinator{
		tickets:    deps.Tickets,
		dispatcher: deps.Dispatcher,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     logger.Named("bulk"),
		workers:    workers,
		maxItems:   deps.MaxItems,
	}
}

// BulkExecute applies action to every id. Item failures land in the result;
// the returned error covers only a malformed request. Items not yet started
// when ctx is cancelled are reported as CANCELLED; started items finish.
func (b *BulkCoordinator) BulkExecute(ctx context.Context, action BulkAction, ticketIDs []string, params BulkParams, actor domain.Actor) (*BatchResult, error) {
	if err := b.validate(action, ticketIDs, params, actor); err != nil {
		return nil, err
	}

	ids := dedupe(ticketIDs)
	results := make([]ItemResult, len(ids))
	outcomes := make([]*Outcome, len(ids))

	var g errgroup.Group
	g.SetLimit(b.workers)
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			results[i] = failedItem(id, apperrors.NewCancelled(err))
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = failedItem(id, apperrors.NewCancelled(err))
				return nil
			}
			outcome, err := b.executeIsolated(context.WithoutCancel(ctx), action, id, params, actor)
			if err != nil {
				results[i] = failedItem(id, err)
				return nil
			}
			outcomes[i] = outcome
			results[i] = ItemResult{TicketID: id, Success: true, Message: successMessage(action, outcome)}
			return nil
		})
	}
	_ = g.Wait()

	batch := &BatchResult{PerItem: results}
	for _, item := range results {
		if item.Success {
			batch.SuccessCount++
		} else {
			batch.FailureCount++
		}
	}
	b.metrics.RecordBulk(string(action), batch.SuccessCount, batch.FailureCount)

	b.notify(context.WithoutCancel(ctx), action, actor, outcomes)

	b.logger.Info("bulk execution finished",
		zap.String("action", string(action)),
		zap.String("actor_id", actor.ID),
		zap.Int("items", len(ids)),
		zap.Int("success", batch.SuccessCount),
		zap.Int("failure", batch.FailureCount))
	return batch, nil
}

func (b *BulkCoordinator) validate(action BulkAction, ticketIDs []string, params BulkParams, actor domain.Actor) error {
	if !action.Valid() {
		return apperrors.NewValidationError("unknown bulk action", map[string]any{"action": action})
	}
	if len(ticketIDs) == 0 {
		return apperrors.NewValidationError("ticket_ids must not be empty", nil)
	}
	if b.maxItems > 0 && len(ticketIDs) > b.maxItems {
		return apperrors.NewValidationError("too many tickets in one batch", map[string]any{
			"count":     len(ticketIDs),
			"max_items": b.maxItems,
		})
	}
	switch action {
	case BulkAssign:
		if params.TechnicianID == "" {
			return apperrors.NewValidationError("assign requires technician_id", nil)
		}
	case BulkUpdateStatus:
		if !params.Status.Valid() {
			return apperrors.NewValidationError("update_status requires a valid status", map[string]any{"status": params.Status})
		}
	case BulkUpdatePriority:
		if !params.Priority.Valid() {
			return apperrors.NewValidationError("update_priority requires a valid priority", map[string]any{"priority": params.Priority})
		}
	}
	return validateActor(actor)
}

// executeIsolated turns a panic in one item into that item's INTERNAL_ERROR.
func (b *BulkCoordinator) executeIsolated(ctx context.Context, action BulkAction, ticketID string, params BulkParams, actor domain.Actor) (outcome *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bulk item panicked",
				zap.String("action", string(action)),
				zap.String("ticket_id", ticketID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			outcome, err = nil, apperrors.NewInternalError(fmt.Errorf("bulk item panic: %v", r))
		}
	}()
	return b.execute(ctx, action, ticketID, params, actor)
}

func (b *BulkCoordinator) execute(ctx context.Context, action BulkAction, ticketID string, params BulkParams, actor domain.Actor) (*Outcome, error) {
	if ticketID == "" {
		return nil, apperrors.NewValidationError("ticket id is empty", nil)
	}
	switch action {
	case BulkAssign:
		return b.tickets.router.AssignToTechnician(ctx, ticketID, params.TechnicianID, actor, params.Notes)
	case BulkUpdateStatus:
		return b.tickets.machine.TransitionTo(ctx, ticketID, params.Status, actor, params.Notes)
	case BulkUpdatePriority:
		return b.tickets.updatePriority(ctx, ticketID, params.Priority, actor, params.Notes)
	case BulkClose:
		return b.tickets.machine.TransitionTo(ctx, ticketID, domain.TicketStatusClosed, actor, params.Notes)
	case BulkDelete:
		return b.tickets.deleteTicket(ctx, ticketID, actor, params.Notes)
	}
	return nil, apperrors.NewValidationError("unknown bulk action", map[string]any{"action": action})
}

// notify publishes the batch's events for the compliance log and sends one
// digest per recipient. Nothing here can change the batch result.
func (b *BulkCoordinator) notify(ctx context.Context, action BulkAction, actor domain.Actor, outcomes []*Outcome) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bulk notification failed", zap.String("action", string(action)), zap.Any("panic", r))
		}
	}()

	batchID := uuid.NewString()
	digest := notify.NewBatch(string(action), actor.ID)
	for _, outcome := range outcomes {
		if outcome == nil {
			continue
		}
		for i := range outcome.Events {
			outcome.Events[i].BatchID = batchID
			digest.AddEvent(outcome.Events[i])
		}
		publishEvents(ctx, b.dispatcher, outcome.Events)
	}
	sent := digest.DispatchTo(ctx, b.notifier)
	b.logger.Debug("bulk digests dispatched", zap.String("batch_id", batchID), zap.Int("recipients", sent))
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func successMessage(action BulkAction, outcome *Outcome) string {
	if action == BulkDelete {
		return "deleted"
	}
	return string(outcome.Ticket.Status)
}

func failedItem(ticketID string, err error) ItemResult {
	domainErr := apperrors.ToDomainError(err)
	message := domainErr.Message
	if domainErr.Code == apperrors.CodeInternal && domainErr.Err != nil {
		message = fmt.Sprintf("%s: %v", message, domainErr.Err)
	}
	return ItemResult{
		TicketID:  ticketID,
		Success:   false,
		Message:   message,
		ErrorCode: domainErr.Code,
	}
}
