package service

import (
	"context"
	"testing"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util"
)

func TestBulkUpdateStatusIsolatesFailures(t *testing.T) {
	env := newTestEnv(t)
	ids := make([]string, 5)
	for i := range ids {
		status := domain.TicketStatusResolved
		if i == 2 {
			status = domain.TicketStatusCancelled
		}
		ids[i] = env.seed(t, status, nil).ID
	}

	result, err := env.bulk.BulkExecute(context.Background(), BulkUpdateStatus, ids, BulkParams{Status: domain.TicketStatusClosed}, admin)
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if result.SuccessCount != 4 || result.FailureCount != 1 {
		t.Fatalf("expected 4/1, got %d/%d", result.SuccessCount, result.FailureCount)
	}
	if len(result.PerItem) != 5 {
		t.Fatalf("expected 5 items, got %d", len(result.PerItem))
	}
	failed := result.PerItem[2]
	if failed.TicketID != ids[2] || failed.Success || failed.ErrorCode != apperrors.CodeInvalidTransition {
		t.Fatalf("unexpected failed item %+v", failed)
	}
	if env.ticket(t, ids[2]).Status != domain.TicketStatusCancelled {
		t.Fatal("failed item was mutated")
	}
	for i, id := range ids {
		if i == 2 {
			continue
		}
		if env.ticket(t, id).Status != domain.TicketStatusClosed {
			t.Fatalf("ticket %d not closed", i)
		}
	}
}

func TestBulkReportsMissingTicketsPerItem(t *testing.T) {
	env := newTestEnv(t)
	ok := env.seed(t, domain.TicketStatusResolved, nil)

	result, err := env.bulk.BulkExecute(context.Background(), BulkClose, []string{ok.ID, "missing"}, BulkParams{}, admin)
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if result.SuccessCount != 1 || result.FailureCount != 1 {
		t.Fatalf("expected 1/1, got %d/%d", result.SuccessCount, result.FailureCount)
	}
	if result.PerItem[1].ErrorCode != apperrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", result.PerItem[1].ErrorCode)
	}
}

func TestBulkDeduplicatesIDs(t *testing.T) {
	env := newTestEnv(t)
	ticket := env.seed(t, domain.TicketStatusOpen, nil)

	result, err := env.bulk.BulkExecute(context.Background(), BulkUpdatePriority,
		[]string{ticket.ID, ticket.ID, ticket.ID}, BulkParams{Priority: domain.TicketPriorityLow}, admin)
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if len(result.PerItem) != 1 || result.SuccessCount != 1 {
		t.Fatalf("duplicates should be processed once: %+v", result)
	}
	if got := len(env.history(t, ticket.ID)); got != 1 {
		t.Fatalf("expected one history entry, got %d", got)
	}
}

func TestBulkRejectsMalformedRequests(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tooMany := make([]string, 51)
	for i := range tooMany {
		tooMany[i] = "id"
	}

	cases := []struct {
		name   string
		action BulkAction
		ids    []string
		params BulkParams
	}{
		{name: "unknown action", action: "archive", ids: []string{"a"}},
		{name: "empty ids", action: BulkClose},
		{name: "too many ids", action: BulkClose, ids: tooMany},
		{name: "assign without technician", action: BulkAssign, ids: []string{"a"}},
		{name: "bad status", action: BulkUpdateStatus, ids: []string{"a"}, params: BulkParams{Status: "done"}},
		{name: "bad priority", action: BulkUpdatePriority, ids: []string{"a"}, params: BulkParams{Priority: "p0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.bulk.BulkExecute(ctx, tc.action, tc.ids, tc.params, admin)
			expectCode(t, err, apperrors.CodeValidation)
		})
	}
}

func TestBulkCancelledBeforeStart(t *testing.T) {
	env := newTestEnv(t)
	ids := []string{
		env.seed(t, domain.TicketStatusResolved, nil).ID,
		env.seed(t, domain.TicketStatusResolved, nil).ID,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := env.bulk.BulkExecute(ctx, BulkClose, ids, BulkParams{}, admin)
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if result.FailureCount != 2 || result.SuccessCount != 0 {
		t.Fatalf("expected all items cancelled, got %+v", result)
	}
	for _, item := range result.PerItem {
		if item.ErrorCode != apperrors.CodeCancelled {
			t.Fatalf("expected CANCELLED, got %s", item.ErrorCode)
		}
	}
	for _, id := range ids {
		if env.ticket(t, id).Status != domain.TicketStatusResolved {
			t.Fatal("cancelled item was mutated")
		}
	}
}

func TestBulkSendsOneDigestPerRecipient(t *testing.T) {
	env := newTestEnv(t)
	env.technician(t, "tech-1", 10)
	ids := make([]string, 4)
	for i := range ids {
		ids[i] = env.seed(t, domain.TicketStatusOpen, nil).ID
	}

	var seen []events.Event
	env.events.SubscribeAll(func(_ context.Context, event events.Event) error {
		seen = append(seen, event)
		return nil
	})

	result, err := env.bulk.BulkExecute(context.Background(), BulkAssign, ids, BulkParams{TechnicianID: "tech-1"}, admin)
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if result.SuccessCount != 4 {
		t.Fatalf("expected 4 successes, got %+v", result)
	}

	intents := env.recorder.Intents()
	if len(intents) != 2 {
		t.Fatalf("expected one digest for requester and one for technician, got %d", len(intents))
	}
	for _, intent := range intents {
		if intent.EventType != events.EventBulkDigest {
			t.Fatalf("expected digest, got %s", intent.EventType)
		}
		payload := intent.Payload.(events.BulkDigestPayload)
		if len(payload.TicketIDs) != 4 {
			t.Fatalf("digest should cover 4 tickets, got %d", len(payload.TicketIDs))
		}
	}

	if len(seen) != 4 {
		t.Fatalf("every item event should still be published, got %d", len(seen))
	}
	batchID := seen[0].BatchID
	for _, event := range seen {
		if event.BatchID == "" || event.BatchID != batchID {
			t.Fatalf("events should share one batch id: %+v", event)
		}
	}
}

func TestBulkDelete(t *testing.T) {
	env := newTestEnv(t)
	open := env.seed(t, domain.TicketStatusOpen, nil)
	active := env.seed(t, domain.TicketStatusWaitingAdmin, nil)

	result, err := env.bulk.BulkExecute(context.Background(), BulkDelete, []string{open.ID, active.ID}, BulkParams{}, admin)
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if result.SuccessCount != 1 || result.FailureCount != 1 {
		t.Fatalf("expected 1/1, got %+v", result)
	}
	if result.PerItem[0].Message != "deleted" {
		t.Fatalf("unexpected message %q", result.PerItem[0].Message)
	}
}

// panickingStore blows up when a transaction locks the poisoned ticket.
type panickingStore struct {
	*repository.MemoryStore
	poisoned string
}

func (s *panickingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.MemoryStore.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, &panickingTx{Tx: tx, poisoned: s.poisoned})
	})
}

type panickingTx struct {
	repository.Tx
	poisoned string
}

func (tx *panickingTx) LockTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	if id == tx.poisoned {
		panic("corrupt row")
	}
	return tx.Tx.LockTicket(ctx, id)
}

func TestBulkIsolatesPanickingItem(t *testing.T) {
	env := newTestEnv(t)
	good := env.seed(t, domain.TicketStatusResolved, nil)
	bad := env.seed(t, domain.TicketStatusResolved, nil)

	store := &panickingStore{MemoryStore: env.store, poisoned: bad.ID}
	tickets := NewTicketService(TicketDependencies{Store: store, SLA: env.engine, Clock: env.clock.Now})
	bulk := NewBulkCoordinator(BulkDependencies{Tickets: tickets, Notifier: env.recorder, Workers: 2})

	result, err := bulk.BulkExecute(context.Background(), BulkClose, []string{good.ID, bad.ID}, BulkParams{}, admin)
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if result.SuccessCount != 1 || result.FailureCount != 1 {
		t.Fatalf("expected 1/1, got %d/%d", result.SuccessCount, result.FailureCount)
	}
	if item := result.PerItem[1]; item.TicketID != bad.ID || item.ErrorCode != apperrors.CodeInternal {
		t.Fatalf("unexpected item %+v", item)
	}
	if env.ticket(t, good.ID).Status != domain.TicketStatusClosed {
		t.Fatal("healthy item was not closed")
	}
	if env.ticket(t, bad.ID).Status != domain.TicketStatusResolved {
		t.Fatal("panicking item was mutated")
	}
}
