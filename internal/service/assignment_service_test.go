package service

import (
	"context"
	"sync"
	"testing"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util"
)

func TestAssignOpenTicketMovesToAssigned(t *testing.T) {
	env := newTestEnv(t)
	env.technician(t, "tech-1", 10)
	ticket := env.seed(t, domain.TicketStatusOpen, nil)

	outcome, err := env.router.AssignToTechnician(context.Background(), ticket.ID, "tech-1", admin, "take it")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if outcome.Ticket.Status != domain.TicketStatusAssigned {
		t.Fatalf("expected assigned, got %s", outcome.Ticket.Status)
	}
	if !outcome.Ticket.Assigned() || *outcome.Ticket.AssignedTechnicianID != "tech-1" {
		t.Fatal("technician not set")
	}

	history := env.history(t, ticket.ID)
	if len(history) != 1 {
		t.Fatalf("expected one history entry, got %d", len(history))
	}
	entry := history[0]
	if entry.ActionKind != domain.ActionAssignment || entry.OldStatus != domain.TicketStatusOpen || entry.NewStatus != domain.TicketStatusAssigned {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.NewValue["technician_id"] != "tech-1" {
		t.Fatalf("technician not recorded: %+v", entry.NewValue)
	}

	workload, _ := env.store.CurrentWorkload(context.Background(), "tech-1")
	if workload != 1 {
		t.Fatalf("expected workload 1, got %d", workload)
	}
}

func TestAssignInProgressKeepsStatus(t *testing.T) {
	env := newTestEnv(t)
	env.technician(t, "tech-1", 10)
	ticket := env.seed(t, domain.TicketStatusInProgress, nil)

	outcome, err := env.router.AssignToTechnician(context.Background(), ticket.ID, "tech-1", admin, "")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if outcome.Ticket.Status != domain.TicketStatusInProgress {
		t.Fatalf("status should not change, got %s", outcome.Ticket.Status)
	}
}

func TestAssignFailures(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(t *testing.T, env *testEnv) (ticketID, techID string)
		code   string
		status domain.TicketStatus
	}{
		{
			name: "capacity exceeded",
			setup: func(t *testing.T, env *testEnv) (string, string) {
				env.technician(t, "tech-1", 2)
				env.seed(t, domain.TicketStatusAssigned, assignedTo("tech-1"))
				env.seed(t, domain.TicketStatusWaitingUser, assignedTo("tech-1"))
				return env.seed(t, domain.TicketStatusOpen, nil).ID, "tech-1"
			},
			code:   apperrors.CodeCapacityExceeded,
			status: domain.TicketStatusOpen,
		},
		{
			name: "inactive technician",
			setup: func(t *testing.T, env *testEnv) (string, string) {
				env.technician(t, "tech-1", 5)
				_ = env.store.SetTechnicianStatus("tech-1", domain.TechnicianStatusInactive)
				return env.seed(t, domain.TicketStatusOpen, nil).ID, "tech-1"
			},
			code:   apperrors.CodeTechnicianInactive,
			status: domain.TicketStatusOpen,
		},
		{
			name: "unknown technician",
			setup: func(t *testing.T, env *testEnv) (string, string) {
				return env.seed(t, domain.TicketStatusOpen, nil).ID, "nobody"
			},
			code:   apperrors.CodeNotFound,
			status: domain.TicketStatusOpen,
		},
		{
			name: "resolved ticket",
			setup: func(t *testing.T, env *testEnv) (string, string) {
				env.technician(t, "tech-1", 5)
				return env.seed(t, domain.TicketStatusResolved, nil).ID, "tech-1"
			},
			code:   apperrors.CodeInvalidTransition,
			status: domain.TicketStatusResolved,
		},
		{
			name: "same technician",
			setup: func(t *testing.T, env *testEnv) (string, string) {
				env.technician(t, "tech-1", 5)
				return env.seed(t, domain.TicketStatusAssigned, assignedTo("tech-1")).ID, "tech-1"
			},
			code:   apperrors.CodeValidation,
			status: domain.TicketStatusAssigned,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			ticketID, techID := tc.setup(t, env)
			before := env.ticket(t, ticketID)

			_, err := env.router.AssignToTechnician(context.Background(), ticketID, techID, admin, "")
			expectCode(t, err, tc.code)

			after := env.ticket(t, ticketID)
			if after.Status != tc.status {
				t.Fatalf("status changed to %s", after.Status)
			}
			if (before.AssignedTechnicianID == nil) != (after.AssignedTechnicianID == nil) {
				t.Fatal("assignment changed on failure")
			}
			if got := len(env.history(t, ticketID)); got != 0 {
				t.Fatalf("expected no history, got %d", got)
			}
		})
	}
}

func TestAssignUnknownTicket(t *testing.T) {
	env := newTestEnv(t)
	env.technician(t, "tech-1", 5)
	_, err := env.router.AssignToTechnician(context.Background(), "missing", "tech-1", admin, "")
	expectCode(t, err, apperrors.CodeNotFound)
}

func TestReassign(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.technician(t, "tech-a", 5)
	env.technician(t, "tech-b", 1)
	ticket := env.seed(t, domain.TicketStatusInProgress, assignedTo("tech-a"))

	outcome, err := env.router.Reassign(ctx, ticket.ID, "tech-b", admin, "shift change")
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if *outcome.Ticket.AssignedTechnicianID != "tech-b" {
		t.Fatal("technician not swapped")
	}
	if a, _ := env.store.CurrentWorkload(ctx, "tech-a"); a != 0 {
		t.Fatalf("old technician still holds the slot: %d", a)
	}
	entry := env.history(t, ticket.ID)[0]
	if entry.OldValue["technician_id"] != "tech-a" || entry.NewValue["technician_id"] != "tech-b" {
		t.Fatalf("unexpected reassignment entry %+v", entry)
	}
	recipients := outcome.Events[0].Recipients
	if len(recipients) != 3 {
		t.Fatalf("requester, new and previous technician should be notified, got %v", recipients)
	}
}

func TestReassignFailureKeepsOldAssignment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.technician(t, "tech-a", 5)
	env.technician(t, "tech-b", 1)
	env.seed(t, domain.TicketStatusAssigned, assignedTo("tech-b"))
	ticket := env.seed(t, domain.TicketStatusAssigned, assignedTo("tech-a"))

	_, err := env.router.Reassign(ctx, ticket.ID, "tech-b", admin, "")
	expectCode(t, err, apperrors.CodeCapacityExceeded)

	after := env.ticket(t, ticket.ID)
	if *after.AssignedTechnicianID != "tech-a" {
		t.Fatal("failed reassign released the old technician")
	}
	if a, _ := env.store.CurrentWorkload(ctx, "tech-a"); a != 1 {
		t.Fatalf("tech-a workload should be 1, got %d", a)
	}
}

func TestReassignRequiresCurrentTechnician(t *testing.T) {
	env := newTestEnv(t)
	env.technician(t, "tech-a", 5)
	ticket := env.seed(t, domain.TicketStatusOpen, nil)

	_, err := env.router.Reassign(context.Background(), ticket.ID, "tech-a", admin, "")
	expectCode(t, err, apperrors.CodeValidation)
}

func TestUnassign(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ticket := env.seed(t, domain.TicketStatusInProgress, assignedTo("tech-1"))

	outcome, err := env.router.Unassign(ctx, ticket.ID, admin, "on leave")
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if outcome.Ticket.AssignedTechnicianID != nil {
		t.Fatal("technician not cleared")
	}
	if outcome.Ticket.Status != domain.TicketStatusInProgress {
		t.Fatal("unassign must not change status")
	}
	history := env.history(t, ticket.ID)
	if len(history) != 1 || history[0].ActionKind != domain.ActionUnassignment {
		t.Fatalf("unexpected history %+v", history)
	}

	_, err = env.router.Unassign(ctx, ticket.ID, admin, "")
	expectCode(t, err, apperrors.CodeValidation)
}

func TestConcurrentAssignmentsRespectCapacity(t *testing.T) {
	env := newTestEnv(t)
	const capacity = 3
	env.technician(t, "tech-1", capacity)

	ids := make([]string, 12)
	for i := range ids {
		ids[i] = env.seed(t, domain.TicketStatusOpen, nil).ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.router.AssignToTechnician(context.Background(), id, "tech-1", admin, "")
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !apperrors.IsKind(err, apperrors.CodeCapacityExceeded) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != capacity {
		t.Fatalf("expected %d successful assignments, got %d", capacity, successes)
	}
	if workload, _ := env.store.CurrentWorkload(context.Background(), "tech-1"); workload != capacity {
		t.Fatalf("workload %d exceeds capacity", workload)
	}
}
