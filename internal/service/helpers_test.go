package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-engine/internal/audit"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/notify"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util"
)

var (
	t0    = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	admin = domain.Actor{ID: "admin-1", Role: domain.ActorRoleHelpdeskAdmin}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type testEnv struct {
	store      *repository.MemoryStore
	clock      *testClock
	engine     *sla.Engine
	events     events.Dispatcher
	recorder   *notify.Recorder
	machine    *StateMachine
	router     *AssignmentRouter
	tickets    *TicketService
	bulk       *BulkCoordinator
	escalation *EscalationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    repository.NewMemoryStore(),
		clock:    &testClock{now: t0},
		engine:   sla.MustNewEngine(sla.DefaultPolicy()),
		events:   events.NewInMemoryDispatcher(nil),
		recorder: &notify.Recorder{},
	}
	trail := audit.NewTrail(env.clock.Now)
	env.machine = NewStateMachine(StateMachineDependencies{
		Store:        env.store,
		Trail:        trail,
		ReopenWindow: 72 * time.Hour,
		Clock:        env.clock.Now,
	})
	env.router = NewAssignmentRouter(AssignmentDependencies{
		Store:   env.store,
		Trail:   trail,
		Machine: env.machine,
		Clock:   env.clock.Now,
	})
	env.tickets = NewTicketService(TicketDependencies{
		Store:      env.store,
		SLA:        env.engine,
		Trail:      trail,
		Machine:    env.machine,
		Router:     env.router,
		Dispatcher: env.events,
		Clock:      env.clock.Now,
	})
	env.bulk = NewBulkCoordinator(BulkDependencies{
		Tickets:    env.tickets,
		Dispatcher: env.events,
		Notifier:   env.recorder,
		Workers:    4,
		MaxItems:   50,
	})
	env.escalation = NewEscalationService(EscalationDependencies{
		Store:      env.store,
		SLA:        env.engine,
		Trail:      trail,
		Dispatcher: env.events,
		Clock:      env.clock.Now,
	})
	NewNotificationService(env.events, env.recorder, nil).RegisterHandlers()
	return env
}

// seed stores a ticket in status without going through the lifecycle.
func (e *testEnv) seed(t *testing.T, status domain.TicketStatus, mutate func(*domain.Ticket)) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		ID:           uuid.NewString(),
		TicketNumber: "TCK-" + uuid.NewString()[:8],
		RequesterID:  "user-1",
		Title:        "printer on fire",
		Status:       status,
		Priority:     domain.TicketPriorityUrgent,
		DueDate:      e.engine.ComputeDueDate(t0, domain.TicketPriorityUrgent),
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
	if status == domain.TicketStatusResolved {
		resolvedAt := e.clock.Now()
		minutes := sla.ElapsedMinutes(t0, resolvedAt)
		ticket.ResolvedAt = &resolvedAt
		ticket.ResolutionMinutes = &minutes
	}
	if mutate != nil {
		mutate(ticket)
	}
	e.store.Seed(ticket)
	return ticket
}

func (e *testEnv) technician(t *testing.T, id string, max int) *domain.Technician {
	t.Helper()
	tech := &domain.Technician{ID: id, Name: id, Status: domain.TechnicianStatusActive, MaxConcurrentTickets: max}
	if err := e.store.CreateTechnician(context.Background(), tech); err != nil {
		t.Fatalf("create technician: %v", err)
	}
	return tech
}

func (e *testEnv) history(t *testing.T, ticketID string) []domain.HistoryEntry {
	t.Helper()
	entries, err := e.store.ListHistory(context.Background(), ticketID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	return entries
}

func (e *testEnv) ticket(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := e.store.FindTicket(context.Background(), id)
	if err != nil {
		t.Fatalf("find ticket: %v", err)
	}
	return ticket
}

func assignedTo(id string) func(*domain.Ticket) {
	return func(ticket *domain.Ticket) {
		ticket.AssignedTechnicianID = &id
	}
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if got := apperrors.Code(err); got != code {
		t.Fatalf("expected %s, got %s (%v)", code, got, err)
	}
}
