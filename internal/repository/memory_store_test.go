package repository

import (
	"context"
	"testing"
	"time"
	"unsafe"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestKeyedLocksSurviveReusedKeyBuffer(t *testing.T) {
	ctx := context.Background()
	locks := newKeyedLocks()

	// key shares bytes with buf, like a string read from a pooled request buffer
	buf := []byte("ticket-1")
	key := unsafe.String(&buf[0], len(buf))
	if err := locks.lock(ctx, key); err != nil {
		t.Fatalf("lock: %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		acquired <- locks.lock(waitCtx, "ticket-1")
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		locks.mu.Lock()
		l := locks.locks["ticket-1"]
		waiting := l != nil && l.refs == 2
		locks.mu.Unlock()
		if waiting {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("waiter never queued")
		}
		time.Sleep(time.Millisecond)
	}

	copy(buf, "ticket-9")
	locks.unlock("ticket-1")

	if err := <-acquired; err != nil {
		t.Fatalf("waiter did not get the lock: %v", err)
	}
	locks.unlock("ticket-1")

	locks.mu.Lock()
	defer locks.mu.Unlock()
	if len(locks.locks) != 0 {
		t.Fatalf("expected no lock entries, got %d", len(locks.locks))
	}
}

func TestListEscalationCandidatesAppliesPriorityCutoffs(t *testing.T) {
	store := NewMemoryStore()
	seed := func(id string, priority domain.TicketPriority, created time.Time, mutate func(*domain.Ticket)) {
		ticket := &domain.Ticket{
			ID:           id,
			TicketNumber: "TCK-" + id,
			RequesterID:  "user-1",
			Status:       domain.TicketStatusOpen,
			Priority:     priority,
			CreatedAt:    created,
			UpdatedAt:    created,
		}
		if mutate != nil {
			mutate(ticket)
		}
		store.Seed(ticket)
	}
	tech := "tech-1"
	seed("low-old", domain.TicketPriorityLow, t0, nil)
	seed("urgent-due", domain.TicketPriorityUrgent, t0.Add(time.Hour), nil)
	seed("urgent-fresh", domain.TicketPriorityUrgent, t0.Add(9*time.Hour), nil)
	seed("urgent-owned", domain.TicketPriorityUrgent, t0, func(ticket *domain.Ticket) { ticket.AssignedTechnicianID = &tech })
	seed("urgent-done", domain.TicketPriorityUrgent, t0, func(ticket *domain.Ticket) { ticket.Escalated = true })
	seed("urgent-waiting", domain.TicketPriorityUrgent, t0, func(ticket *domain.Ticket) { ticket.Status = domain.TicketStatusWaitingUser })
	seed("high-unpoliced", domain.TicketPriorityHigh, t0, nil)

	now := t0.Add(10 * time.Hour)
	cutoffs := map[domain.TicketPriority]time.Time{
		domain.TicketPriorityLow:    now.Add(-72 * time.Hour),
		domain.TicketPriorityUrgent: now.Add(-4 * time.Hour),
	}

	got, err := store.ListEscalationCandidates(context.Background(), cutoffs, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "urgent-due" {
		t.Fatalf("expected only urgent-due, got %+v", got)
	}
}
