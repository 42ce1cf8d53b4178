package sla

import (
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return parsed
}

func TestComputeDueDate(t *testing.T) {
	engine := MustNewEngine(DefaultPolicy())
	created := mustTime(t, "2024-01-01T00:00:00Z")

	tests := []struct {
		priority domain.TicketPriority
		want     string
	}{
		{domain.TicketPriorityUrgent, "2024-01-01T08:00:00Z"},
		{domain.TicketPriorityHigh, "2024-01-02T00:00:00Z"},
		{domain.TicketPriorityMedium, "2024-01-03T00:00:00Z"},
		{domain.TicketPriorityLow, "2024-01-06T00:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			got := engine.ComputeDueDate(created, tt.priority)
			if !got.Equal(mustTime(t, tt.want)) {
				t.Fatalf("due date = %s, want %s", got.Format(time.RFC3339), tt.want)
			}
		})
	}
}

func TestOnPriorityChangedKeepsOriginalClock(t *testing.T) {
	engine := MustNewEngine(DefaultPolicy())
	ticket := &domain.Ticket{CreatedAt: mustTime(t, "2024-01-01T00:00:00Z"), Priority: domain.TicketPriorityUrgent}
	got := engine.OnPriorityChanged(ticket, domain.TicketPriorityLow)
	if want := mustTime(t, "2024-01-06T00:00:00Z"); !got.Equal(want) {
		t.Fatalf("due date = %s, want %s", got, want)
	}
}

func TestIsBreached(t *testing.T) {
	engine := MustNewEngine(DefaultPolicy())
	created := mustTime(t, "2024-01-01T00:00:00Z")
	resolved := created.Add(5 * time.Hour)
	urgent := domain.TicketPriorityUrgent

	minutes := func(n int) *int { return &n }

	tests := []struct {
		name   string
		ticket domain.Ticket
		want   bool
	}{
		{
			name:   "unresolved is never breached",
			ticket: domain.Ticket{CreatedAt: created, Priority: urgent},
			want:   false,
		},
		{
			name:   "within window",
			ticket: domain.Ticket{CreatedAt: created, Priority: urgent, ResolvedAt: &resolved, ResolutionMinutes: minutes(300)},
			want:   false,
		},
		{
			name:   "exactly at window",
			ticket: domain.Ticket{CreatedAt: created, Priority: urgent, ResolvedAt: &resolved, ResolutionMinutes: minutes(480)},
			want:   false,
		},
		{
			name:   "past window",
			ticket: domain.Ticket{CreatedAt: created, Priority: urgent, ResolvedAt: &resolved, ResolutionMinutes: minutes(481)},
			want:   true,
		},
		{
			name: "uses priority at resolution",
			ticket: domain.Ticket{
				CreatedAt:            created,
				Priority:             domain.TicketPriorityLow,
				PriorityAtResolution: &urgent,
				ResolvedAt:           &resolved,
				ResolutionMinutes:    minutes(600),
			},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.IsBreached(&tt.ticket); got != tt.want {
				t.Fatalf("IsBreached = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsEscalationCandidate(t *testing.T) {
	engine := MustNewEngine(DefaultPolicy())
	created := mustTime(t, "2024-01-01T00:00:00Z")
	tech := "tech-1"

	tests := []struct {
		name   string
		ticket domain.Ticket
		now    time.Time
		want   bool
	}{
		{"young open ticket", domain.Ticket{CreatedAt: created, Priority: domain.TicketPriorityUrgent, Status: domain.TicketStatusOpen}, created.Add(3 * time.Hour), false},
		{"old open ticket", domain.Ticket{CreatedAt: created, Priority: domain.TicketPriorityUrgent, Status: domain.TicketStatusOpen}, created.Add(5 * time.Hour), true},
		{"assigned technician", domain.Ticket{CreatedAt: created, Priority: domain.TicketPriorityUrgent, Status: domain.TicketStatusAssigned, AssignedTechnicianID: &tech}, created.Add(5 * time.Hour), false},
		{"waiting user is not a candidate", domain.Ticket{CreatedAt: created, Priority: domain.TicketPriorityUrgent, Status: domain.TicketStatusWaitingUser}, created.Add(5 * time.Hour), false},
		{"resolved is not a candidate", domain.Ticket{CreatedAt: created, Priority: domain.TicketPriorityUrgent, Status: domain.TicketStatusResolved}, created.Add(50 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.IsEscalationCandidate(&tt.ticket, tt.now); got != tt.want {
				t.Fatalf("IsEscalationCandidate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResponseBreach(t *testing.T) {
	engine := MustNewEngine(DefaultPolicy())
	created := mustTime(t, "2024-01-01T00:00:00Z")
	ticket := &domain.Ticket{CreatedAt: created, Priority: domain.TicketPriorityHigh}

	if engine.IsResponseBreached(ticket, created.Add(3*time.Hour)) {
		t.Fatal("response should not be breached before 4h")
	}
	if !engine.IsResponseBreached(ticket, created.Add(5*time.Hour)) {
		t.Fatal("response should be breached after 4h with no first response")
	}
	responded := created.Add(2 * time.Hour)
	ticket.FirstResponseAt = &responded
	if engine.IsResponseBreached(ticket, created.Add(10*time.Hour)) {
		t.Fatal("timely first response must not breach")
	}
}

func TestSetPolicyRejectsInvalid(t *testing.T) {
	engine := MustNewEngine(DefaultPolicy())

	bad := DefaultPolicy()
	bad[domain.TicketPriorityUrgent] = Target{ResponseHours: 1, ResolutionHours: 4, EscalationHours: 4}
	if err := engine.SetPolicy(bad); err == nil {
		t.Fatal("expected error when escalation is not shorter than resolution")
	}

	missing := DefaultPolicy()
	delete(missing, domain.TicketPriorityLow)
	if err := engine.SetPolicy(missing); err == nil {
		t.Fatal("expected error for missing priority")
	}

	faster := DefaultPolicy()
	faster[domain.TicketPriorityUrgent] = Target{ResponseHours: 1, ResolutionHours: 6, EscalationHours: 2}
	if err := engine.SetPolicy(faster); err != nil {
		t.Fatalf("SetPolicy: %v", err)
	}
	created := mustTime(t, "2024-01-01T00:00:00Z")
	if got := engine.ComputeDueDate(created, domain.TicketPriorityUrgent); !got.Equal(created.Add(6 * time.Hour)) {
		t.Fatalf("due date after reconfigure = %s", got)
	}
}

func TestElapsedMinutes(t *testing.T) {
	from := mustTime(t, "2024-01-01T00:00:00Z")
	if got := ElapsedMinutes(from, from.Add(5*time.Hour+59*time.Second)); got != 300 {
		t.Fatalf("ElapsedMinutes = %d, want 300", got)
	}
	if got := ElapsedMinutes(from, from.Add(-time.Minute)); got != 0 {
		t.Fatalf("negative span = %d, want 0", got)
	}
}
