package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen         TicketStatus = "open"
	TicketStatusAssigned     TicketStatus = "assigned"
	TicketStatusInProgress   TicketStatus = "in_progress"
	TicketStatusWaitingUser  TicketStatus = "waiting_user"
	TicketStatusWaitingAdmin TicketStatus = "waiting_admin"
	TicketStatusResolved     TicketStatus = "resolved"
	TicketStatusClosed       TicketStatus = "closed"
	TicketStatusCancelled    TicketStatus = "cancelled"
)

// AllStatuses lists every defined state.
var AllStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusAssigned,
	TicketStatusInProgress,
	TicketStatusWaitingUser,
	TicketStatusWaitingAdmin,
	TicketStatusResolved,
	TicketStatusClosed,
	TicketStatusCancelled,
}

// Valid reports whether s is a defined state.
func (s TicketStatus) Valid() bool {
	for _, candidate := range AllStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Terminal reports whether s has no outgoing edges.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusClosed || s == TicketStatusCancelled
}

// CountsTowardWorkload reports whether a ticket in s occupies a technician slot.
func (s TicketStatus) CountsTowardWorkload() bool {
	switch s {
	case TicketStatusAssigned, TicketStatusInProgress, TicketStatusWaitingUser, TicketStatusWaitingAdmin:
		return true
	}
	return false
}

// WorkloadStatuses are the states counted in a technician's workload.
var WorkloadStatuses = []TicketStatus{
	TicketStatusAssigned,
	TicketStatusInProgress,
	TicketStatusWaitingUser,
	TicketStatusWaitingAdmin,
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// AllPriorities lists every defined priority.
var AllPriorities = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityMedium,
	TicketPriorityHigh,
	TicketPriorityUrgent,
}

// Valid reports whether p is a defined priority.
func (p TicketPriority) Valid() bool {
	for _, candidate := range AllPriorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID                   string
	TicketNumber         string
	RequesterID          string
	Title                string
	Status               TicketStatus
	Priority             TicketPriority
	AssignedTechnicianID *string
	DueDate              time.Time
	FirstResponseAt      *time.Time
	ResolvedAt           *time.Time
	ResolutionMinutes    *int
	PriorityAtResolution *TicketPriority
	ClosedAt             *time.Time
	Escalated            bool
	EscalationReason     *string
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Assigned reports whether a technician is currently set.
func (t *Ticket) Assigned() bool {
	return t.AssignedTechnicianID != nil && *t.AssignedTechnicianID != ""
}

// Clone returns a deep copy so callers can stage mutations.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.AssignedTechnicianID = cloneString(t.AssignedTechnicianID)
	c.FirstResponseAt = cloneTime(t.FirstResponseAt)
	c.ResolvedAt = cloneTime(t.ResolvedAt)
	c.ClosedAt = cloneTime(t.ClosedAt)
	c.EscalationReason = cloneString(t.EscalationReason)
	if t.ResolutionMinutes != nil {
		v := *t.ResolutionMinutes
		c.ResolutionMinutes = &v
	}
	if t.PriorityAtResolution != nil {
		v := *t.PriorityAtResolution
		c.PriorityAtResolution = &v
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
