// Package sla computes due dates and detects breaches and escalation
// candidates from a priority-keyed policy.
package sla

import (
	"sync"
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// Engine evaluates SLA timers. It is safe for concurrent use.
type Engine struct {
	mu     sync.RWMutex
	policy Policy
}

// NewEngine builds an engine after validating the policy.
func NewEngine(policy Policy) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Engine{policy: policy.clone()}, nil
}

// MustNewEngine is NewEngine for known-good policies.
func MustNewEngine(policy Policy) *Engine {
	e, err := NewEngine(policy)
	if err != nil {
		panic(err)
	}
	return e
}

// SetPolicy swaps the policy at runtime. Existing due dates are not rewritten.
func (e *Engine) SetPolicy(policy Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.policy = policy.clone()
	e.mu.Unlock()
	return nil
}

// Policy returns a copy of the active policy.
func (e *Engine) Policy() Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy.clone()
}

// Target returns the timers for a priority.
func (e *Engine) Target(priority domain.TicketPriority) (Target, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.policy[priority]
	return t, ok
}

// ComputeDueDate returns createdAt plus the resolution window of priority.
func (e *Engine) ComputeDueDate(createdAt time.Time, priority domain.TicketPriority) time.Time {
	target, _ := e.Target(priority)
	return createdAt.Add(hours(target.ResolutionHours))
}

// OnPriorityChanged recomputes the due date from the original creation time.
// The clock is not restarted at the change point.
func (e *Engine) OnPriorityChanged(ticket *domain.Ticket, newPriority domain.TicketPriority) time.Time {
	return e.ComputeDueDate(ticket.CreatedAt, newPriority)
}

// ResponseDue returns the first-response deadline.
func (e *Engine) ResponseDue(ticket *domain.Ticket) time.Time {
	target, _ := e.Target(ticket.Priority)
	return ticket.CreatedAt.Add(hours(target.ResponseHours))
}

// IsResponseBreached reports a missing or late first response.
func (e *Engine) IsResponseBreached(ticket *domain.Ticket, now time.Time) bool {
	due := e.ResponseDue(ticket)
	if ticket.FirstResponseAt != nil {
		return ticket.FirstResponseAt.After(due)
	}
	return now.After(due)
}

// IsBreached reports whether a resolved ticket exceeded its resolution window.
// The priority in force at resolution is used when recorded.
func (e *Engine) IsBreached(ticket *domain.Ticket) bool {
	if ticket.ResolvedAt == nil || ticket.ResolutionMinutes == nil {
		return false
	}
	priority := ticket.Priority
	if ticket.PriorityAtResolution != nil {
		priority = *ticket.PriorityAtResolution
	}
	target, ok := e.Target(priority)
	if !ok {
		return false
	}
	return *ticket.ResolutionMinutes > target.ResolutionHours*60
}

// IsEscalationCandidate reports an unassigned active ticket older than the
// escalation threshold of its priority.
func (e *Engine) IsEscalationCandidate(ticket *domain.Ticket, now time.Time) bool {
	if ticket.Assigned() {
		return false
	}
	switch ticket.Status {
	case domain.TicketStatusOpen, domain.TicketStatusAssigned, domain.TicketStatusInProgress:
	default:
		return false
	}
	target, ok := e.Target(ticket.Priority)
	if !ok {
		return false
	}
	return now.Sub(ticket.CreatedAt) > hours(target.EscalationHours)
}

// EscalationCutoffs maps each priority to the creation time before which an
// unassigned active ticket is due for escalation at now.
func (e *Engine) EscalationCutoffs(now time.Time) map[domain.TicketPriority]time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cutoffs := make(map[domain.TicketPriority]time.Time, len(e.policy))
	for priority, target := range e.policy {
		cutoffs[priority] = now.Add(-hours(target.EscalationHours))
	}
	return cutoffs
}

// EscalationHours exposes the threshold used for reasons and logs.
func (e *Engine) EscalationHours(priority domain.TicketPriority) int {
	target, _ := e.Target(priority)
	return target.EscalationHours
}

// ElapsedMinutes returns whole minutes between from and to, never negative.
func ElapsedMinutes(from, to time.Time) int {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}
