package sla

import (
	"fmt"
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// Target holds the timers for one priority.
type Target struct {
	ResponseHours   int
	ResolutionHours int
	// EscalationHours is the unassigned-age threshold, shorter than ResolutionHours.
	EscalationHours int
}

// Policy maps each priority to its SLA targets.
type Policy map[domain.TicketPriority]Target

// DefaultPolicy returns the stock targets.
func DefaultPolicy() Policy {
	return Policy{
		domain.TicketPriorityUrgent: {ResponseHours: 1, ResolutionHours: 8, EscalationHours: 4},
		domain.TicketPriorityHigh:   {ResponseHours: 4, ResolutionHours: 24, EscalationHours: 12},
		domain.TicketPriorityMedium: {ResponseHours: 8, ResolutionHours: 48, EscalationHours: 24},
		domain.TicketPriorityLow:    {ResponseHours: 24, ResolutionHours: 120, EscalationHours: 72},
	}
}

// Validate checks every priority is covered with coherent hours.
func (p Policy) Validate() error {
	for _, priority := range domain.AllPriorities {
		target, ok := p[priority]
		if !ok {
			return fmt.Errorf("sla policy missing priority %q", priority)
		}
		if target.ResponseHours <= 0 || target.ResolutionHours <= 0 || target.EscalationHours <= 0 {
			return fmt.Errorf("sla policy for %q must use positive hours", priority)
		}
		if target.EscalationHours >= target.ResolutionHours {
			return fmt.Errorf("sla policy for %q: escalation (%dh) must be shorter than resolution (%dh)",
				priority, target.EscalationHours, target.ResolutionHours)
		}
	}
	return nil
}

func (p Policy) clone() Policy {
	out := make(Policy, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func hours(n int) time.Duration {
	return time.Duration(n) * time.Hour
}
