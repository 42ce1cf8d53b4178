package domain

import "time"

// ActionKind captures what changed in a history entry.
type ActionKind string

const (
	ActionStatusChange   ActionKind = "status_change"
	ActionPriorityChange ActionKind = "priority_change"
	ActionAssignment     ActionKind = "assignment"
	ActionComment        ActionKind = "comment"
	ActionUnassignment   ActionKind = "unassignment"
	ActionEscalation     ActionKind = "escalation"
	ActionDeletion       ActionKind = "deletion"
)

// Valid reports whether k is a known action kind.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionStatusChange, ActionPriorityChange, ActionAssignment, ActionComment,
		ActionUnassignment, ActionEscalation, ActionDeletion:
		return true
	}
	return false
}

// HistoryEntry is an immutable audit trail entry.
type HistoryEntry struct {
	ID         string
	TicketID   string
	OldStatus  TicketStatus
	NewStatus  TicketStatus
	ActorID    string
	ActorRole  ActorRole
	ActionKind ActionKind
	Notes      string
	OldValue   map[string]any
	NewValue   map[string]any
	Timestamp  time.Time
}
