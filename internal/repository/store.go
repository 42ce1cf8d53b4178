package repository

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// Store is the durable ticket store plus the technician directory.
//
// Every write goes through WithinTx. Implementations return errors from
// pkg/util (NOT_FOUND, CONFLICT, CONCURRENCY_CONFLICT, PERSISTENCE_ERROR).
type Store interface {
	// WithinTx runs fn in one atomic unit: every staged ticket change and
	// history append commits together, or none does.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	FindTicket(ctx context.Context, id string) (*domain.Ticket, error)
	FindTicketByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	// ListEscalationCandidates returns up to limit unescalated, unassigned
	// active tickets created before the cutoff of their priority, oldest first.
	ListEscalationCandidates(ctx context.Context, cutoffs map[domain.TicketPriority]time.Time, limit int) ([]domain.Ticket, error)
	ListHistory(ctx context.Context, ticketID string) ([]domain.HistoryEntry, error)

	CreateTechnician(ctx context.Context, technician *domain.Technician) error
	FindTechnician(ctx context.Context, id string) (*domain.Technician, error)
	CurrentWorkload(ctx context.Context, technicianID string) (int, error)
}

// Tx is a unit of work. Locks taken through it are held until it ends.
// Lock order is ticket first, then technician.
type Tx interface {
	// LockTicket loads the ticket and holds its exclusive lock.
	LockTicket(ctx context.Context, id string) (*domain.Ticket, error)
	InsertTicket(ctx context.Context, ticket *domain.Ticket) error
	// UpdateTicket writes a locked ticket if its version still equals
	// expectedVersion, then bumps ticket.Version.
	UpdateTicket(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error
	DeleteTicket(ctx context.Context, id string, expectedVersion int64) error

	// LockTechnician loads the technician and serializes capacity checks on it.
	LockTechnician(ctx context.Context, id string) (*domain.Technician, error)
	// CurrentWorkload counts active tickets of the technician, ignoring excludeTicketID.
	CurrentWorkload(ctx context.Context, technicianID, excludeTicketID string) (int, error)

	AppendHistory(ctx context.Context, entry *domain.HistoryEntry) error
}
