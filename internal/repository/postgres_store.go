package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util"
)

const (
	pgUniqueViolation  = "23505"
	pgLockNotAvailable = "55P03"
	pgDeadlockDetected = "40P01"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on a pgx pool. Per-ticket serialization
// uses SELECT ... FOR UPDATE row locks held for the transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore instantiates the store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return apperrors.NewPersistenceError(fmt.Errorf("begin tx: %w", err))
	}
	defer pgTx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, &postgresTx{tx: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("commit tx: %w", err), "ticket", nil)
	}
	return nil
}

func (s *PostgresStore) FindTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := selectTicket(ctx, s.pool, "id=$1", id)
	if err != nil {
		return nil, mapPgError(err, "ticket", map[string]any{"ticket_id": id})
	}
	return ticket, nil
}

func (s *PostgresStore) FindTicketByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	ticket, err := selectTicket(ctx, s.pool, "ticket_number=$1", number)
	if err != nil {
		return nil, mapPgError(err, "ticket", map[string]any{"ticket_number": number})
	}
	return ticket, nil
}

func (s *PostgresStore) ListEscalationCandidates(ctx context.Context, cutoffs map[domain.TicketPriority]time.Time, limit int) ([]domain.Ticket, error) {
	tickets, err := listEscalationCandidates(ctx, s.pool, cutoffs, limit)
	if err != nil {
		return nil, mapPgError(err, "ticket", nil)
	}
	return tickets, nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, ticketID string) ([]domain.HistoryEntry, error) {
	entries, err := listHistory(ctx, s.pool, ticketID)
	if err != nil {
		return nil, mapPgError(err, "history", nil)
	}
	return entries, nil
}

func (s *PostgresStore) CreateTechnician(ctx context.Context, technician *domain.Technician) error {
	if technician.ID == "" {
		technician.ID = uuid.NewString()
	}
	if err := insertTechnician(ctx, s.pool, technician); err != nil {
		return mapPgError(err, "technician", map[string]any{"technician_id": technician.ID})
	}
	return nil
}

func (s *PostgresStore) FindTechnician(ctx context.Context, id string) (*domain.Technician, error) {
	tech, err := selectTechnician(ctx, s.pool, id, false)
	if err != nil {
		return nil, mapPgError(err, "technician", map[string]any{"technician_id": id})
	}
	return tech, nil
}

func (s *PostgresStore) CurrentWorkload(ctx context.Context, technicianID string) (int, error) {
	count, err := countWorkload(ctx, s.pool, technicianID, "")
	if err != nil {
		return 0, mapPgError(err, "technician", nil)
	}
	return count, nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) LockTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := selectTicket(ctx, t.tx, "id=$1 FOR UPDATE", id)
	if err != nil {
		return nil, mapPgError(err, "ticket", map[string]any{"ticket_id": id})
	}
	return ticket, nil
}

func (t *postgresTx) InsertTicket(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.Version == 0 {
		ticket.Version = 1
	}
	if err := insertTicket(ctx, t.tx, ticket); err != nil {
		return mapPgError(err, "ticket", map[string]any{"ticket_number": ticket.TicketNumber})
	}
	return nil
}

func (t *postgresTx) UpdateTicket(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	ok, err := updateTicket(ctx, t.tx, ticket, expectedVersion)
	if err != nil {
		return mapPgError(err, "ticket", map[string]any{"ticket_id": ticket.ID})
	}
	if !ok {
		return apperrors.NewConcurrencyConflict("ticket", map[string]any{
			"ticket_id":        ticket.ID,
			"expected_version": expectedVersion,
		})
	}
	ticket.Version = expectedVersion + 1
	return nil
}

func (t *postgresTx) DeleteTicket(ctx context.Context, id string, expectedVersion int64) error {
	ok, err := deleteTicket(ctx, t.tx, id, expectedVersion)
	if err != nil {
		return mapPgError(err, "ticket", map[string]any{"ticket_id": id})
	}
	if !ok {
		return apperrors.NewConcurrencyConflict("ticket", map[string]any{"ticket_id": id})
	}
	return nil
}

func (t *postgresTx) LockTechnician(ctx context.Context, id string) (*domain.Technician, error) {
	tech, err := selectTechnician(ctx, t.tx, id, true)
	if err != nil {
		return nil, mapPgError(err, "technician", map[string]any{"technician_id": id})
	}
	return tech, nil
}

func (t *postgresTx) CurrentWorkload(ctx context.Context, technicianID, excludeTicketID string) (int, error) {
	count, err := countWorkload(ctx, t.tx, technicianID, excludeTicketID)
	if err != nil {
		return 0, mapPgError(err, "technician", nil)
	}
	return count, nil
}

func (t *postgresTx) AppendHistory(ctx context.Context, entry *domain.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := insertHistory(ctx, t.tx, entry); err != nil {
		return mapPgError(err, "history", map[string]any{"ticket_id": entry.TicketID})
	}
	return nil
}

func mapPgError(err error, resource string, details map[string]any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(resource, details)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if details == nil {
				details = map[string]any{}
			}
			details["constraint"] = pgErr.ConstraintName
			return apperrors.NewConflict(resource+" already exists", details)
		case pgLockNotAvailable, pgDeadlockDetected:
			// lock_timeout or deadlock on the row lock: another writer holds it
			if details == nil {
				details = map[string]any{}
			}
			details["sqlstate"] = pgErr.Code
			return apperrors.NewConcurrencyConflict(resource, details)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewCancelled(err)
	}
	return apperrors.NewPersistenceError(err)
}
