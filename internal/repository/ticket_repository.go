package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

const ticketColumns = `id, ticket_number, requester_id, title, status, priority, assigned_technician_id,
               due_date, first_response_at, resolved_at, resolution_minutes, priority_at_resolution,
               closed_at, escalated, escalation_reason, version, created_at, updated_at`

func insertTicket(ctx context.Context, q querier, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, ticket_number, requester_id, title, status, priority, assigned_technician_id,
            due_date, first_response_at, resolved_at, resolution_minutes, priority_at_resolution,
            closed_at, escalated, escalation_reason, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`
	_, err := q.Exec(ctx, query,
		ticket.ID,
		ticket.TicketNumber,
		ticket.RequesterID,
		ticket.Title,
		string(ticket.Status),
		string(ticket.Priority),
		ticket.AssignedTechnicianID,
		ticket.DueDate,
		ticket.FirstResponseAt,
		ticket.ResolvedAt,
		ticket.ResolutionMinutes,
		priorityPtr(ticket.PriorityAtResolution),
		ticket.ClosedAt,
		ticket.Escalated,
		ticket.EscalationReason,
		ticket.Version,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)
	return err
}

// updateTicket reports whether a row matched id and expectedVersion.
func updateTicket(ctx context.Context, q querier, ticket *domain.Ticket, expectedVersion int64) (bool, error) {
	const query = `
        UPDATE tickets SET status=$1, priority=$2, assigned_technician_id=$3, due_date=$4,
            first_response_at=$5, resolved_at=$6, resolution_minutes=$7, priority_at_resolution=$8,
            closed_at=$9, escalated=$10, escalation_reason=$11, title=$12,
            version=version+1, updated_at=$13
        WHERE id=$14 AND version=$15`
	cmd, err := q.Exec(ctx, query,
		string(ticket.Status),
		string(ticket.Priority),
		ticket.AssignedTechnicianID,
		ticket.DueDate,
		ticket.FirstResponseAt,
		ticket.ResolvedAt,
		ticket.ResolutionMinutes,
		priorityPtr(ticket.PriorityAtResolution),
		ticket.ClosedAt,
		ticket.Escalated,
		ticket.EscalationReason,
		ticket.Title,
		ticket.UpdatedAt,
		ticket.ID,
		expectedVersion,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func deleteTicket(ctx context.Context, q querier, id string, expectedVersion int64) (bool, error) {
	cmd, err := q.Exec(ctx, `DELETE FROM tickets WHERE id=$1 AND version=$2`, id, expectedVersion)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func selectTicket(ctx context.Context, q querier, where string, arg any) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ` + where
	return scanTicket(q.QueryRow(ctx, query, arg))
}

func listEscalationCandidates(ctx context.Context, q querier, cutoffs map[domain.TicketPriority]time.Time, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 500
	}
	if len(cutoffs) == 0 {
		return nil, nil
	}
	statuses := []string{
		string(domain.TicketStatusOpen),
		string(domain.TicketStatusAssigned),
		string(domain.TicketStatusInProgress),
	}
	query, args := escalationCandidatesQuery(cutoffs, statuses, limit)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

// escalationCandidatesQuery compares created_at with a per-priority cutoff so
// tickets not yet due never occupy the batch. Priorities without a cutoff never match.
func escalationCandidatesQuery(cutoffs map[domain.TicketPriority]time.Time, statuses []string, limit int) (string, []any) {
	args := []any{statuses, limit}
	var cutoff strings.Builder
	cutoff.WriteString("CASE priority")
	for _, priority := range domain.AllPriorities {
		at, ok := cutoffs[priority]
		if !ok {
			continue
		}
		args = append(args, at)
		fmt.Fprintf(&cutoff, " WHEN '%s' THEN $%d::timestamptz", priority, len(args))
	}
	cutoff.WriteString(" END")

	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE assigned_technician_id IS NULL AND escalated = FALSE AND status = ANY($1)
          AND created_at < ` + cutoff.String() + `
        ORDER BY created_at ASC LIMIT $2`
	return query, args
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket               domain.Ticket
		status, priority     string
		priorityAtResolution *string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.RequesterID,
		&ticket.Title,
		&status,
		&priority,
		&ticket.AssignedTechnicianID,
		&ticket.DueDate,
		&ticket.FirstResponseAt,
		&ticket.ResolvedAt,
		&ticket.ResolutionMinutes,
		&priorityAtResolution,
		&ticket.ClosedAt,
		&ticket.Escalated,
		&ticket.EscalationReason,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ticket.Status = domain.TicketStatus(status)
	ticket.Priority = domain.TicketPriority(priority)
	if priorityAtResolution != nil {
		p := domain.TicketPriority(*priorityAtResolution)
		ticket.PriorityAtResolution = &p
	}
	return &ticket, nil
}

func priorityPtr(p *domain.TicketPriority) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}
