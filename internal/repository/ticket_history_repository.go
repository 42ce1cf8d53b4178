package repository

import (
	"context"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// History rows are insert-only; the schema rejects UPDATE and DELETE.

func insertHistory(ctx context.Context, q querier, entry *domain.HistoryEntry) error {
	const query = `
        INSERT INTO ticket_history (id, ticket_id, old_status, new_status, actor_id, actor_role,
            action_kind, notes, old_value, new_value, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := q.Exec(ctx, query,
		entry.ID,
		entry.TicketID,
		string(entry.OldStatus),
		string(entry.NewStatus),
		entry.ActorID,
		string(entry.ActorRole),
		string(entry.ActionKind),
		entry.Notes,
		entry.OldValue,
		entry.NewValue,
		entry.Timestamp,
	)
	return err
}

func listHistory(ctx context.Context, q querier, ticketID string) ([]domain.HistoryEntry, error) {
	const query = `
        SELECT id, ticket_id, old_status, new_status, actor_id, actor_role, action_kind, notes,
               old_value, new_value, created_at
        FROM ticket_history WHERE ticket_id=$1 ORDER BY seq ASC`
	rows, err := q.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.HistoryEntry
	for rows.Next() {
		var (
			entry                                 domain.HistoryEntry
			oldStatus, newStatus, actorRole, kind string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&oldStatus,
			&newStatus,
			&entry.ActorID,
			&actorRole,
			&kind,
			&entry.Notes,
			&entry.OldValue,
			&entry.NewValue,
			&entry.Timestamp,
		); err != nil {
			return nil, err
		}
		entry.OldStatus = domain.TicketStatus(oldStatus)
		entry.NewStatus = domain.TicketStatus(newStatus)
		entry.ActorRole = domain.ActorRole(actorRole)
		entry.ActionKind = domain.ActionKind(kind)
		result = append(result, entry)
	}
	return result, rows.Err()
}
