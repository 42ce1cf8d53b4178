package repository

import (
	"context"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

const technicianColumns = `id, name, status, max_concurrent_tickets, created_at`

func insertTechnician(ctx context.Context, q querier, tech *domain.Technician) error {
	const query = `
        INSERT INTO technicians (id, name, status, max_concurrent_tickets, created_at)
        VALUES ($1,$2,$3,$4,$5)`
	_, err := q.Exec(ctx, query, tech.ID, tech.Name, string(tech.Status), tech.MaxConcurrentTickets, tech.CreatedAt)
	return err
}

func selectTechnician(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Technician, error) {
	query := `SELECT ` + technicianColumns + ` FROM technicians WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		tech   domain.Technician
		status string
	)
	if err := q.QueryRow(ctx, query, id).Scan(
		&tech.ID,
		&tech.Name,
		&status,
		&tech.MaxConcurrentTickets,
		&tech.CreatedAt,
	); err != nil {
		return nil, err
	}
	tech.Status = domain.TechnicianStatus(status)
	return &tech, nil
}

func countWorkload(ctx context.Context, q querier, technicianID, excludeTicketID string) (int, error) {
	const query = `
        SELECT COUNT(*) FROM tickets
        WHERE assigned_technician_id=$1 AND status = ANY($2) AND id <> $3`
	statuses := make([]string, 0, len(domain.WorkloadStatuses))
	for _, s := range domain.WorkloadStatuses {
		statuses = append(statuses, string(s))
	}
	var count int
	if err := q.QueryRow(ctx, query, technicianID, statuses, excludeTicketID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
