package domain

import "time"

// TechnicianStatus represents whether a technician can take work.
type TechnicianStatus string

const (
	TechnicianStatusActive   TechnicianStatus = "active"
	TechnicianStatusInactive TechnicianStatus = "inactive"
)

// Technician models a staff member tickets are routed to.
type Technician struct {
	ID                   string
	Name                 string
	Status               TechnicianStatus
	MaxConcurrentTickets int
	CreatedAt            time.Time
}

// Active reports whether the technician accepts assignments.
func (t *Technician) Active() bool {
	return t.Status == TechnicianStatusActive
}
