package domain

// ActorRole tags which account system an actor belongs to.
type ActorRole string

const (
	ActorRoleEndUser          ActorRole = "end_user"
	ActorRoleHelpdeskAdmin    ActorRole = "helpdesk_admin"
	ActorRoleApplicationAdmin ActorRole = "application_admin"
	ActorRoleTechnician       ActorRole = "technician"
	ActorRoleSystem           ActorRole = "system"
)

// Valid reports whether r is a known role.
func (r ActorRole) Valid() bool {
	switch r {
	case ActorRoleEndUser, ActorRoleHelpdeskAdmin, ActorRoleApplicationAdmin, ActorRoleTechnician, ActorRoleSystem:
		return true
	}
	return false
}

// Actor identifies who performs an operation.
type Actor struct {
	ID   string
	Role ActorRole
}

// SystemActor is used for scheduler-driven mutations.
var SystemActor = Actor{ID: "system", Role: ActorRoleSystem}
