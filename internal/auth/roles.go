package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util"
)

// StaffRoles may work tickets: view any ticket, transition and comment.
var StaffRoles = []domain.ActorRole{
	domain.ActorRoleHelpdeskAdmin,
	domain.ActorRoleApplicationAdmin,
	domain.ActorRoleTechnician,
}

// AdminRoles may assign, reprioritize, delete and run bulk actions.
var AdminRoles = []domain.ActorRole{
	domain.ActorRoleHelpdeskAdmin,
	domain.ActorRoleApplicationAdmin,
}

// RequireRole ensures the actor has one of the allowed roles.
func RequireRole(allowed ...domain.ActorRole) fiber.Handler {
	allowedSet := make(map[domain.ActorRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[actor.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireAnyRole ensures the caller is authenticated.
func RequireAnyRole() fiber.Handler {
	return RequireRole()
}
