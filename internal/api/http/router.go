package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/helpdesk-engine/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-engine/internal/auth"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Staff          *handlers.StaffTicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if registry := cfg.Metrics.Registry(); registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	admin := auth.RequireRole(auth.AdminRoles...)

	tickets.Post("/bulk", admin, cfg.Staff.Bulk)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/sla", cfg.Tickets.GetSLA)
	tickets.Get("/:id/history", cfg.Tickets.ListHistory)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Post("/:id/transition", cfg.Tickets.Transition)

	tickets.Post("/:id/assign", admin, cfg.Staff.Assign)
	tickets.Post("/:id/reassign", admin, cfg.Staff.Reassign)
	tickets.Post("/:id/unassign", admin, cfg.Staff.Unassign)
	tickets.Post("/:id/priority", admin, cfg.Staff.UpdatePriority)
	tickets.Delete("/:id", admin, cfg.Staff.Delete)
}
