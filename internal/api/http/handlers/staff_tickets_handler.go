package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-engine/internal/api/dto"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/service"
	"github.com/spec-kit/helpdesk-engine/internal/sla"
)

// StaffTicketsHandler serves assignment, priority, deletion and bulk endpoints.
type StaffTicketsHandler struct {
	tickets *service.TicketService
	bulk    *service.BulkCoordinator
	sla     *sla.Engine
}

// NewStaffTicketsHandler constructs handler.
func NewStaffTicketsHandler(tickets *service.TicketService, bulk *service.BulkCoordinator, engine *sla.Engine) *StaffTicketsHandler {
	return &StaffTicketsHandler{tickets: tickets, bulk: bulk, sla: engine}
}

// Assign POST /tickets/:id/assign.
func (h *StaffTicketsHandler) Assign(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.AssignToTechnician(c.UserContext(), c.Params("id"), req.TechnicianID, actor, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.view(ticket)})
}

// Reassign POST /tickets/:id/reassign.
func (h *StaffTicketsHandler) Reassign(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.Reassign(c.UserContext(), c.Params("id"), req.TechnicianID, actor, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.view(ticket)})
}

// Unassign POST /tickets/:id/unassign.
func (h *StaffTicketsHandler) Unassign(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.UnassignRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	ticket, err := h.tickets.Unassign(c.UserContext(), c.Params("id"), actor, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.view(ticket)})
}

// UpdatePriority POST /tickets/:id/priority.
func (h *StaffTicketsHandler) UpdatePriority(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.PriorityRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.UpdatePriority(c.UserContext(), c.Params("id"), req.Priority, actor, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.view(ticket)})
}

// Delete DELETE /tickets/:id.
func (h *StaffTicketsHandler) Delete(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	if err := h.tickets.DeleteTicket(c.UserContext(), c.Params("id"), actor, c.Query("reason")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Bulk POST /tickets/bulk.
func (h *StaffTicketsHandler) Bulk(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.BulkRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	result, err := h.bulk.BulkExecute(c.UserContext(), service.BulkAction(req.Action), req.TicketIDs, service.BulkParams{
		TechnicianID: req.TechnicianID,
		Status:       domain.TicketStatus(req.Status),
		Priority:     domain.TicketPriority(req.Priority),
		Notes:        req.Notes,
	}, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

func (h *StaffTicketsHandler) view(ticket *domain.Ticket) dto.TicketResponse {
	return dto.NewTicketResponse(ticket, h.sla != nil && h.sla.IsBreached(ticket))
}
