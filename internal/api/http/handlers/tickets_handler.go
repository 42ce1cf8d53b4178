package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-engine/internal/api/dto"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/service"
	"github.com/spec-kit/helpdesk-engine/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util"
)

// TicketsHandler serves the ticket endpoints any authenticated actor may call.
// End users only see and act on their own tickets.
type TicketsHandler struct {
	service *service.TicketService
	sla     *sla.Engine
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, engine *sla.Engine) *TicketsHandler {
	return &TicketsHandler{service: ticketService, sla: engine}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	requesterID := actor.ID
	if req.RequesterID != "" && isStaff(actor) {
		requesterID = req.RequesterID
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), service.CreateTicketInput{
		RequesterID: requesterID,
		Title:       req.Title,
		Priority:    req.Priority,
	}, actor)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": h.view(ticket)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, _, err := h.visibleTicket(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.view(ticket)})
}

// GetSLA GET /tickets/:id/sla.
func (h *TicketsHandler) GetSLA(c *fiber.Ctx) error {
	ticket, _, err := h.visibleTicket(c)
	if err != nil {
		return err
	}
	status, err := h.service.SLAStatus(c.UserContext(), ticket.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": status})
}

// ListHistory GET /tickets/:id/history.
func (h *TicketsHandler) ListHistory(c *fiber.Ctx) error {
	ticket, _, err := h.visibleTicket(c)
	if err != nil {
		return err
	}
	entries, err := h.service.ListHistory(c.UserContext(), ticket.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryResponse(entries)})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	ticket, actor, err := h.visibleTicket(c)
	if err != nil {
		return err
	}
	var req dto.CommentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	updated, err := h.service.AddComment(c.UserContext(), ticket.ID, req.Body, actor)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": h.view(updated)})
}

// Transition POST /tickets/:id/transition. End users may only cancel or
// reopen their own tickets and close resolved ones.
func (h *TicketsHandler) Transition(c *fiber.Ctx) error {
	ticket, actor, err := h.visibleTicket(c)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if !isStaff(actor) && !endUserMayTransition(req.Status) {
		return apperrors.NewForbidden("end users cannot set this status")
	}
	updated, err := h.service.TransitionTo(c.UserContext(), ticket.ID, req.Status, actor, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.view(updated)})
}

func endUserMayTransition(status domain.TicketStatus) bool {
	switch status {
	case domain.TicketStatusCancelled, domain.TicketStatusClosed, domain.TicketStatusInProgress:
		return true
	}
	return false
}

func (h *TicketsHandler) visibleTicket(c *fiber.Ctx) (*domain.Ticket, domain.Actor, error) {
	actor, err := requireActor(c)
	if err != nil {
		return nil, actor, err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, actor, err
	}
	if !isStaff(actor) && ticket.RequesterID != actor.ID {
		// hide existence from other requesters
		return nil, actor, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticket.ID})
	}
	return ticket, actor, nil
}

func (h *TicketsHandler) view(ticket *domain.Ticket) dto.TicketResponse {
	return dto.NewTicketResponse(ticket, h.sla != nil && h.sla.IsBreached(ticket))
}
