package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/itasset/ticket-workflow/internal/api/dto"
	"github.com/itasset/ticket-workflow/internal/domain"
	"github.com/itasset/ticket-workflow/internal/service"
	apperrors "github.com/itasset/ticket-workflow/pkg/util/errorutil"
)

// TicketsHandler manages ticket registration and pre-closure transitions.
type TicketsHandler struct {
	tickets *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{tickets: ticketService}
}

// CreateTicket POST /api/v1/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.Create(c.UserContext(), staff.ID, service.TicketCreateInput{
		Title:                  req.Title,
		ServiceType:            req.ServiceType,
		RequesterID:            req.RequesterID,
		MaxReopenCountOverride: req.MaxReopenCountOverride,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListTickets GET /api/v1/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	limit, offset := pageParams(c)
	filter := service.TicketListFilter{Limit: limit, Offset: offset}
	if assignee := c.Query("assigned_engineer_id"); assignee != "" {
		filter.AssignedEngineerID = &assignee
	}
	if statuses := c.Query("status"); statuses != "" {
		for _, part := range strings.Split(statuses, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if types := c.Query("service_type"); types != "" {
		for _, part := range strings.Split(types, ",") {
			filter.ServiceTypes = append(filter.ServiceTypes, domain.ServiceType(strings.TrimSpace(part)))
		}
	}
	tickets, err := h.tickets.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /api/v1/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	details, err := h.tickets.GetDetails(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(details)})
}

// AssignTicket POST /api/v1/tickets/:id/assign.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.EngineerID) == "" {
		return apperrors.NewValidationError("engineer_id required", map[string]any{"engineer_id": "required"})
	}
	ticket, err := h.tickets.Assign(c.UserContext(), staff.ID, c.Params("id"), req.EngineerID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// StartTicket POST /api/v1/tickets/:id/start.
func (h *TicketsHandler) StartTicket(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.Start(c.UserContext(), staff.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// CancelTicket POST /api/v1/tickets/:id/cancel.
func (h *TicketsHandler) CancelTicket(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.Cancel(c.UserContext(), staff.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}
