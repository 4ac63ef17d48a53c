package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/itasset/ticket-workflow/internal/api/dto"
	"github.com/itasset/ticket-workflow/internal/domain"
	"github.com/itasset/ticket-workflow/internal/service"
)

// WorkflowHandler exposes close requests, reviews and reopens.
type WorkflowHandler struct {
	workflow *service.WorkflowService
}

// NewWorkflowHandler constructs handler.
func NewWorkflowHandler(workflow *service.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{workflow: workflow}
}

// RequestClose POST /api/v1/tickets/:id/close-requests.
func (h *WorkflowHandler) RequestClose(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CloseRequestCreateRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	created, err := h.workflow.RequestClose(c.UserContext(), service.RequestCloseInput{
		TicketID:        c.Params("id"),
		EngineerID:      staff.ID,
		RequestNotes:    req.RequestNotes,
		ServiceReportID: req.ServiceReportID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": closeRequestResponse(created)})
}

// ListCloseRequests GET /api/v1/tickets/:id/close-requests.
func (h *WorkflowHandler) ListCloseRequests(c *fiber.Ctx) error {
	reqs, err := h.workflow.ListCloseRequests(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": closeRequestResponses(reqs)})
}

// ListPending GET /api/v1/close-requests/pending.
func (h *WorkflowHandler) ListPending(c *fiber.Ctx) error {
	limit, offset := pageParams(c)
	reqs, err := h.workflow.ListPendingCloseRequests(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": closeRequestResponses(reqs)})
}

// Review POST /api/v1/close-requests/:id/review.
func (h *WorkflowHandler) Review(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ReviewCloseRequestRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	entries := make([]service.RepairEntryInput, 0, len(req.RepairEntries))
	for _, e := range req.RepairEntries {
		entries = append(entries, service.RepairEntryInput{
			AssetID: e.AssetID,
			RepairFields: domain.RepairFields{
				FaultDescription: e.FaultDescription,
				Resolution:       e.Resolution,
				PartsReplaced:    e.PartsReplaced,
				LaborCostCents:   e.LaborCostCents,
				PartsCostCents:   e.PartsCostCents,
			},
		})
	}
	result, err := h.workflow.ReviewCloseRequest(c.UserContext(), service.ReviewInput{
		CloseRequestID: c.Params("id"),
		ReviewerID:     staff.ID,
		Action:         req.Action,
		ReviewNotes:    req.ReviewNotes,
		RepairEntries:  entries,
	})
	if err != nil {
		return err
	}
	failures := make([]dto.RepairFailureResponse, 0, len(result.PartialFailures))
	for _, f := range result.PartialFailures {
		failures = append(failures, dto.RepairFailureResponse{AssetID: f.AssetID, Error: f.Error})
	}
	return c.JSON(fiber.Map{"data": dto.ReviewResponse{
		CloseRequest:    closeRequestResponse(result.CloseRequest),
		Ticket:          ticketResponse(result.Ticket),
		RepairRecords:   repairRecordResponses(result.RepairRecords),
		PartialFailures: failures,
	}})
}

// Eligibility GET /api/v1/tickets/:id/reopen-eligibility.
func (h *WorkflowHandler) Eligibility(c *fiber.Ctx) error {
	eligibility, err := h.workflow.CanReopen(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": eligibilityResponse(eligibility)})
}

// Reopen POST /api/v1/tickets/:id/reopen.
func (h *WorkflowHandler) Reopen(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ReopenTicketRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	result, err := h.workflow.ReopenTicket(c.UserContext(), service.ReopenInput{
		TicketID:     c.Params("id"),
		ActorID:      staff.ID,
		ReopenReason: req.ReopenReason,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ReopenResponse{
		Ticket:      ticketResponse(result.Ticket),
		ReopenEvent: reopenEventResponse(result.Event),
		Warnings:    result.Warnings,
	}})
}

// ListReopenEvents GET /api/v1/tickets/:id/reopen-events.
func (h *WorkflowHandler) ListReopenEvents(c *fiber.Ctx) error {
	evts, err := h.workflow.ListReopenEvents(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": reopenEventResponses(evts)})
}

// History GET /api/v1/tickets/:id/history.
func (h *WorkflowHandler) History(c *fiber.Ctx) error {
	limit, offset := pageParams(c)
	entries, err := h.workflow.ListHistory(c.UserContext(), c.Params("id"), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}
