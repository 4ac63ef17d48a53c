package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/itasset/ticket-workflow/internal/api/dto"
	"github.com/itasset/ticket-workflow/internal/domain"
	"github.com/itasset/ticket-workflow/internal/service"
)

// ReopenConfigHandler reads and updates the reopen policy.
type ReopenConfigHandler struct {
	configs *service.ReopenConfigService
}

// NewReopenConfigHandler constructs handler.
func NewReopenConfigHandler(configs *service.ReopenConfigService) *ReopenConfigHandler {
	return &ReopenConfigHandler{configs: configs}
}

// Get GET /api/v1/reopen-config.
func (h *ReopenConfigHandler) Get(c *fiber.Ctx) error {
	cfg, err := h.configs.Get(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": reopenConfigResponse(cfg)})
}

// Update PUT /api/v1/reopen-config.
func (h *ReopenConfigHandler) Update(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ReopenConfigUpdateRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	cfg, err := h.configs.Update(c.UserContext(), staff.ID, domain.ReopenConfigPatch{
		ReopenWindowDays:    req.ReopenWindowDays,
		MaxReopenCount:      req.MaxReopenCount,
		SLAResetMode:        req.SLAResetMode,
		RequireReopenReason: req.RequireReopenReason,
		NotifyAssignee:      req.NotifyAssignee,
		NotifyManager:       req.NotifyManager,
	}, req.ExpectedVersion)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": reopenConfigResponse(cfg)})
}
