package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/itasset/ticket-workflow/internal/api/dto"
	"github.com/itasset/ticket-workflow/internal/service"
	apperrors "github.com/itasset/ticket-workflow/pkg/util/errorutil"
)

// AuthHandler exposes staff login.
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login handles POST /auth/staff/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.StaffLoginRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", map[string]any{"email": "required", "password": "required"})
	}

	staff, token, signed, err := h.authService.LoginStaff(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"staff": staffResponse(staff),
			"auth":  dto.AuthResponse{Token: signed, ExpiresAt: token.ExpiresAt},
		},
	})
}
