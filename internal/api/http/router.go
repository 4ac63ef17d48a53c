package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/itasset/ticket-workflow/internal/api/http/handlers"
	"github.com/itasset/ticket-workflow/internal/auth"
	"github.com/itasset/ticket-workflow/internal/domain"
	"github.com/itasset/ticket-workflow/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Workflow       *handlers.WorkflowHandler
	ReopenConfig   *handlers.ReopenConfigHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/staff/login", cfg.Auth.Login)

	var (
		anyStaff    = auth.RequireStaffRole()
		coordinator = auth.RequireStaffRole(domain.StaffRoleCoordinator, domain.StaffRoleAdmin)
		engineer    = auth.RequireStaffRole(domain.StaffRoleEngineer)
		admin       = auth.RequireStaffRole(domain.StaffRoleAdmin)
	)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)

	tickets := api.Group("/tickets")
	tickets.Post("/", coordinator, cfg.Tickets.CreateTicket)
	tickets.Get("/", anyStaff, cfg.Tickets.ListTickets)
	tickets.Get("/:id", anyStaff, cfg.Tickets.GetTicket)
	tickets.Post("/:id/assign", coordinator, cfg.Tickets.AssignTicket)
	tickets.Post("/:id/start", engineer, cfg.Tickets.StartTicket)
	tickets.Post("/:id/cancel", coordinator, cfg.Tickets.CancelTicket)

	tickets.Post("/:id/close-requests", engineer, cfg.Workflow.RequestClose)
	tickets.Get("/:id/close-requests", anyStaff, cfg.Workflow.ListCloseRequests)
	tickets.Get("/:id/reopen-eligibility", anyStaff, cfg.Workflow.Eligibility)
	tickets.Post("/:id/reopen", coordinator, cfg.Workflow.Reopen)
	tickets.Get("/:id/reopen-events", anyStaff, cfg.Workflow.ListReopenEvents)
	tickets.Get("/:id/history", anyStaff, cfg.Workflow.History)

	closeRequests := api.Group("/close-requests")
	closeRequests.Get("/pending", coordinator, cfg.Workflow.ListPending)
	closeRequests.Post("/:id/review", coordinator, cfg.Workflow.Review)

	api.Get("/reopen-config", anyStaff, cfg.ReopenConfig.Get)
	api.Put("/reopen-config", admin, cfg.ReopenConfig.Update)
}
