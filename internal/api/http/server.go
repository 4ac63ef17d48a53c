package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/itasset/ticket-workflow/internal/observability"
)

const bodyLimit = 1 << 20

// NewApp builds the fiber app with global middlewares and all routes.
func NewApp(appName string, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration, routes RouteConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               appName,
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
	})
	RegisterMiddlewares(app, logger, metrics, timeout)
	routes.Metrics = metrics
	RegisterRoutes(app, routes)
	return app
}
