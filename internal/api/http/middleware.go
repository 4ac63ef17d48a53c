package http

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/itasset/ticket-workflow/internal/observability"
	apperrors "github.com/itasset/ticket-workflow/pkg/util/errorutil"
)

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	app.Use(requestid.New(requestid.Config{ContextKey: observability.RequestIDKey}))
	app.Use(observability.RequestLogger(logger, metrics))
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(errorHandlingMiddleware(logger, metrics))
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				domainErr := toDomainError(err)
				metrics.RecordError(c.Route().Path, c.Method(), string(domainErr.Kind))
				details := domainErr.Details
				if details == nil {
					details = map[string]any{}
				}
				if domainErr.HTTPStatus >= http.StatusInternalServerError {
					logger.Error("request failed", zap.String("path", c.Path()), zap.Error(domainErr))
				}
				c.Status(domainErr.HTTPStatus)
				_ = c.JSON(fiber.Map{"error": fiber.Map{
					"kind":    domainErr.Kind,
					"code":    domainErr.Code,
					"message": domainErr.Message,
					"details": details,
				}})
				err = nil
			}
		}()
		return c.Next()
	}
}

// toDomainError also classifies errors raised by fiber itself, such as
// unmatched routes and oversized bodies.
func toDomainError(err error) *apperrors.DomainError {
	var fiberErr *fiber.Error
	if !errors.As(err, &fiberErr) {
		return apperrors.ToDomainError(err)
	}
	switch {
	case fiberErr.Code == http.StatusNotFound:
		return apperrors.NewDomainError(apperrors.KindNotFound, "NOT_FOUND", fiberErr.Message, fiberErr.Code, nil)
	case fiberErr.Code == http.StatusUnauthorized:
		return apperrors.NewDomainError(apperrors.KindUnauthorized, "UNAUTHORIZED", fiberErr.Message, fiberErr.Code, nil)
	case fiberErr.Code == http.StatusForbidden:
		return apperrors.NewDomainError(apperrors.KindForbidden, "FORBIDDEN", fiberErr.Message, fiberErr.Code, nil)
	case fiberErr.Code == http.StatusConflict:
		return apperrors.NewDomainError(apperrors.KindConflict, "CONFLICT", fiberErr.Message, fiberErr.Code, nil)
	case fiberErr.Code >= 400 && fiberErr.Code < 500:
		return apperrors.NewDomainError(apperrors.KindValidation, "BAD_REQUEST", fiberErr.Message, fiberErr.Code, nil)
	}
	return apperrors.NewDomainError(apperrors.KindInternal, "INTERNAL_ERROR", fiberErr.Message, fiberErr.Code, nil)
}
