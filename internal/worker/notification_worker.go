package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/itasset/ticket-workflow/internal/events"
	"github.com/itasset/ticket-workflow/internal/observability"
	"github.com/itasset/ticket-workflow/internal/service"
)

// StartNotificationWorker registers notification handlers on the async
// dispatcher whose workers deliver them.
func StartNotificationWorker(dispatcher *events.AsyncDispatcher, notificationService *service.NotificationService, metrics *observability.Metrics) {
	if dispatcher == nil || notificationService == nil {
		return
	}
	dispatcher.OnError(func(events.Event, error) {
		metrics.RecordSideEffectFailure("notification_handler")
	})
	notificationService.RegisterHandlers()
}

// StopNotificationWorker stops accepting events and waits for queued
// notifications until ctx expires.
func StopNotificationWorker(ctx context.Context, dispatcher *events.AsyncDispatcher, logger *zap.Logger) {
	if dispatcher == nil {
		return
	}
	if err := dispatcher.Close(ctx); err != nil {
		logger.Warn("notification queue not drained", zap.Error(err))
		return
	}
	logger.Info("notification queue drained")
}
