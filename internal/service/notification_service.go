package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/itasset/ticket-workflow/internal/domain"
	"github.com/itasset/ticket-workflow/internal/events"
	"github.com/itasset/ticket-workflow/internal/observability"
	"github.com/itasset/ticket-workflow/internal/repository"
)

const recipientPageSize = 200

// NotificationService turns workflow events into notifications. Delivery
// failures are logged and counted; they never affect ticket state.
type NotificationService struct {
	dispatcher events.Dispatcher
	notifier   Notifier
	staff      repository.StaffRepository
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, notifier Notifier, staff repository.StaffRepository, logger *zap.Logger, metrics *observability.Metrics) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		notifier:   notifier,
		staff:      staff,
		logger:     logger,
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventCloseRequested, n.handleCloseRequested)
	n.dispatcher.Subscribe(events.EventCloseRequestReviewed, n.handleCloseRequestReviewed)
	n.dispatcher.Subscribe(events.EventTicketReopened, n.handleTicketReopened)
	n.dispatcher.Subscribe(events.EventServiceReportReset, n.handleServiceReportReset)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
}

func (n *NotificationService) handleCloseRequested(ctx context.Context, event events.Event) error {
	coordinators, err := n.staffWithRole(ctx, domain.StaffRoleCoordinator)
	if err != nil {
		return err
	}
	return n.fanOut(ctx, event, coordinators)
}

func (n *NotificationService) handleCloseRequestReviewed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CloseRequestReviewedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	return n.fanOut(ctx, event, []string{payload.EngineerID})
}

func (n *NotificationService) handleTicketReopened(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketReopenedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	var recipients []string
	if payload.NotifyAssignee && payload.AssignedEngineerID != nil {
		recipients = append(recipients, *payload.AssignedEngineerID)
	}
	if payload.NotifyManager {
		managers, err := n.staffWithRole(ctx, domain.StaffRoleManager)
		if err != nil {
			return err
		}
		recipients = append(recipients, managers...)
	}
	return n.fanOut(ctx, event, recipients)
}

func (n *NotificationService) handleServiceReportReset(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ServiceReportResetPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	if payload.AssignedEngineerID == nil {
		return nil
	}
	return n.fanOut(ctx, event, []string{*payload.AssignedEngineerID})
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	if payload.NewStatus != domain.TicketStatusAssigned || payload.AssignedEngineerID == nil {
		n.logger.Debug("status change", zap.String("ticket_id", event.TicketID), zap.String("status", string(payload.NewStatus)))
		return nil
	}
	return n.fanOut(ctx, event, []string{*payload.AssignedEngineerID})
}

func (n *NotificationService) staffWithRole(ctx context.Context, role domain.StaffRole) ([]string, error) {
	active := true
	members, err := n.staff.List(ctx, repository.StaffFilter{Role: &role, Active: &active, Limit: recipientPageSize})
	if err != nil {
		return nil, fmt.Errorf("list %s recipients: %w", role, err)
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (n *NotificationService) fanOut(ctx context.Context, event events.Event, recipients []string) error {
	var errs []error
	seen := make(map[string]struct{}, len(recipients))
	for _, userID := range recipients {
		if _, dup := seen[userID]; dup || userID == "" {
			continue
		}
		seen[userID] = struct{}{}
		if err := n.notifier.Notify(ctx, userID, string(event.Type), notificationPayload(event)); err != nil {
			n.metrics.RecordSideEffectFailure("notify")
			errs = append(errs, fmt.Errorf("notify %s: %w", userID, err))
		}
	}
	return errors.Join(errs...)
}

func notificationPayload(event events.Event) map[string]any {
	return map[string]any{
		"event_id":  event.ID,
		"ticket_id": event.TicketID,
		"actor_id":  event.ActorID,
		"timestamp": event.Timestamp,
		"data":      event.Payload,
	}
}
