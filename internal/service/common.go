package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/itasset/ticket-workflow/internal/clock"
	"github.com/itasset/ticket-workflow/internal/domain"
	"github.com/itasset/ticket-workflow/internal/events"
	"github.com/itasset/ticket-workflow/internal/observability"
	"github.com/itasset/ticket-workflow/internal/repository"
	apperrors "github.com/itasset/ticket-workflow/pkg/util/errorutil"
)

// Notifier delivers a notification to one staff member. Fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, userID, event string, payload any) error
}

// SLAClient hands the reopen SLA reset mode to the SLA service.
type SLAClient interface {
	ApplyResetMode(ctx context.Context, ticketID string, mode domain.SLAResetMode) error
}

// mapStoreError turns repository sentinels into DomainErrors. DomainErrors
// returned from inside a transaction body pass through unchanged.
func mapStoreError(err error, resource string, details map[string]any) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, details)
	case errors.Is(err, repository.ErrAlreadyFinalized):
		return apperrors.NewAlreadyFinalized(resource, details)
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.NewConflict(resource+" was modified concurrently", details)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict(resource+" already exists", details)
	}
	return apperrors.MapError(err)
}

// outcome labels a workflow metric with "ok" or the error kind.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperrors.ToDomainError(err).Kind)
}

type publisher struct {
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
	metrics    *observability.Metrics
}

func (p publisher) publish(ctx context.Context, event events.Event) {
	if p.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.clock.Now()
	}
	if err := p.dispatcher.Publish(ctx, event); err != nil {
		p.logger.Warn("event not dispatched",
			zap.String("event", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
		p.metrics.RecordSideEffectFailure("dispatch")
	}
}

func recordHistory(ctx context.Context, tx repository.Tx, ticketID, actorID string, changeType domain.TicketChangeType, oldValue, newValue map[string]any, at time.Time) error {
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		ChangeType: changeType,
		OldValue:   oldValue,
		NewValue:   newValue,
		CreatedAt:  at,
	}
	if actorID != "" {
		entry.ChangedByID = &actorID
	}
	return tx.History().Create(ctx, entry)
}

func ticketDetails(ticketID string) map[string]any {
	return map[string]any{"ticket_id": ticketID}
}

func stringOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
