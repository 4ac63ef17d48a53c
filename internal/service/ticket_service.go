package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/itasset/ticket-workflow/internal/clock"
	"github.com/itasset/ticket-workflow/internal/domain"
	"github.com/itasset/ticket-workflow/internal/events"
	"github.com/itasset/ticket-workflow/internal/observability"
	"github.com/itasset/ticket-workflow/internal/repository"
	apperrors "github.com/itasset/ticket-workflow/pkg/util/errorutil"
)

const maxTitleLen = 200

// TicketService registers tickets and moves them up to in_progress.
type TicketService struct {
	store   repository.Store
	events  publisher
	clock   clock.Clock
	metrics *observability.Metrics
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Clock      clock.Clock
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		store:   deps.Store,
		events:  publisher{dispatcher: deps.Dispatcher, clock: clk, logger: logger, metrics: deps.Metrics},
		clock:   clk,
		metrics: deps.Metrics,
	}
}

// TicketCreateInput describes ticket registration.
type TicketCreateInput struct {
	Title                  string
	ServiceType            domain.ServiceType
	RequesterID            *string
	MaxReopenCountOverride *int
}

// TicketListFilter describes staff listing filters.
type TicketListFilter struct {
	AssignedEngineerID *string
	Statuses           []domain.TicketStatus
	ServiceTypes       []domain.ServiceType
	Limit              int
	Offset             int
}

// TicketDetails is a ticket with its ledgers.
type TicketDetails struct {
	Ticket        *domain.Ticket
	CloseRequests []domain.CloseRequest
	ReopenEvents  []domain.ReopenEvent
	RepairRecords []domain.RepairRecord
}

// Create registers an open ticket.
func (s *TicketService) Create(ctx context.Context, actorID string, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	problems := map[string]any{}
	if title == "" {
		problems["title"] = "required"
	} else if utf8.RuneCountInString(title) > maxTitleLen {
		problems["title"] = fmt.Sprintf("must be at most %d characters", maxTitleLen)
	}
	serviceType := input.ServiceType
	if serviceType == "" {
		serviceType = domain.ServiceTypeGeneral
	}
	if !serviceType.Valid() {
		problems["service_type"] = "must be one of general, repair, replace"
	}
	if o := input.MaxReopenCountOverride; o != nil && (*o < domain.MinReopenCount || *o > domain.MaxReopenCount) {
		problems["max_reopen_count_override"] = fmt.Sprintf("must be between %d and %d", domain.MinReopenCount, domain.MaxReopenCount)
	}
	if len(problems) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", problems)
	}

	now := s.clock.Now()
	ticket := &domain.Ticket{
		ExternalKey:            generateTicketKey(),
		Title:                  title,
		RequesterID:            trimmedOrNil(input.RequesterID),
		Status:                 domain.TicketStatusOpen,
		ServiceType:            serviceType,
		MaxReopenCountOverride: input.MaxReopenCountOverride,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.store.Tickets().Create(ctx, ticket); err != nil {
		return nil, mapStoreError(err, "ticket", map[string]any{"external_key": ticket.ExternalKey})
	}
	history := &domain.TicketHistory{
		TicketID:   ticket.ID,
		ChangeType: domain.ChangeTypeStatus,
		NewValue:   map[string]any{"status": ticket.Status},
		CreatedAt:  now,
	}
	if actorID != "" {
		history.ChangedByID = &actorID
	}
	if err := s.store.History().Create(ctx, history); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.metrics.RecordTransition("create_ticket", "ok")
	return ticket, nil
}

// Get returns a ticket.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapStoreError(err, "ticket", ticketDetails(ticketID))
	}
	return ticket, nil
}

// GetDetails returns a ticket with its close requests, reopen events and
// repair records.
func (s *TicketService) GetDetails(ctx context.Context, ticketID string) (*TicketDetails, error) {
	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	details := &TicketDetails{Ticket: ticket}
	if details.CloseRequests, err = s.store.CloseRequests().ListByTicket(ctx, ticketID); err != nil {
		return nil, apperrors.MapError(err)
	}
	if details.ReopenEvents, err = s.store.ReopenEvents().ListByTicket(ctx, ticketID); err != nil {
		return nil, apperrors.MapError(err)
	}
	if details.RepairRecords, err = s.store.RepairRecords().ListByTicket(ctx, ticketID); err != nil {
		return nil, apperrors.MapError(err)
	}
	return details, nil
}

// List returns tickets matching filter, most recently updated first.
func (s *TicketService) List(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	tickets, err := s.store.Tickets().ListWithFilter(ctx, repository.TicketFilter{
		AssignedEngineerID: filter.AssignedEngineerID,
		Statuses:           filter.Statuses,
		ServiceTypes:       filter.ServiceTypes,
		Limit:              filter.Limit,
		Offset:             filter.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// Assign sets the engineer and moves the ticket to assigned. Reassigning an
// in-progress ticket hands it back to assigned.
func (s *TicketService) Assign(ctx context.Context, actorID, ticketID, engineerID string) (*domain.Ticket, error) {
	engineer, err := s.store.Staff().GetByID(ctx, engineerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewValidationError("engineer not found", map[string]any{"engineer_id": engineerID})
		}
		return nil, apperrors.MapError(err)
	}
	if !engineer.Active || engineer.Role != domain.StaffRoleEngineer {
		return nil, apperrors.NewValidationError("assignee must be an active engineer", map[string]any{"engineer_id": engineerID})
	}

	return s.transition(ctx, "assign_ticket", ticketID, actorID, func(t *domain.Ticket) (domain.TicketStatusChange, error) {
		if !domain.CanTransition(t.Status, domain.TicketStatusAssigned) {
			return domain.TicketStatusChange{}, invalidTransition(t, domain.TicketStatusAssigned)
		}
		return domain.TicketStatusChange{Status: domain.TicketStatusAssigned, AssignedEngineerID: &engineer.ID}, nil
	})
}

// Start moves an assigned ticket to in_progress. Only the assignee may start.
func (s *TicketService) Start(ctx context.Context, engineerID, ticketID string) (*domain.Ticket, error) {
	return s.transition(ctx, "start_ticket", ticketID, engineerID, func(t *domain.Ticket) (domain.TicketStatusChange, error) {
		if t.Status != domain.TicketStatusAssigned {
			return domain.TicketStatusChange{}, invalidTransition(t, domain.TicketStatusInProgress)
		}
		if t.AssignedEngineerID == nil || *t.AssignedEngineerID != engineerID {
			return domain.TicketStatusChange{}, apperrors.NewForbidden("only the assigned engineer can start the ticket")
		}
		return domain.TicketStatusChange{Status: domain.TicketStatusInProgress}, nil
	})
}

// Cancel moves a ticket that has not reached closure review to cancelled.
func (s *TicketService) Cancel(ctx context.Context, actorID, ticketID string) (*domain.Ticket, error) {
	return s.transition(ctx, "cancel_ticket", ticketID, actorID, func(t *domain.Ticket) (domain.TicketStatusChange, error) {
		if !domain.CanTransition(t.Status, domain.TicketStatusCancelled) {
			return domain.TicketStatusChange{}, invalidTransition(t, domain.TicketStatusCancelled)
		}
		return domain.TicketStatusChange{Status: domain.TicketStatusCancelled}, nil
	})
}

func (s *TicketService) transition(ctx context.Context, operation, ticketID, actorID string, decide func(*domain.Ticket) (domain.TicketStatusChange, error)) (_ *domain.Ticket, err error) {
	defer func() { s.metrics.RecordTransition(operation, outcome(err)) }()

	var updated *domain.Ticket
	var oldStatus domain.TicketStatus
	err = s.store.WithTicketLock(ctx, ticketID, func(ctx context.Context, tx repository.Tx) error {
		t, err := tx.Tickets().GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		change, err := decide(t)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		oldStatus = t.Status
		oldAssignee := stringOrNil(t.AssignedEngineerID)
		change.Apply(t, now)
		if err := tx.Tickets().Update(ctx, t); err != nil {
			return err
		}
		if change.AssignedEngineerID != nil {
			if err := recordHistory(ctx, tx, t.ID, actorID, domain.ChangeTypeAssignee,
				map[string]any{"assigned_engineer_id": oldAssignee},
				map[string]any{"assigned_engineer_id": *change.AssignedEngineerID},
				now); err != nil {
				return err
			}
		}
		updated = t
		return recordHistory(ctx, tx, t.ID, actorID, domain.ChangeTypeStatus,
			map[string]any{"status": oldStatus},
			map[string]any{"status": t.Status},
			now)
	})
	if err != nil {
		return nil, mapStoreError(err, "ticket", ticketDetails(ticketID))
	}

	s.events.publish(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: updated.ID,
		ActorID:  actorID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus:          oldStatus,
			NewStatus:          updated.Status,
			AssignedEngineerID: updated.AssignedEngineerID,
		},
	})
	return updated, nil
}

func invalidTransition(t *domain.Ticket, next domain.TicketStatus) error {
	return apperrors.NewInvalidState(fmt.Sprintf("cannot move ticket from %s to %s", t.Status, next), map[string]any{
		"ticket_id": t.ID,
		"status":    t.Status,
	})
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
