package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/itasset/ticket-workflow/internal/clock"
	"github.com/itasset/ticket-workflow/internal/domain"
	"github.com/itasset/ticket-workflow/internal/events"
	"github.com/itasset/ticket-workflow/internal/observability"
	"github.com/itasset/ticket-workflow/internal/repository"
	apperrors "github.com/itasset/ticket-workflow/pkg/util/errorutil"
)

const (
	maxRequestNotesLen = 2000
	maxReviewNotesLen  = 2000
	minReopenReasonLen = 10
	maxReopenReasonLen = 1000
)

// ReopenConfigProvider returns the reopen policy in force.
type ReopenConfigProvider interface {
	Get(ctx context.Context) (domain.ReopenConfig, error)
}

// WorkflowService drives close requests, reviews and reopens. Every
// transition runs under the ticket lock and re-checks its preconditions
// there; repair records, SLA commands and notifications follow the commit.
type WorkflowService struct {
	store                repository.Store
	configs              ReopenConfigProvider
	repairs              RepairRecordLinker
	sla                  SLAClient
	events               publisher
	clock                clock.Clock
	logger               *zap.Logger
	metrics              *observability.Metrics
	requireServiceReport bool
}

// WorkflowDependencies bundles collaborators for the workflow service.
type WorkflowDependencies struct {
	Store                repository.Store
	Configs              ReopenConfigProvider
	Repairs              RepairRecordLinker
	SLA                  SLAClient
	Dispatcher           events.Dispatcher
	Clock                clock.Clock
	Logger               *zap.Logger
	Metrics              *observability.Metrics
	RequireServiceReport bool
}

// NewWorkflowService constructs the service.
func NewWorkflowService(deps WorkflowDependencies) *WorkflowService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{
		store:   deps.Store,
		configs: deps.Configs,
		repairs: deps.Repairs,
		sla:     deps.SLA,
		events: publisher{
			dispatcher: deps.Dispatcher,
			clock:      clk,
			logger:     logger,
			metrics:    deps.Metrics,
		},
		clock:                clk,
		logger:               logger,
		metrics:              deps.Metrics,
		requireServiceReport: deps.RequireServiceReport,
	}
}

// RequestCloseInput is an engineer's close request.
type RequestCloseInput struct {
	TicketID        string
	EngineerID      string
	RequestNotes    string
	ServiceReportID *string
}

// RepairEntryInput describes repair work on one linked asset.
type RepairEntryInput struct {
	AssetID string
	domain.RepairFields
}

// ReviewInput is a coordinator decision on a close request.
type ReviewInput struct {
	CloseRequestID string
	ReviewerID     string
	Action         domain.ReviewAction
	ReviewNotes    *string
	RepairEntries  []RepairEntryInput
}

// RepairFailure reports a repair record that could not be written.
type RepairFailure struct {
	AssetID string
	Error   string
}

// ReviewResult is returned by ReviewCloseRequest. PartialFailures lists
// assets whose repair record failed; the review itself stands.
type ReviewResult struct {
	CloseRequest    *domain.CloseRequest
	Ticket          *domain.Ticket
	RepairRecords   []domain.RepairRecord
	PartialFailures []RepairFailure
}

// ReopenInput asks to reopen a closed ticket.
type ReopenInput struct {
	TicketID     string
	ActorID      string
	ReopenReason string
}

// ReopenResult is returned by ReopenTicket. Warnings carry side effects that
// failed after the reopen was committed.
type ReopenResult struct {
	Ticket   *domain.Ticket
	Event    *domain.ReopenEvent
	Warnings []string
}

// RequestClose moves an in-progress ticket to pending_closure and records a
// pending close request.
func (s *WorkflowService) RequestClose(ctx context.Context, input RequestCloseInput) (_ *domain.CloseRequest, err error) {
	defer func() { s.metrics.RecordTransition("request_close", outcome(err)) }()

	notes := strings.TrimSpace(input.RequestNotes)
	switch {
	case strings.TrimSpace(input.EngineerID) == "":
		return nil, apperrors.NewValidationError("engineer is required", map[string]any{"engineer_id": "required"})
	case notes == "":
		return nil, apperrors.NewValidationError("request notes are required", map[string]any{"request_notes": "required"})
	case utf8.RuneCountInString(notes) > maxRequestNotesLen:
		return nil, apperrors.NewValidationError("request notes are too long", map[string]any{
			"request_notes": fmt.Sprintf("must be at most %d characters", maxRequestNotesLen),
		})
	}
	reportID := trimmedOrNil(input.ServiceReportID)

	var req *domain.CloseRequest
	err = s.store.WithTicketLock(ctx, input.TicketID, func(ctx context.Context, tx repository.Tx) error {
		ticket, err := tx.Tickets().GetByID(ctx, input.TicketID)
		if err != nil {
			return err
		}
		if ticket.Status != domain.TicketStatusInProgress {
			return apperrors.NewInvalidState("ticket must be in_progress to request closure", map[string]any{
				"ticket_id": ticket.ID,
				"status":    ticket.Status,
			})
		}
		if s.requireServiceReport && ticket.ServiceType.RequiresServiceReport() && reportID == nil {
			return apperrors.NewValidationError("service report is required for repair and replace tickets", map[string]any{
				"service_report_id": "required",
				"service_type":      ticket.ServiceType,
			})
		}

		now := s.clock.Now()
		req = &domain.CloseRequest{
			TicketID:        ticket.ID,
			EngineerID:      input.EngineerID,
			RequestNotes:    notes,
			ServiceReportID: reportID,
			RequestStatus:   domain.CloseRequestPending,
			CreatedAt:       now,
		}
		if err := tx.CloseRequests().Create(ctx, req); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.NewInvalidState("ticket already has a pending close request", ticketDetails(ticket.ID))
			}
			return err
		}

		oldStatus := ticket.Status
		domain.TicketStatusChange{Status: domain.TicketStatusPendingClosure}.Apply(ticket, now)
		if err := tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}
		return recordHistory(ctx, tx, ticket.ID, input.EngineerID, domain.ChangeTypeCloseRequest,
			map[string]any{"status": oldStatus},
			map[string]any{"status": ticket.Status, "close_request_id": req.ID},
			now)
	})
	if err != nil {
		return nil, mapStoreError(err, "ticket", ticketDetails(input.TicketID))
	}

	s.events.publish(ctx, events.Event{
		Type:     events.EventCloseRequested,
		TicketID: req.TicketID,
		ActorID:  req.EngineerID,
		Payload: events.CloseRequestedPayload{
			CloseRequestID:  req.ID,
			EngineerID:      req.EngineerID,
			RequestNotes:    req.RequestNotes,
			ServiceReportID: req.ServiceReportID,
		},
	})
	return req, nil
}

// ReviewCloseRequest approves or rejects a pending close request. Approval
// closes the ticket and then writes repair records for the supplied assets;
// rejection returns the ticket to in_progress.
func (s *WorkflowService) ReviewCloseRequest(ctx context.Context, input ReviewInput) (_ *ReviewResult, err error) {
	defer func() { s.metrics.RecordTransition("review_close_request", outcome(err)) }()

	notes, err := validateReview(input)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.CloseRequests().GetByID(ctx, input.CloseRequestID)
	if err != nil {
		return nil, mapStoreError(err, "close request", map[string]any{"close_request_id": input.CloseRequestID})
	}

	var reviewed *domain.CloseRequest
	var ticket *domain.Ticket
	err = s.store.WithTicketLock(ctx, existing.TicketID, func(ctx context.Context, tx repository.Tx) error {
		req, err := tx.CloseRequests().GetByID(ctx, input.CloseRequestID)
		if err != nil {
			return err
		}
		if req.RequestStatus != domain.CloseRequestPending {
			return apperrors.NewInvalidState("close request is not pending", map[string]any{
				"close_request_id": req.ID,
				"request_status":   req.RequestStatus,
			})
		}
		t, err := tx.Tickets().GetByID(ctx, req.TicketID)
		if err != nil {
			return err
		}
		if t.Status != domain.TicketStatusPendingClosure {
			return apperrors.NewInvalidState("ticket is not pending closure", map[string]any{
				"ticket_id": t.ID,
				"status":    t.Status,
			})
		}

		now := s.clock.Now()
		reviewed, err = tx.CloseRequests().Review(ctx, req.ID, domain.CloseRequestReview{
			Status:      domain.CloseRequestStatus(input.Action),
			ReviewerID:  input.ReviewerID,
			ReviewNotes: notes,
			ReviewedAt:  now,
		})
		if err != nil {
			if errors.Is(err, repository.ErrAlreadyFinalized) {
				return apperrors.NewAlreadyFinalized("close request", map[string]any{"close_request_id": req.ID})
			}
			return err
		}

		oldStatus := t.Status
		change := domain.TicketStatusChange{Status: domain.TicketStatusInProgress}
		if input.Action == domain.ReviewApproved {
			change = domain.TicketStatusChange{Status: domain.TicketStatusClosed, ClosedAt: &now}
		}
		change.Apply(t, now)
		if err := tx.Tickets().Update(ctx, t); err != nil {
			return err
		}
		ticket = t
		return recordHistory(ctx, tx, t.ID, input.ReviewerID, domain.ChangeTypeCloseReviewed,
			map[string]any{"status": oldStatus},
			map[string]any{"status": t.Status, "close_request_id": req.ID, "action": input.Action},
			now)
	})
	if err != nil {
		return nil, mapStoreError(err, "ticket", ticketDetails(existing.TicketID))
	}

	result := &ReviewResult{
		CloseRequest:    reviewed,
		Ticket:          ticket,
		RepairRecords:   []domain.RepairRecord{},
		PartialFailures: []RepairFailure{},
	}
	if input.Action == domain.ReviewApproved && len(input.RepairEntries) > 0 {
		result.RepairRecords, result.PartialFailures = s.linkRepairs(ctx, reviewed, input.ReviewerID, input.RepairEntries)
	}

	s.events.publish(ctx, events.Event{
		Type:     events.EventCloseRequestReviewed,
		TicketID: reviewed.TicketID,
		ActorID:  input.ReviewerID,
		Payload: events.CloseRequestReviewedPayload{
			CloseRequestID: reviewed.ID,
			EngineerID:     reviewed.EngineerID,
			Status:         reviewed.RequestStatus,
			ReviewNotes:    reviewed.ReviewNotes,
		},
	})
	return result, nil
}

func validateReview(input ReviewInput) (*string, error) {
	if !input.Action.Valid() {
		return nil, apperrors.NewValidationError("invalid review action", map[string]any{"action": "must be approved or rejected"})
	}
	if strings.TrimSpace(input.ReviewerID) == "" {
		return nil, apperrors.NewValidationError("reviewer is required", map[string]any{"reviewer_id": "required"})
	}
	notes := trimmedOrNil(input.ReviewNotes)
	if input.Action == domain.ReviewRejected && notes == nil {
		return nil, apperrors.NewValidationError("review notes are required when rejecting", map[string]any{"review_notes": "required"})
	}
	if notes != nil && utf8.RuneCountInString(*notes) > maxReviewNotesLen {
		return nil, apperrors.NewValidationError("review notes are too long", map[string]any{
			"review_notes": fmt.Sprintf("must be at most %d characters", maxReviewNotesLen),
		})
	}
	if input.Action == domain.ReviewRejected && len(input.RepairEntries) > 0 {
		return nil, apperrors.NewValidationError("repair entries are only accepted on approval", map[string]any{"repair_entries": "not allowed when rejecting"})
	}

	problems := map[string]any{}
	for i, entry := range input.RepairEntries {
		prefix := fmt.Sprintf("repair_entries[%d].", i)
		if strings.TrimSpace(entry.AssetID) == "" {
			problems[prefix+"asset_id"] = "required"
		}
		if strings.TrimSpace(entry.FaultDescription) == "" {
			problems[prefix+"fault_description"] = "required"
		}
		if entry.LaborCostCents < 0 {
			problems[prefix+"labor_cost_cents"] = "must not be negative"
		}
		if entry.PartsCostCents < 0 {
			problems[prefix+"parts_cost_cents"] = "must not be negative"
		}
	}
	if len(problems) > 0 {
		return nil, apperrors.NewValidationError("invalid repair entries", problems)
	}
	return notes, nil
}

type linkResult struct {
	record *domain.RepairRecord
	err    error
}

// linkRepairs writes one repair record per entry concurrently and collects
// per-asset failures. It never fails the approval.
func (s *WorkflowService) linkRepairs(ctx context.Context, req *domain.CloseRequest, reviewerID string, entries []RepairEntryInput) ([]domain.RepairRecord, []RepairFailure) {
	results := make([]linkResult, len(entries))
	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry RepairEntryInput) {
			defer wg.Done()
			record, err := s.repairs.CreateForApproval(ctx, RepairLink{
				TicketID:       req.TicketID,
				AssetID:        entry.AssetID,
				CloseRequestID: req.ID,
				CreatedBy:      reviewerID,
			}, entry.RepairFields)
			results[i] = linkResult{record: record, err: err}
		}(i, entry)
	}
	wg.Wait()

	records := make([]domain.RepairRecord, 0, len(entries))
	failures := []RepairFailure{}
	for i, res := range results {
		if res.err != nil {
			s.logger.Warn("repair record not created",
				zap.String("ticket_id", req.TicketID),
				zap.String("asset_id", entries[i].AssetID),
				zap.Error(res.err))
			failures = append(failures, RepairFailure{AssetID: entries[i].AssetID, Error: res.err.Error()})
			continue
		}
		records = append(records, *res.record)
	}
	return records, failures
}

// CanReopen evaluates reopen eligibility without mutating anything.
func (s *WorkflowService) CanReopen(ctx context.Context, ticketID string) (domain.ReopenEligibility, error) {
	ticket, err := s.store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return domain.ReopenEligibility{}, mapStoreError(err, "ticket", ticketDetails(ticketID))
	}
	cfg, err := s.configs.Get(ctx)
	if err != nil {
		return domain.ReopenEligibility{}, err
	}
	return domain.EvaluateReopen(ticket, cfg, s.clock.Now()), nil
}

// ReopenTicket returns a closed ticket to in_progress and appends a reopen
// event. Eligibility is evaluated again under the ticket lock.
func (s *WorkflowService) ReopenTicket(ctx context.Context, input ReopenInput) (_ *ReopenResult, err error) {
	defer func() { s.metrics.RecordTransition("reopen_ticket", outcome(err)) }()

	reason := strings.TrimSpace(input.ReopenReason)
	if strings.TrimSpace(input.ActorID) == "" {
		return nil, apperrors.NewValidationError("actor is required", map[string]any{"actor_id": "required"})
	}
	if utf8.RuneCountInString(reason) > maxReopenReasonLen {
		return nil, apperrors.NewValidationError("reopen reason is too long", map[string]any{
			"reopen_reason": fmt.Sprintf("must be at most %d characters", maxReopenReasonLen),
		})
	}

	cfg, err := s.configs.Get(ctx)
	if err != nil {
		return nil, err
	}

	var (
		ticket       *domain.Ticket
		event        *domain.ReopenEvent
		lastApproved *domain.CloseRequest
	)
	err = s.store.WithTicketLock(ctx, input.TicketID, func(ctx context.Context, tx repository.Tx) error {
		t, err := tx.Tickets().GetByID(ctx, input.TicketID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		eligibility := domain.EvaluateReopen(t, cfg, now)
		if !eligibility.CanReopen {
			return apperrors.NewIneligible(eligibility.Reason, map[string]any{
				"ticket_id":         t.ID,
				"remaining_reopens": eligibility.RemainingReopens,
				"days_remaining":    eligibility.DaysRemaining,
			})
		}
		if cfg.RequireReopenReason && utf8.RuneCountInString(reason) < minReopenReasonLen {
			return apperrors.NewValidationError("reopen reason is too short", map[string]any{
				"reopen_reason": fmt.Sprintf("must be at least %d characters", minReopenReasonLen),
			})
		}

		event = &domain.ReopenEvent{
			TicketID:     t.ID,
			ReopenNumber: t.ReopenCount + 1,
			ReopenedBy:   input.ActorID,
			ReopenReason: reason,
			SLAResetMode: cfg.SLAResetMode,
			ReopenedAt:   now,
		}
		if err := tx.ReopenEvents().Create(ctx, event); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.NewConflict("reopen already recorded", map[string]any{
					"ticket_id":     t.ID,
					"reopen_number": event.ReopenNumber,
				})
			}
			return err
		}

		if t.ServiceType == domain.ServiceTypeRepair {
			requests, err := tx.CloseRequests().ListByTicket(ctx, t.ID)
			if err != nil {
				return err
			}
			for i := len(requests) - 1; i >= 0; i-- {
				if requests[i].RequestStatus == domain.CloseRequestApproved {
					lastApproved = requests[i].Clone()
					break
				}
			}
		}

		oldCount := t.ReopenCount
		newCount := oldCount + 1
		domain.TicketStatusChange{
			Status:        domain.TicketStatusInProgress,
			ClearClosedAt: true,
			ReopenCount:   &newCount,
		}.Apply(t, now)
		if err := tx.Tickets().Update(ctx, t); err != nil {
			return err
		}
		ticket = t
		return recordHistory(ctx, tx, t.ID, input.ActorID, domain.ChangeTypeReopen,
			map[string]any{"status": domain.TicketStatusClosed, "reopen_count": oldCount},
			map[string]any{
				"status":        t.Status,
				"reopen_count":  newCount,
				"reopen_number": event.ReopenNumber,
				"reopen_reason": reason,
			},
			now)
	})
	if err != nil {
		return nil, mapStoreError(err, "ticket", ticketDetails(input.TicketID))
	}

	result := &ReopenResult{Ticket: ticket, Event: event, Warnings: []string{}}
	if s.sla != nil {
		if err := s.sla.ApplyResetMode(ctx, ticket.ID, cfg.SLAResetMode); err != nil {
			s.logger.Warn("sla reset mode not applied",
				zap.String("ticket_id", ticket.ID),
				zap.String("mode", string(cfg.SLAResetMode)),
				zap.Error(err))
			s.metrics.RecordSideEffectFailure("sla")
			result.Warnings = append(result.Warnings, "sla: "+err.Error())
		}
	}

	s.events.publish(ctx, events.Event{
		Type:     events.EventTicketReopened,
		TicketID: ticket.ID,
		ActorID:  input.ActorID,
		Payload: events.TicketReopenedPayload{
			ReopenEventID:      event.ID,
			ReopenNumber:       event.ReopenNumber,
			ReopenReason:       event.ReopenReason,
			SLAResetMode:       event.SLAResetMode,
			AssignedEngineerID: ticket.AssignedEngineerID,
			NotifyAssignee:     cfg.NotifyAssignee,
			NotifyManager:      cfg.NotifyManager,
		},
	})
	if ticket.ServiceType == domain.ServiceTypeRepair {
		payload := events.ServiceReportResetPayload{AssignedEngineerID: ticket.AssignedEngineerID}
		if lastApproved != nil {
			payload.CloseRequestID = lastApproved.ID
			payload.ServiceReportID = lastApproved.ServiceReportID
		}
		s.events.publish(ctx, events.Event{
			Type:     events.EventServiceReportReset,
			TicketID: ticket.ID,
			ActorID:  input.ActorID,
			Payload:  payload,
		})
	}
	return result, nil
}

// ListCloseRequests returns a ticket's close requests, oldest first.
func (s *WorkflowService) ListCloseRequests(ctx context.Context, ticketID string) ([]domain.CloseRequest, error) {
	if _, err := s.store.Tickets().GetByID(ctx, ticketID); err != nil {
		return nil, mapStoreError(err, "ticket", ticketDetails(ticketID))
	}
	requests, err := s.store.CloseRequests().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return requests, nil
}

// ListPendingCloseRequests returns the coordinator review queue, oldest first.
func (s *WorkflowService) ListPendingCloseRequests(ctx context.Context, limit, offset int) ([]domain.CloseRequest, error) {
	requests, err := s.store.CloseRequests().ListPending(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return requests, nil
}

// ListReopenEvents returns a ticket's reopen ledger in reopen order.
func (s *WorkflowService) ListReopenEvents(ctx context.Context, ticketID string) ([]domain.ReopenEvent, error) {
	if _, err := s.store.Tickets().GetByID(ctx, ticketID); err != nil {
		return nil, mapStoreError(err, "ticket", ticketDetails(ticketID))
	}
	evts, err := s.store.ReopenEvents().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return evts, nil
}

// ListHistory returns the ticket's audit trail.
func (s *WorkflowService) ListHistory(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	if _, err := s.store.Tickets().GetByID(ctx, ticketID); err != nil {
		return nil, mapStoreError(err, "ticket", ticketDetails(ticketID))
	}
	history, err := s.store.History().ListByTicket(ctx, ticketID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return history, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
