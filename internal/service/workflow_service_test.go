package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/itasset/ticket-workflow/internal/domain"
	"github.com/itasset/ticket-workflow/internal/events"
	apperrors "github.com/itasset/ticket-workflow/pkg/util/errorutil"
)

const day = 24 * time.Hour

func TestCloseApproveReopenFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.seedTicket(t, nil)

	req, err := f.workflow.RequestClose(ctx, RequestCloseInput{
		TicketID:     ticket.ID,
		EngineerID:   "eng-1",
		RequestNotes: "  Reimaged the disk  ",
	})
	if err != nil {
		t.Fatalf("request close: %v", err)
	}
	if req.RequestStatus != domain.CloseRequestPending || req.RequestNotes != "Reimaged the disk" {
		t.Fatalf("unexpected close request %+v", req)
	}
	if got := f.ticket(t, ticket.ID).Status; got != domain.TicketStatusPendingClosure {
		t.Fatalf("expected pending_closure, got %s", got)
	}

	f.clock.Advance(time.Hour)
	res, err := f.workflow.ReviewCloseRequest(ctx, ReviewInput{
		CloseRequestID: req.ID,
		ReviewerID:     "coord-1",
		Action:         domain.ReviewApproved,
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	closedAt := f.clock.Now()
	if res.Ticket.Status != domain.TicketStatusClosed || res.Ticket.ClosedAt == nil || !res.Ticket.ClosedAt.Equal(closedAt) {
		t.Fatalf("ticket not closed at review time: %+v", res.Ticket)
	}
	if res.CloseRequest.RequestStatus != domain.CloseRequestApproved || res.CloseRequest.ReviewerID == nil || *res.CloseRequest.ReviewerID != "coord-1" {
		t.Fatalf("close request not finalized: %+v", res.CloseRequest)
	}
	if len(res.RepairRecords) != 0 || len(res.PartialFailures) != 0 {
		t.Fatalf("expected no repair output, got %+v", res)
	}

	f.clock.Advance(2 * day)
	eligibility, err := f.workflow.CanReopen(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("can reopen: %v", err)
	}
	if !eligibility.CanReopen || eligibility.DaysRemaining != 5 || eligibility.RemainingReopens != 3 {
		t.Fatalf("unexpected eligibility %+v", eligibility)
	}

	reopened, err := f.workflow.ReopenTicket(ctx, ReopenInput{
		TicketID:     ticket.ID,
		ActorID:      "requester-1",
		ReopenReason: "Laptop failed to boot again this morning",
	})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Ticket.Status != domain.TicketStatusInProgress || reopened.Ticket.ReopenCount != 1 || reopened.Ticket.ClosedAt != nil {
		t.Fatalf("unexpected reopened ticket %+v", reopened.Ticket)
	}
	if reopened.Event.ReopenNumber != 1 || reopened.Event.SLAResetMode != domain.SLAResetContinue {
		t.Fatalf("unexpected reopen event %+v", reopened.Event)
	}
	if len(reopened.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", reopened.Warnings)
	}
	if len(f.sla.calls) != 1 || f.sla.calls[0].mode != domain.SLAResetContinue {
		t.Fatalf("expected one sla call with continue, got %+v", f.sla.calls)
	}

	ledger, err := f.workflow.ListReopenEvents(ctx, ticket.ID)
	if err != nil || len(ledger) != 1 {
		t.Fatalf("expected one reopen event, got %v %v", ledger, err)
	}
	history, err := f.workflow.ListHistory(ctx, ticket.ID, 0, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(history))
	}

	for _, typ := range []events.EventType{events.EventCloseRequested, events.EventCloseRequestReviewed, events.EventTicketReopened} {
		if got := len(f.recorded.ofType(typ)); got != 1 {
			t.Fatalf("expected one %s event, got %d", typ, got)
		}
	}
	if got := len(f.recorded.ofType(events.EventServiceReportReset)); got != 0 {
		t.Fatalf("general ticket must not reset service report, got %d events", got)
	}
	if got := counterValue(t, f.metrics, "ticket_workflow_transitions_total", map[string]string{"operation": "reopen_ticket", "outcome": "ok"}); got != 1 {
		t.Fatalf("expected reopen metric 1, got %v", got)
	}
}

func TestRequestCloseConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ticket := f.seedTicket(t, nil)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.workflow.RequestClose(context.Background(), RequestCloseInput{
				TicketID:     ticket.ID,
				EngineerID:   "eng-1",
				RequestNotes: "done",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireKind(t, err, apperrors.KindInvalidState)
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one success, got %d", succeeded)
	}
	pending, err := f.workflow.ListPendingCloseRequests(context.Background(), 0, 0)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending request, got %d (%v)", len(pending), err)
	}
}

func TestRequestCloseValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	general := f.seedTicket(t, nil)
	repair := f.seedTicket(t, func(tk *domain.Ticket) { tk.ServiceType = domain.ServiceTypeRepair })
	assigned := f.seedTicket(t, func(tk *domain.Ticket) { tk.Status = domain.TicketStatusAssigned })

	cases := []struct {
		name  string
		input RequestCloseInput
		kind  apperrors.Kind
	}{
		{"blank notes", RequestCloseInput{TicketID: general.ID, EngineerID: "eng-1", RequestNotes: "   "}, apperrors.KindValidation},
		{"notes too long", RequestCloseInput{TicketID: general.ID, EngineerID: "eng-1", RequestNotes: strings.Repeat("x", 2001)}, apperrors.KindValidation},
		{"missing engineer", RequestCloseInput{TicketID: general.ID, RequestNotes: "done"}, apperrors.KindValidation},
		{"not in progress", RequestCloseInput{TicketID: assigned.ID, EngineerID: "eng-1", RequestNotes: "done"}, apperrors.KindInvalidState},
		{"repair without report", RequestCloseInput{TicketID: repair.ID, EngineerID: "eng-1", RequestNotes: "done", ServiceReportID: ptr("  ")}, apperrors.KindValidation},
		{"unknown ticket", RequestCloseInput{TicketID: "missing", EngineerID: "eng-1", RequestNotes: "done"}, apperrors.KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.workflow.RequestClose(ctx, tc.input)
			requireKind(t, err, tc.kind)
		})
	}

	if got := f.ticket(t, general.ID).Status; got != domain.TicketStatusInProgress {
		t.Fatalf("failed requests must not change the ticket, got %s", got)
	}
	if _, err := f.workflow.RequestClose(ctx, RequestCloseInput{
		TicketID: repair.ID, EngineerID: "eng-1", RequestNotes: "done", ServiceReportID: ptr("SR-9"),
	}); err != nil {
		t.Fatalf("repair ticket with report: %v", err)
	}
}

func TestRequestCloseServiceReportOptional(t *testing.T) {
	f := newFixture(t, withoutServiceReport())
	repair := f.seedTicket(t, func(tk *domain.Ticket) { tk.ServiceType = domain.ServiceTypeReplace })
	if _, err := f.workflow.RequestClose(context.Background(), RequestCloseInput{
		TicketID: repair.ID, EngineerID: "eng-1", RequestNotes: "swapped unit",
	}); err != nil {
		t.Fatalf("expected success without report, got %v", err)
	}
}

func TestReviewRejectReturnsTicketToInProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.seedTicket(t, nil)
	req, err := f.workflow.RequestClose(ctx, RequestCloseInput{TicketID: ticket.ID, EngineerID: "eng-1", RequestNotes: "done"})
	if err != nil {
		t.Fatalf("request close: %v", err)
	}

	_, err = f.workflow.ReviewCloseRequest(ctx, ReviewInput{CloseRequestID: req.ID, ReviewerID: "coord-1", Action: domain.ReviewRejected, ReviewNotes: ptr(" ")})
	requireKind(t, err, apperrors.KindValidation)

	_, err = f.workflow.ReviewCloseRequest(ctx, ReviewInput{
		CloseRequestID: req.ID,
		ReviewerID:     "coord-1",
		Action:         domain.ReviewRejected,
		ReviewNotes:    ptr("reject"),
		RepairEntries:  []RepairEntryInput{{AssetID: "A-1", RepairFields: domain.RepairFields{FaultDescription: "x"}}},
	})
	requireKind(t, err, apperrors.KindValidation)

	res, err := f.workflow.ReviewCloseRequest(ctx, ReviewInput{
		CloseRequestID: req.ID,
		ReviewerID:     "coord-1",
		Action:         domain.ReviewRejected,
		ReviewNotes:    ptr("Attach the service report"),
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if res.Ticket.Status != domain.TicketStatusInProgress || res.Ticket.ClosedAt != nil {
		t.Fatalf("unexpected ticket after rejection %+v", res.Ticket)
	}
	if res.CloseRequest.RequestStatus != domain.CloseRequestRejected || *res.CloseRequest.ReviewNotes != "Attach the service report" {
		t.Fatalf("unexpected close request %+v", res.CloseRequest)
	}

	_, err = f.workflow.ReviewCloseRequest(ctx, ReviewInput{CloseRequestID: req.ID, ReviewerID: "coord-2", Action: domain.ReviewApproved})
	requireKind(t, err, apperrors.KindInvalidState)

	// A new request is allowed once the previous one is finalized.
	if _, err := f.workflow.RequestClose(ctx, RequestCloseInput{TicketID: ticket.ID, EngineerID: "eng-1", RequestNotes: "report attached"}); err != nil {
		t.Fatalf("second request: %v", err)
	}
	requests, _ := f.workflow.ListCloseRequests(ctx, ticket.ID)
	if len(requests) != 2 {
		t.Fatalf("expected 2 close requests, got %d", len(requests))
	}
}

func TestReviewValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.workflow.ReviewCloseRequest(ctx, ReviewInput{CloseRequestID: "x", ReviewerID: "coord-1", Action: "maybe"})
	requireKind(t, err, apperrors.KindValidation)

	_, err = f.workflow.ReviewCloseRequest(ctx, ReviewInput{CloseRequestID: "missing", ReviewerID: "coord-1", Action: domain.ReviewApproved})
	requireKind(t, err, apperrors.KindNotFound)

	_, err = f.workflow.ReviewCloseRequest(ctx, ReviewInput{
		CloseRequestID: "missing",
		ReviewerID:     "coord-1",
		Action:         domain.ReviewApproved,
		RepairEntries:  []RepairEntryInput{{AssetID: "", RepairFields: domain.RepairFields{LaborCostCents: -1}}},
	})
	details := requireKind(t, err, apperrors.KindValidation).Details
	for _, key := range []string{"repair_entries[0].asset_id", "repair_entries[0].fault_description", "repair_entries[0].labor_cost_cents"} {
		if _, ok := details[key]; !ok {
			t.Fatalf("missing detail %s in %v", key, details)
		}
	}
}

func TestApproveWritesRepairRecordsAndReportsFailures(t *testing.T) {
	f := newFixture(t)
	f.workflow.repairs = failingLinker{next: f.linker, failOn: map[string]bool{"A-BAD": true}}
	ctx := context.Background()
	ticket := f.seedTicket(t, func(tk *domain.Ticket) { tk.ServiceType = domain.ServiceTypeRepair })
	req, err := f.workflow.RequestClose(ctx, RequestCloseInput{TicketID: ticket.ID, EngineerID: "eng-1", RequestNotes: "fixed", ServiceReportID: ptr("SR-1")})
	if err != nil {
		t.Fatalf("request close: %v", err)
	}

	res, err := f.workflow.ReviewCloseRequest(ctx, ReviewInput{
		CloseRequestID: req.ID,
		ReviewerID:     "coord-1",
		Action:         domain.ReviewApproved,
		RepairEntries: []RepairEntryInput{
			{AssetID: "A-1", RepairFields: domain.RepairFields{FaultDescription: "dead fan", Resolution: "replaced fan", PartsReplaced: []string{"fan"}, LaborCostCents: 4000, PartsCostCents: 1500}},
			{AssetID: "A-BAD", RepairFields: domain.RepairFields{FaultDescription: "cracked hinge"}},
			{AssetID: "A-2", RepairFields: domain.RepairFields{FaultDescription: "loose cable"}},
		},
	})
	if err != nil {
		t.Fatalf("approve must succeed despite repair failure: %v", err)
	}
	if res.Ticket.Status != domain.TicketStatusClosed {
		t.Fatalf("expected closed, got %s", res.Ticket.Status)
	}
	if len(res.RepairRecords) != 2 {
		t.Fatalf("expected 2 repair records, got %d", len(res.RepairRecords))
	}
	if len(res.PartialFailures) != 1 || res.PartialFailures[0].AssetID != "A-BAD" {
		t.Fatalf("unexpected partial failures %+v", res.PartialFailures)
	}
	for _, rec := range res.RepairRecords {
		if rec.CloseRequestID == nil || *rec.CloseRequestID != req.ID || rec.CreatedBy != "coord-1" {
			t.Fatalf("repair record not linked to approval: %+v", rec)
		}
	}

	stored, err := f.linker.ListByTicket(ctx, ticket.ID)
	if err != nil || len(stored) != 2 {
		t.Fatalf("expected 2 stored records, got %d (%v)", len(stored), err)
	}
	if got := counterValue(t, f.metrics, "ticket_workflow_repair_records_total", map[string]string{"outcome": "ok"}); got != 2 {
		t.Fatalf("expected 2 ok repair records metric, got %v", got)
	}
}

func TestCanReopenReasons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*domain.Ticket)
		reason string
	}{
		{"in progress", nil, domain.ReopenReasonNotClosed},
		{"cancelled", func(tk *domain.Ticket) { tk.Status = domain.TicketStatusCancelled }, domain.ReopenReasonNotClosed},
		{"closed without timestamp", func(tk *domain.Ticket) { tk.Status = domain.TicketStatusClosed }, domain.ReopenReasonWindowExpired},
		{"window passed", func(tk *domain.Ticket) {
			closed := epoch.Add(-8 * day)
			tk.Status, tk.ClosedAt = domain.TicketStatusClosed, &closed
		}, domain.ReopenReasonWindowExpired},
		{"max reached", func(tk *domain.Ticket) {
			closed := epoch.Add(-day)
			tk.Status, tk.ClosedAt, tk.ReopenCount = domain.TicketStatusClosed, &closed, 3
		}, domain.ReopenReasonMaxReached},
		{"override reached", func(tk *domain.Ticket) {
			closed := epoch
			tk.Status, tk.ClosedAt, tk.ReopenCount, tk.MaxReopenCountOverride = domain.TicketStatusClosed, &closed, 1, ptr(1)
		}, domain.ReopenReasonMaxReached},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ticket := f.seedTicket(t, tc.mutate)
			eligibility, err := f.workflow.CanReopen(ctx, ticket.ID)
			if err != nil {
				t.Fatalf("can reopen: %v", err)
			}
			if eligibility.CanReopen || eligibility.Reason != tc.reason {
				t.Fatalf("expected %q, got %+v", tc.reason, eligibility)
			}

			_, err = f.workflow.ReopenTicket(ctx, ReopenInput{TicketID: ticket.ID, ActorID: "requester-1", ReopenReason: "still broken after repair"})
			domainErr := requireKind(t, err, apperrors.KindIneligible)
			if domainErr.Details["reason"] != tc.reason {
				t.Fatalf("expected reason detail %q, got %v", tc.reason, domainErr.Details)
			}
			after := f.ticket(t, ticket.ID)
			if after.Status != ticket.Status || after.ReopenCount != ticket.ReopenCount {
				t.Fatalf("ineligible reopen mutated ticket: %+v", after)
			}
		})
	}

	_, err := f.workflow.CanReopen(ctx, "missing")
	requireKind(t, err, apperrors.KindNotFound)
}

func TestReopenWindowBoundary(t *testing.T) {
	f := newFixture(t)
	ticket := f.seedTicket(t, nil)
	f.closeTicket(t, ticket.ID)

	f.clock.Advance(8 * day)
	eligibility, err := f.workflow.CanReopen(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("can reopen: %v", err)
	}
	if eligibility.CanReopen || eligibility.DaysRemaining != 0 || eligibility.Reason != domain.ReopenReasonWindowExpired {
		t.Fatalf("expected expired window, got %+v", eligibility)
	}
}

func TestReopenCountsUpToMax(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.seedTicket(t, nil)

	for i := 1; i <= 3; i++ {
		f.closeTicket(t, ticket.ID)
		res, err := f.workflow.ReopenTicket(ctx, ReopenInput{TicketID: ticket.ID, ActorID: "requester-1", ReopenReason: "issue came back again"})
		if err != nil {
			t.Fatalf("reopen %d: %v", i, err)
		}
		if res.Event.ReopenNumber != i || res.Ticket.ReopenCount != i {
			t.Fatalf("reopen %d: got number %d count %d", i, res.Event.ReopenNumber, res.Ticket.ReopenCount)
		}
	}

	f.closeTicket(t, ticket.ID)
	_, err := f.workflow.ReopenTicket(ctx, ReopenInput{TicketID: ticket.ID, ActorID: "requester-1", ReopenReason: "issue came back again"})
	requireKind(t, err, apperrors.KindIneligible)

	ledger, _ := f.workflow.ListReopenEvents(ctx, ticket.ID)
	if len(ledger) != 3 {
		t.Fatalf("expected 3 reopen events, got %d", len(ledger))
	}
	for i, e := range ledger {
		if e.ReopenNumber != i+1 {
			t.Fatalf("reopen ledger out of order: %+v", ledger)
		}
	}
}

func TestReopenReasonRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.seedTicket(t, nil)
	f.closeTicket(t, ticket.ID)

	_, err := f.workflow.ReopenTicket(ctx, ReopenInput{TicketID: ticket.ID, ActorID: "requester-1", ReopenReason: " too short "})
	requireKind(t, err, apperrors.KindValidation)
	_, err = f.workflow.ReopenTicket(ctx, ReopenInput{TicketID: ticket.ID, ActorID: "requester-1", ReopenReason: strings.Repeat("r", 1001)})
	requireKind(t, err, apperrors.KindValidation)
	if got := f.ticket(t, ticket.ID).Status; got != domain.TicketStatusClosed {
		t.Fatalf("rejected reopen changed status to %s", got)
	}

	if _, err := f.configs.Update(ctx, "admin-1", domain.ReopenConfigPatch{RequireReopenReason: ptr(false)}, nil); err != nil {
		t.Fatalf("update config: %v", err)
	}
	res, err := f.workflow.ReopenTicket(ctx, ReopenInput{TicketID: ticket.ID, ActorID: "requester-1"})
	if err != nil {
		t.Fatalf("reopen without reason: %v", err)
	}
	if res.Event.ReopenReason != "" {
		t.Fatalf("expected empty reason, got %q", res.Event.ReopenReason)
	}
}

func TestReopenSLAFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	f.sla.err = errors.New("sla service down")
	ctx := context.Background()
	ticket := f.seedTicket(t, nil)
	f.closeTicket(t, ticket.ID)

	if _, err := f.configs.Update(ctx, "admin-1", domain.ReopenConfigPatch{SLAResetMode: ptr(domain.SLAResetNewSLA)}, nil); err != nil {
		t.Fatalf("update config: %v", err)
	}
	res, err := f.workflow.ReopenTicket(ctx, ReopenInput{TicketID: ticket.ID, ActorID: "requester-1", ReopenReason: "screen flickers again"})
	if err != nil {
		t.Fatalf("reopen must succeed when sla fails: %v", err)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "sla service down") {
		t.Fatalf("expected sla warning, got %v", res.Warnings)
	}
	if res.Event.SLAResetMode != domain.SLAResetNewSLA || f.sla.calls[0].mode != domain.SLAResetNewSLA {
		t.Fatalf("reset mode not applied from config: %+v %+v", res.Event, f.sla.calls)
	}
	if got := f.ticket(t, ticket.ID).Status; got != domain.TicketStatusInProgress {
		t.Fatalf("expected in_progress, got %s", got)
	}
	if got := counterValue(t, f.metrics, "ticket_workflow_side_effect_failures_total", map[string]string{"effect": "sla"}); got != 1 {
		t.Fatalf("expected sla failure metric, got %v", got)
	}
}

func TestReopenRepairTicketResetsServiceReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.seedTicket(t, func(tk *domain.Ticket) { tk.ServiceType = domain.ServiceTypeRepair })
	req := f.closeTicket(t, ticket.ID)

	if _, err := f.workflow.ReopenTicket(ctx, ReopenInput{TicketID: ticket.ID, ActorID: "requester-1", ReopenReason: "keyboard stopped working"}); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	resets := f.recorded.ofType(events.EventServiceReportReset)
	if len(resets) != 1 {
		t.Fatalf("expected one service report reset, got %d", len(resets))
	}
	payload := resets[0].Payload.(events.ServiceReportResetPayload)
	if payload.CloseRequestID != req.ID || payload.ServiceReportID == nil || *payload.ServiceReportID != "SR-100" {
		t.Fatalf("unexpected reset payload %+v", payload)
	}
	if payload.AssignedEngineerID == nil || *payload.AssignedEngineerID != "eng-1" {
		t.Fatalf("reset payload missing assignee: %+v", payload)
	}
}

func TestReopenConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ticket := f.seedTicket(t, nil)
	f.closeTicket(t, ticket.ID)

	const callers = 6
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.workflow.ReopenTicket(context.Background(), ReopenInput{
				TicketID: ticket.ID, ActorID: "requester-1", ReopenReason: "display is blank again",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireKind(t, err, apperrors.KindIneligible)
	}
	if succeeded != 1 {
		t.Fatalf("expected one reopen, got %d", succeeded)
	}
	if got := f.ticket(t, ticket.ID).ReopenCount; got != 1 {
		t.Fatalf("expected reopen count 1, got %d", got)
	}
}
