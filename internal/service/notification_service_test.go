package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/itasset/ticket-workflow/internal/domain"
	"github.com/itasset/ticket-workflow/internal/events"
	"github.com/itasset/ticket-workflow/internal/observability"
)

type sentNotification struct {
	userID string
	event  string
}

type recordingNotifier struct {
	mu     sync.Mutex
	sent   []sentNotification
	failOn string
}

func (n *recordingNotifier) Notify(_ context.Context, userID, event string, _ any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if userID == n.failOn {
		return errors.New("stream unavailable")
	}
	n.sent = append(n.sent, sentNotification{userID: userID, event: event})
	return nil
}

func (n *recordingNotifier) recipients(event events.EventType) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		if s.event == string(event) {
			out = append(out, s.userID)
		}
	}
	sort.Strings(out)
	return out
}

type notificationFixture struct {
	*fixture
	notifier *recordingNotifier
}

// newNotificationFixture wires the notification service onto a workflow
// fixture whose dispatcher delivers synchronously.
func newNotificationFixture(t *testing.T) *notificationFixture {
	t.Helper()
	f := newFixture(t)
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	f.workflow.events.dispatcher = dispatcher
	f.tickets.events.dispatcher = dispatcher
	notifier := &recordingNotifier{}
	NewNotificationService(dispatcher, notifier, f.store.Staff(), zap.NewNop(), f.metrics).RegisterHandlers()
	return &notificationFixture{fixture: f, notifier: notifier}
}

func equalIDs(got []string, want ...string) bool {
	sort.Strings(want)
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestNotificationsForCloseFlow(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()
	c1 := f.addStaff(t, "cora", domain.StaffRoleCoordinator, true)
	c2 := f.addStaff(t, "carl", domain.StaffRoleCoordinator, true)
	f.addStaff(t, "cato", domain.StaffRoleCoordinator, false)
	ticket := f.seedTicket(t, nil)

	req, err := f.workflow.RequestClose(ctx, RequestCloseInput{TicketID: ticket.ID, EngineerID: "eng-1", RequestNotes: "done"})
	if err != nil {
		t.Fatalf("request close: %v", err)
	}
	if got := f.notifier.recipients(events.EventCloseRequested); !equalIDs(got, c1.ID, c2.ID) {
		t.Fatalf("close_requested should reach active coordinators, got %v", got)
	}

	if _, err := f.workflow.ReviewCloseRequest(ctx, ReviewInput{CloseRequestID: req.ID, ReviewerID: c1.ID, Action: domain.ReviewRejected, ReviewNotes: ptr("missing photos")}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got := f.notifier.recipients(events.EventCloseRequestReviewed); !equalIDs(got, "eng-1") {
		t.Fatalf("review should reach the engineer, got %v", got)
	}
}

func TestNotificationsForReopen(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()
	manager := f.addStaff(t, "mia", domain.StaffRoleManager, true)
	ticket := f.seedTicket(t, func(tk *domain.Ticket) { tk.ServiceType = domain.ServiceTypeRepair })
	f.closeTicket(t, ticket.ID)

	if _, err := f.workflow.ReopenTicket(ctx, ReopenInput{TicketID: ticket.ID, ActorID: "requester-1", ReopenReason: "fan noise is back"}); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := f.notifier.recipients(events.EventTicketReopened); !equalIDs(got, "eng-1") {
		t.Fatalf("reopen with defaults should reach the assignee only, got %v", got)
	}
	if got := f.notifier.recipients(events.EventServiceReportReset); !equalIDs(got, "eng-1") {
		t.Fatalf("service report reset should reach the assignee, got %v", got)
	}

	if _, err := f.configs.Update(ctx, "admin-1", domain.ReopenConfigPatch{NotifyAssignee: ptr(false), NotifyManager: ptr(true)}, nil); err != nil {
		t.Fatalf("update config: %v", err)
	}
	f.closeTicket(t, ticket.ID)
	if _, err := f.workflow.ReopenTicket(ctx, ReopenInput{TicketID: ticket.ID, ActorID: "requester-1", ReopenReason: "fan noise is back again"}); err != nil {
		t.Fatalf("second reopen: %v", err)
	}
	if got := f.notifier.recipients(events.EventTicketReopened); !equalIDs(got, "eng-1", manager.ID) {
		t.Fatalf("second reopen should add managers and skip the assignee, got %v", got)
	}
}

func TestNotificationFailureDoesNotAffectWorkflow(t *testing.T) {
	f := newNotificationFixture(t)
	f.notifier.failOn = "eng-1"
	ticket := f.seedTicket(t, nil)
	f.closeTicket(t, ticket.ID)

	if got := f.ticket(t, ticket.ID).Status; got != domain.TicketStatusClosed {
		t.Fatalf("expected closed despite notification failure, got %s", got)
	}
	if got := counterValue(t, f.metrics, "ticket_workflow_side_effect_failures_total", map[string]string{"effect": "notify"}); got != 1 {
		t.Fatalf("expected one notify failure, got %v", got)
	}
}

func TestNotificationOnAssignment(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()
	engineer := f.addStaff(t, "erin", domain.StaffRoleEngineer, true)
	ticket, err := f.tickets.Create(ctx, "coord-1", TicketCreateInput{Title: "VPN access"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.tickets.Assign(ctx, "coord-1", ticket.ID, engineer.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.tickets.Cancel(ctx, "coord-1", ticket.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := f.notifier.recipients(events.EventTicketStatusChanged); !equalIDs(got, engineer.ID) {
		t.Fatalf("only the assignment should notify, got %v", got)
	}
}

func TestNotificationServiceIgnoresNilMetrics(t *testing.T) {
	var metrics *observability.Metrics
	notifier := &recordingNotifier{failOn: "u1"}
	svc := NewNotificationService(nil, notifier, nil, nil, metrics)
	err := svc.fanOut(context.Background(), events.Event{Type: events.EventCloseRequestReviewed}, []string{"u1", "u2", "u2", ""})
	if err == nil {
		t.Fatalf("expected joined notify error")
	}
	if len(notifier.sent) != 1 || notifier.sent[0].userID != "u2" {
		t.Fatalf("expected single delivery to u2, got %+v", notifier.sent)
	}
}
