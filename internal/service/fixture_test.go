package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/itasset/ticket-workflow/internal/clock"
	"github.com/itasset/ticket-workflow/internal/domain"
	"github.com/itasset/ticket-workflow/internal/events"
	"github.com/itasset/ticket-workflow/internal/observability"
	"github.com/itasset/ticket-workflow/internal/repository/memory"
	apperrors "github.com/itasset/ticket-workflow/pkg/util/errorutil"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) ofType(typ events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type slaCall struct {
	ticketID string
	mode     domain.SLAResetMode
}

type stubSLA struct {
	mu    sync.Mutex
	calls []slaCall
	err   error
}

func (s *stubSLA) ApplyResetMode(_ context.Context, ticketID string, mode domain.SLAResetMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, slaCall{ticketID: ticketID, mode: mode})
	return s.err
}

// failingLinker fails for the listed assets and delegates otherwise.
type failingLinker struct {
	next   RepairRecordLinker
	failOn map[string]bool
}

func (l failingLinker) CreateForApproval(ctx context.Context, link RepairLink, fields domain.RepairFields) (*domain.RepairRecord, error) {
	if l.failOn[link.AssetID] {
		return nil, errors.New("asset registry unavailable")
	}
	return l.next.CreateForApproval(ctx, link, fields)
}

type fixture struct {
	store    *memory.Store
	clock    *clock.FakeClock
	recorded *recordedEvents
	sla      *stubSLA
	metrics  *observability.Metrics
	configs  *ReopenConfigService
	linker   *RepairLinker
	workflow *WorkflowService
	tickets  *TicketService
}

type fixtureOption func(*WorkflowDependencies)

func withoutServiceReport() fixtureOption {
	return func(d *WorkflowDependencies) { d.RequireServiceReport = false }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.NewStore(),
		clock:    clock.Fake(epoch),
		recorded: &recordedEvents{},
		sla:      &stubSLA{},
		metrics:  observability.NewMetrics(),
	}
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	for _, typ := range []events.EventType{
		events.EventCloseRequested,
		events.EventCloseRequestReviewed,
		events.EventTicketReopened,
		events.EventServiceReportReset,
		events.EventTicketStatusChanged,
	} {
		dispatcher.Subscribe(typ, f.recorded.handle)
	}

	f.configs = NewReopenConfigService(f.store.ReopenConfigs(), domain.DefaultReopenConfig(), f.clock, zap.NewNop())
	f.linker = NewRepairLinker(f.store.RepairRecords(), f.clock, f.metrics)
	deps := WorkflowDependencies{
		Store:                f.store,
		Configs:              f.configs,
		Repairs:              f.linker,
		SLA:                  f.sla,
		Dispatcher:           dispatcher,
		Clock:                f.clock,
		Logger:               zap.NewNop(),
		Metrics:              f.metrics,
		RequireServiceReport: true,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.workflow = NewWorkflowService(deps)
	f.tickets = NewTicketService(TicketDependencies{
		Store:      f.store,
		Dispatcher: dispatcher,
		Clock:      f.clock,
		Metrics:    f.metrics,
	})
	return f
}

// seedTicket stores a ticket directly in the given state.
func (f *fixture) seedTicket(t *testing.T, mutate func(*domain.Ticket)) *domain.Ticket {
	t.Helper()
	engineer := "eng-1"
	ticket := &domain.Ticket{
		ExternalKey:        generateTicketKey(),
		Title:              "Laptop does not boot",
		AssignedEngineerID: &engineer,
		Status:             domain.TicketStatusInProgress,
		ServiceType:        domain.ServiceTypeGeneral,
		CreatedAt:          f.clock.Now(),
	}
	if mutate != nil {
		mutate(ticket)
	}
	if err := f.store.Tickets().Create(context.Background(), ticket); err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	return ticket
}

// closeTicket runs a ticket through request and approval.
func (f *fixture) closeTicket(t *testing.T, ticketID string) *domain.CloseRequest {
	t.Helper()
	ctx := context.Background()
	report := "SR-100"
	req, err := f.workflow.RequestClose(ctx, RequestCloseInput{
		TicketID:        ticketID,
		EngineerID:      "eng-1",
		RequestNotes:    "Replaced the SSD, system boots",
		ServiceReportID: &report,
	})
	if err != nil {
		t.Fatalf("request close: %v", err)
	}
	if _, err := f.workflow.ReviewCloseRequest(ctx, ReviewInput{
		CloseRequestID: req.ID,
		ReviewerID:     "coord-1",
		Action:         domain.ReviewApproved,
	}); err != nil {
		t.Fatalf("approve close: %v", err)
	}
	return req
}

func (f *fixture) ticket(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := f.store.Tickets().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	return ticket
}

func (f *fixture) addStaff(t *testing.T, name string, role domain.StaffRole, active bool) *domain.StaffMember {
	t.Helper()
	staff := &domain.StaffMember{Name: name, Email: name + "@example.com", Role: role, Active: active}
	if err := f.store.Staff().Create(context.Background(), staff); err != nil {
		t.Fatalf("create staff: %v", err)
	}
	return staff
}

func requireKind(t *testing.T, err error, kind apperrors.Kind) *apperrors.DomainError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", kind)
	}
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError %s, got %T: %v", kind, err, err)
	}
	if domainErr.Kind != kind {
		t.Fatalf("expected %s, got %s: %v", kind, domainErr.Kind, err)
	}
	return domainErr
}

func ptr[T any](v T) *T { return &v }

func counterValue(t *testing.T, m *observability.Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue metrics
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}
