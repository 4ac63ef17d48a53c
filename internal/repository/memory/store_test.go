package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/itasset/ticket-workflow/internal/domain"
	"github.com/itasset/ticket-workflow/internal/repository"
)

func seedTicket(t *testing.T, s *Store) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		ExternalKey: "TCK-1",
		Title:       "Printer jam",
		Status:      domain.TicketStatusInProgress,
		ServiceType: domain.ServiceTypeGeneral,
	}
	if err := s.Tickets().Create(context.Background(), ticket); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

func TestWithTicketLockDiscardsWritesOnError(t *testing.T) {
	s := NewStore()
	ticket := seedTicket(t, s)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTicketLock(ctx, ticket.ID, func(ctx context.Context, tx repository.Tx) error {
		current, err := tx.Tickets().GetByID(ctx, ticket.ID)
		if err != nil {
			return err
		}
		current.Status = domain.TicketStatusPendingClosure
		if err := tx.Tickets().Update(ctx, current); err != nil {
			return err
		}
		req := &domain.CloseRequest{TicketID: ticket.ID, EngineerID: "e1", RequestNotes: "done", RequestStatus: domain.CloseRequestPending}
		if err := tx.CloseRequests().Create(ctx, req); err != nil {
			return err
		}
		staged, err := tx.Tickets().GetByID(ctx, ticket.ID)
		if err != nil || staged.Status != domain.TicketStatusPendingClosure {
			t.Fatalf("staged write not visible inside tx: %+v %v", staged, err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := s.Tickets().GetByID(ctx, ticket.ID)
	if got.Status != domain.TicketStatusInProgress {
		t.Fatalf("rollback failed, status=%s", got.Status)
	}
	reqs, _ := s.CloseRequests().ListByTicket(ctx, ticket.ID)
	if len(reqs) != 0 {
		t.Fatalf("expected no close requests after rollback, got %d", len(reqs))
	}
}

func TestWithTicketLockUnknownTicket(t *testing.T) {
	s := NewStore()
	err := s.WithTicketLock(context.Background(), "missing", func(context.Context, repository.Tx) error { return nil })
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWithTicketLockSerializes(t *testing.T) {
	s := NewStore()
	ticket := seedTicket(t, s)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTicketLock(ctx, ticket.ID, func(ctx context.Context, tx repository.Tx) error {
				current, err := tx.Tickets().GetByID(ctx, ticket.ID)
				if err != nil {
					return err
				}
				if current.Status != domain.TicketStatusInProgress {
					return errors.New("not in progress")
				}
				current.Status = domain.TicketStatusPendingClosure
				if err := tx.Tickets().Update(ctx, current); err != nil {
					return err
				}
				return tx.CloseRequests().Create(ctx, &domain.CloseRequest{
					TicketID: ticket.ID, EngineerID: "e1", RequestNotes: "done", RequestStatus: domain.CloseRequestPending,
				})
			})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("expected exactly one winner, got %d", created)
	}
	pending, _ := s.CloseRequests().ListPending(ctx, 10, 0)
	if len(pending) != 1 {
		t.Fatalf("expected one pending request, got %d", len(pending))
	}
}

func TestCloseRequestPendingUniqueAndReviewOnce(t *testing.T) {
	s := NewStore()
	ticket := seedTicket(t, s)
	ctx := context.Background()
	repo := s.CloseRequests()

	first := &domain.CloseRequest{TicketID: ticket.ID, EngineerID: "e1", RequestNotes: "a", RequestStatus: domain.CloseRequestPending, CreatedAt: time.Now()}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	second := &domain.CloseRequest{TicketID: ticket.ID, EngineerID: "e1", RequestNotes: "b", RequestStatus: domain.CloseRequestPending}
	if err := repo.Create(ctx, second); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	review := domain.CloseRequestReview{Status: domain.CloseRequestApproved, ReviewerID: "c1", ReviewedAt: time.Now()}
	reviewed, err := repo.Review(ctx, first.ID, review)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if reviewed.RequestStatus != domain.CloseRequestApproved || reviewed.ReviewerID == nil || *reviewed.ReviewerID != "c1" {
		t.Fatalf("unexpected review result: %+v", reviewed)
	}
	if _, err := repo.Review(ctx, first.ID, review); !errors.Is(err, repository.ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
	if _, err := repo.Review(ctx, "missing", review); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReopenConfigVersions(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	if _, err := s.ReopenConfigs().Latest(ctx); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}

	cfg := domain.DefaultReopenConfig()
	cfg.Version = 1
	if err := s.ReopenConfigs().Insert(ctx, &cfg); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.ReopenConfigs().Insert(ctx, &cfg); !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	cfg.Version = 2
	cfg.ReopenWindowDays = 14
	if err := s.ReopenConfigs().Insert(ctx, &cfg); err != nil {
		t.Fatalf("insert v2: %v", err)
	}
	latest, err := s.ReopenConfigs().Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Version != 2 || latest.ReopenWindowDays != 14 {
		t.Fatalf("unexpected latest: %+v", latest)
	}
}

func TestStaffListFiltersByRole(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for _, m := range []domain.StaffMember{
		{Name: "Eve", Email: "eve@example.com", Role: domain.StaffRoleEngineer, Active: true},
		{Name: "Cal", Email: "cal@example.com", Role: domain.StaffRoleCoordinator, Active: true},
		{Name: "Old", Email: "old@example.com", Role: domain.StaffRoleCoordinator, Active: false},
	} {
		m := m
		if err := s.Staff().Create(ctx, &m); err != nil {
			t.Fatalf("create staff: %v", err)
		}
	}
	dup := domain.StaffMember{Name: "Eve2", Email: "EVE@example.com", Role: domain.StaffRoleEngineer}
	if err := s.Staff().Create(ctx, &dup); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	role := domain.StaffRoleCoordinator
	active := true
	got, err := s.Staff().List(ctx, repository.StaffFilter{Role: &role, Active: &active})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Cal" {
		t.Fatalf("unexpected staff: %+v", got)
	}
}
