// Package memory is an in-process implementation of repository.Store used
// for tests and for running the service without Postgres. Ticket locks are
// per-ticket mutexes; writes made inside WithTicketLock are staged and only
// become visible when the transaction body returns nil.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/itasset/ticket-workflow/internal/domain"
	"github.com/itasset/ticket-workflow/internal/repository"
)

// Store keeps every table in maps guarded by mu.
type Store struct {
	mu            sync.RWMutex
	tickets       map[string]*domain.Ticket
	closeRequests map[string]*domain.CloseRequest
	closeOrder    []string
	reopenEvents  []domain.ReopenEvent
	history       []domain.TicketHistory
	repairs       []domain.RepairRecord
	configs       []domain.ReopenConfig
	staff         map[string]*domain.StaffMember
	staffOrder    []string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		tickets:       make(map[string]*domain.Ticket),
		closeRequests: make(map[string]*domain.CloseRequest),
		staff:         make(map[string]*domain.StaffMember),
		locks:         make(map[string]*sync.Mutex),
	}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) direct() txView { return txView{tx: &memTx{s: s, direct: true}} }

func (s *Store) Tickets() repository.TicketRepository { return s.direct().Tickets() }

func (s *Store) CloseRequests() repository.CloseRequestRepository {
	return s.direct().CloseRequests()
}

func (s *Store) ReopenEvents() repository.ReopenEventRepository { return s.direct().ReopenEvents() }

func (s *Store) History() repository.TicketHistoryRepository { return s.direct().History() }

func (s *Store) RepairRecords() repository.RepairRecordRepository { return repairRepo{s: s} }

func (s *Store) ReopenConfigs() repository.ReopenConfigRepository { return configRepo{s: s} }

func (s *Store) Staff() repository.StaffRepository { return staffRepo{s: s} }

func (s *Store) Ping(ctx context.Context) error { return nil }

// WithTicketLock serializes fn with every other transaction on ticketID.
func (s *Store) WithTicketLock(ctx context.Context, ticketID string, fn repository.TxFunc) error {
	s.mu.RLock()
	_, ok := s.tickets[ticketID]
	s.mu.RUnlock()
	if !ok {
		return repository.ErrNotFound
	}

	lock := s.ticketLock(ticketID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		s:             s,
		tickets:       make(map[string]*domain.Ticket),
		closeRequests: make(map[string]*domain.CloseRequest),
	}
	if err := fn(ctx, txView{tx: tx}); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) ticketLock(ticketID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[ticketID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[ticketID] = lock
	}
	return lock
}

// memTx stages writes. A direct tx writes straight through.
type memTx struct {
	s             *Store
	direct        bool
	tickets       map[string]*domain.Ticket
	closeRequests map[string]*domain.CloseRequest
	newCloseIDs   []string
	reopenEvents  []domain.ReopenEvent
	history       []domain.TicketHistory
}

func (tx *memTx) commit() {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range tx.tickets {
		s.tickets[id] = t
	}
	for id, r := range tx.closeRequests {
		s.closeRequests[id] = r
	}
	s.closeOrder = append(s.closeOrder, tx.newCloseIDs...)
	s.reopenEvents = append(s.reopenEvents, tx.reopenEvents...)
	s.history = append(s.history, tx.history...)
}

func (tx *memTx) getTicket(id string) (*domain.Ticket, bool) {
	if t, ok := tx.tickets[id]; ok {
		return t.Clone(), true
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	t, ok := tx.s.tickets[id]
	return t.Clone(), ok
}

func (tx *memTx) allTickets() []*domain.Ticket {
	tx.s.mu.RLock()
	out := make([]*domain.Ticket, 0, len(tx.s.tickets))
	for id, t := range tx.s.tickets {
		if _, staged := tx.tickets[id]; staged {
			continue
		}
		out = append(out, t.Clone())
	}
	tx.s.mu.RUnlock()
	for _, t := range tx.tickets {
		out = append(out, t.Clone())
	}
	return out
}

func (tx *memTx) putTicket(t *domain.Ticket) {
	if tx.direct {
		tx.s.mu.Lock()
		tx.s.tickets[t.ID] = t.Clone()
		tx.s.mu.Unlock()
		return
	}
	tx.tickets[t.ID] = t.Clone()
}

func (tx *memTx) getCloseRequest(id string) (*domain.CloseRequest, bool) {
	if r, ok := tx.closeRequests[id]; ok {
		return r.Clone(), true
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	r, ok := tx.s.closeRequests[id]
	return r.Clone(), ok
}

// allCloseRequests returns requests in insertion order with staged
// versions taking precedence.
func (tx *memTx) allCloseRequests() []*domain.CloseRequest {
	tx.s.mu.RLock()
	ids := append(append([]string{}, tx.s.closeOrder...), tx.newCloseIDs...)
	out := make([]*domain.CloseRequest, 0, len(ids))
	for _, id := range ids {
		if r, ok := tx.closeRequests[id]; ok {
			out = append(out, r.Clone())
			continue
		}
		out = append(out, tx.s.closeRequests[id].Clone())
	}
	tx.s.mu.RUnlock()
	return out
}

func (tx *memTx) putCloseRequest(r *domain.CloseRequest, isNew bool) {
	if tx.direct {
		tx.s.mu.Lock()
		tx.s.closeRequests[r.ID] = r.Clone()
		if isNew {
			tx.s.closeOrder = append(tx.s.closeOrder, r.ID)
		}
		tx.s.mu.Unlock()
		return
	}
	tx.closeRequests[r.ID] = r.Clone()
	if isNew {
		tx.newCloseIDs = append(tx.newCloseIDs, r.ID)
	}
}

func (tx *memTx) ticketReopenEvents(ticketID string) []domain.ReopenEvent {
	var out []domain.ReopenEvent
	tx.s.mu.RLock()
	for _, e := range tx.s.reopenEvents {
		if e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	tx.s.mu.RUnlock()
	for _, e := range tx.reopenEvents {
		if e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	return out
}

func (tx *memTx) addReopenEvent(e domain.ReopenEvent) {
	if tx.direct {
		tx.s.mu.Lock()
		tx.s.reopenEvents = append(tx.s.reopenEvents, e)
		tx.s.mu.Unlock()
		return
	}
	tx.reopenEvents = append(tx.reopenEvents, e)
}

func (tx *memTx) ticketHistory(ticketID string) []domain.TicketHistory {
	var out []domain.TicketHistory
	tx.s.mu.RLock()
	for _, h := range tx.s.history {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	tx.s.mu.RUnlock()
	for _, h := range tx.history {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out
}

func (tx *memTx) addHistory(h domain.TicketHistory) {
	if tx.direct {
		tx.s.mu.Lock()
		tx.s.history = append(tx.s.history, h)
		tx.s.mu.Unlock()
		return
	}
	tx.history = append(tx.history, h)
}

type txView struct {
	tx *memTx
}

func (v txView) Tickets() repository.TicketRepository             { return ticketRepo{tx: v.tx} }
func (v txView) CloseRequests() repository.CloseRequestRepository { return closeRequestRepo{tx: v.tx} }
func (v txView) ReopenEvents() repository.ReopenEventRepository   { return reopenEventRepo{tx: v.tx} }
func (v txView) History() repository.TicketHistoryRepository      { return historyRepo{tx: v.tx} }

type ticketRepo struct {
	tx *memTx
}

func (r ticketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	for _, existing := range r.tx.allTickets() {
		if existing.ExternalKey == ticket.ExternalKey {
			return repository.ErrDuplicate
		}
	}
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	if ticket.UpdatedAt.IsZero() {
		ticket.UpdatedAt = ticket.CreatedAt
	}
	r.tx.putTicket(ticket)
	return nil
}

func (r ticketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	if _, ok := r.tx.getTicket(ticket.ID); !ok {
		return repository.ErrNotFound
	}
	r.tx.putTicket(ticket)
	return nil
}

func (r ticketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	t, ok := r.tx.getTicket(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (r ticketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, t := range r.tx.allTickets() {
		if filter.AssignedEngineerID != nil && (t.AssignedEngineerID == nil || *t.AssignedEngineerID != *filter.AssignedEngineerID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		if len(filter.ServiceTypes) > 0 && !containsServiceType(filter.ServiceTypes, t.ServiceType) {
			continue
		}
		out = append(out, *t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return page(out, filter.Limit, filter.Offset), nil
}

type closeRequestRepo struct {
	tx *memTx
}

func (r closeRequestRepo) Create(ctx context.Context, req *domain.CloseRequest) error {
	if req.RequestStatus == domain.CloseRequestPending {
		for _, existing := range r.tx.allCloseRequests() {
			if existing.TicketID == req.TicketID && existing.RequestStatus == domain.CloseRequestPending {
				return repository.ErrDuplicate
			}
		}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	r.tx.putCloseRequest(req, true)
	return nil
}

func (r closeRequestRepo) GetByID(ctx context.Context, id string) (*domain.CloseRequest, error) {
	req, ok := r.tx.getCloseRequest(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return req, nil
}

func (r closeRequestRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.CloseRequest, error) {
	var out []domain.CloseRequest
	for _, req := range r.tx.allCloseRequests() {
		if req.TicketID == ticketID {
			out = append(out, *req)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r closeRequestRepo) ListPending(ctx context.Context, limit, offset int) ([]domain.CloseRequest, error) {
	var out []domain.CloseRequest
	for _, req := range r.tx.allCloseRequests() {
		if req.RequestStatus == domain.CloseRequestPending {
			out = append(out, *req)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (r closeRequestRepo) Review(ctx context.Context, id string, review domain.CloseRequestReview) (*domain.CloseRequest, error) {
	req, ok := r.tx.getCloseRequest(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	if req.RequestStatus != domain.CloseRequestPending {
		return nil, repository.ErrAlreadyFinalized
	}
	reviewedAt := review.ReviewedAt
	reviewer := review.ReviewerID
	req.RequestStatus = review.Status
	req.ReviewedAt = &reviewedAt
	req.ReviewerID = &reviewer
	if review.ReviewNotes != nil {
		notes := *review.ReviewNotes
		req.ReviewNotes = &notes
	}
	r.tx.putCloseRequest(req, false)
	return req.Clone(), nil
}

type reopenEventRepo struct {
	tx *memTx
}

func (r reopenEventRepo) Create(ctx context.Context, event *domain.ReopenEvent) error {
	for _, existing := range r.tx.ticketReopenEvents(event.TicketID) {
		if existing.ReopenNumber == event.ReopenNumber {
			return repository.ErrDuplicate
		}
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	r.tx.addReopenEvent(*event)
	return nil
}

func (r reopenEventRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.ReopenEvent, error) {
	out := r.tx.ticketReopenEvents(ticketID)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReopenNumber < out[j].ReopenNumber })
	return out, nil
}

type historyRepo struct {
	tx *memTx
}

func (r historyRepo) Create(ctx context.Context, history *domain.TicketHistory) error {
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	r.tx.addHistory(*history)
	return nil
}

func (r historyRepo) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	out := r.tx.ticketHistory(ticketID)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

type repairRepo struct {
	s *Store
}

func (r repairRepo) Create(ctx context.Context, record *domain.RepairRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.repairs = append(r.s.repairs, *record)
	return nil
}

func (r repairRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.RepairRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.RepairRecord
	for _, rec := range r.s.repairs {
		if rec.TicketID == ticketID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type configRepo struct {
	s *Store
}

func (r configRepo) Latest(ctx context.Context) (*domain.ReopenConfig, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if len(r.s.configs) == 0 {
		return nil, repository.ErrNotFound
	}
	latest := r.s.configs[len(r.s.configs)-1]
	return &latest, nil
}

func (r configRepo) Insert(ctx context.Context, cfg *domain.ReopenConfig) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.configs {
		if existing.Version == cfg.Version {
			return repository.ErrVersionConflict
		}
	}
	r.s.configs = append(r.s.configs, *cfg)
	sort.SliceStable(r.s.configs, func(i, j int) bool { return r.s.configs[i].Version < r.s.configs[j].Version })
	return nil
}

type staffRepo struct {
	s *Store
}

func (r staffRepo) Create(ctx context.Context, staff *domain.StaffMember) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.staff {
		if strings.EqualFold(existing.Email, staff.Email) {
			return repository.ErrDuplicate
		}
	}
	if staff.ID == "" {
		staff.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	staff.CreatedAt, staff.UpdatedAt = now, now
	cp := *staff
	r.s.staff[staff.ID] = &cp
	r.s.staffOrder = append(r.s.staffOrder, staff.ID)
	return nil
}

func (r staffRepo) GetByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	staff, ok := r.s.staff[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *staff
	return &cp, nil
}

func (r staffRepo) GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, staff := range r.s.staff {
		if strings.EqualFold(staff.Email, email) {
			cp := *staff
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r staffRepo) List(ctx context.Context, filter repository.StaffFilter) ([]domain.StaffMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.StaffMember
	for _, id := range r.s.staffOrder {
		staff := r.s.staff[id]
		if filter.Role != nil && staff.Role != *filter.Role {
			continue
		}
		if filter.Active != nil && staff.Active != *filter.Active {
			continue
		}
		out = append(out, *staff)
	}
	return page(out, filter.Limit, filter.Offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsServiceType(list []domain.ServiceType, t domain.ServiceType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}
