package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/itasset/ticket-workflow/internal/domain"
)

// CloseRequestRepository is the append-only close request ledger.
type CloseRequestRepository interface {
	Create(ctx context.Context, req *domain.CloseRequest) error
	GetByID(ctx context.Context, id string) (*domain.CloseRequest, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.CloseRequest, error)
	ListPending(ctx context.Context, limit, offset int) ([]domain.CloseRequest, error)
	// Review finalizes a pending request. Returns ErrAlreadyFinalized if the
	// request was already reviewed.
	Review(ctx context.Context, id string, review domain.CloseRequestReview) (*domain.CloseRequest, error)
}

type closeRequestRepository struct {
	db DBTX
}

// NewCloseRequestRepository builds repository.
func NewCloseRequestRepository(db DBTX) CloseRequestRepository {
	return &closeRequestRepository{db: db}
}

const closeRequestColumns = `id, ticket_id, engineer_id, request_notes, service_report_id, request_status,
               created_at, reviewed_at, reviewer_id, review_notes`

func (r *closeRequestRepository) Create(ctx context.Context, req *domain.CloseRequest) error {
	const query = `
        INSERT INTO close_requests (ticket_id, engineer_id, request_notes, service_report_id, request_status, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	err := r.db.QueryRow(ctx, query,
		req.TicketID,
		req.EngineerID,
		req.RequestNotes,
		req.ServiceReportID,
		req.RequestStatus,
		req.CreatedAt,
	).Scan(&req.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *closeRequestRepository) GetByID(ctx context.Context, id string) (*domain.CloseRequest, error) {
	query := `SELECT ` + closeRequestColumns + ` FROM close_requests WHERE id=$1`
	var req domain.CloseRequest
	if err := scanCloseRequest(r.db.QueryRow(ctx, query, id), &req); err != nil {
		return nil, mapNoRows(err)
	}
	return &req, nil
}

func (r *closeRequestRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.CloseRequest, error) {
	query := `SELECT ` + closeRequestColumns + ` FROM close_requests WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	return collectCloseRequests(rows)
}

func (r *closeRequestRepository) ListPending(ctx context.Context, limit, offset int) ([]domain.CloseRequest, error) {
	limit, offset = normalizePage(limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM close_requests WHERE request_status=$1 ORDER BY created_at ASC LIMIT %d OFFSET %d`,
		closeRequestColumns, limit, offset)
	rows, err := r.db.Query(ctx, query, domain.CloseRequestPending)
	if err != nil {
		return nil, err
	}
	return collectCloseRequests(rows)
}

func (r *closeRequestRepository) Review(ctx context.Context, id string, review domain.CloseRequestReview) (*domain.CloseRequest, error) {
	query := `
        UPDATE close_requests SET request_status=$1, reviewer_id=$2, review_notes=$3, reviewed_at=$4
        WHERE id=$5 AND request_status=$6
        RETURNING ` + closeRequestColumns
	var req domain.CloseRequest
	err := scanCloseRequest(r.db.QueryRow(ctx, query,
		review.Status,
		review.ReviewerID,
		review.ReviewNotes,
		review.ReviewedAt,
		id,
		domain.CloseRequestPending,
	), &req)
	if err == nil {
		return &req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrAlreadyFinalized
}

func scanCloseRequest(row pgx.Row, req *domain.CloseRequest) error {
	return row.Scan(
		&req.ID,
		&req.TicketID,
		&req.EngineerID,
		&req.RequestNotes,
		&req.ServiceReportID,
		&req.RequestStatus,
		&req.CreatedAt,
		&req.ReviewedAt,
		&req.ReviewerID,
		&req.ReviewNotes,
	)
}

func collectCloseRequests(rows pgx.Rows) ([]domain.CloseRequest, error) {
	defer rows.Close()
	var result []domain.CloseRequest
	for rows.Next() {
		var req domain.CloseRequest
		if err := scanCloseRequest(rows, &req); err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}
