package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/itasset/ticket-workflow/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	AssignedEngineerID *string
	Statuses           []domain.TicketStatus
	ServiceTypes       []domain.ServiceType
	Limit              int
	Offset             int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, external_key, title, requester_id, assigned_engineer_id, status, service_type,
               reopen_count, max_reopen_count_override, created_at, updated_at, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (external_key, title, requester_id, assigned_engineer_id, status, service_type,
            reopen_count, max_reopen_count_override)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.Title,
		ticket.RequesterID,
		ticket.AssignedEngineerID,
		ticket.Status,
		ticket.ServiceType,
		ticket.ReopenCount,
		ticket.MaxReopenCountOverride,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, assigned_engineer_id=$2, status=$3, service_type=$4,
            reopen_count=$5, max_reopen_count_override=$6, closed_at=$7, updated_at=$8
        WHERE id=$9`
	cmd, err := r.db.Exec(ctx, query,
		ticket.Title,
		ticket.AssignedEngineerID,
		ticket.Status,
		ticket.ServiceType,
		ticket.ReopenCount,
		ticket.MaxReopenCountOverride,
		ticket.ClosedAt,
		ticket.UpdatedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := scanTicket(r.db.QueryRow(ctx, query, id), &ticket); err != nil {
		return nil, mapNoRows(err)
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.AssignedEngineerID != nil {
		args = append(args, *filter.AssignedEngineerID)
		clauses = append(clauses, fmt.Sprintf("assigned_engineer_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.ServiceTypes) > 0 {
		placeholders := make([]string, len(filter.ServiceTypes))
		for i, st := range filter.ServiceTypes {
			args = append(args, st)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("service_type IN (%s)", strings.Join(placeholders, ",")))
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.Title,
		&ticket.RequesterID,
		&ticket.AssignedEngineerID,
		&ticket.Status,
		&ticket.ServiceType,
		&ticket.ReopenCount,
		&ticket.MaxReopenCountOverride,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	)
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
