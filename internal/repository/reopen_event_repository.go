package repository

import (
	"context"

	"github.com/itasset/ticket-workflow/internal/domain"
)

// ReopenEventRepository is the append-only reopen ledger. Events are never
// updated or deleted.
type ReopenEventRepository interface {
	Create(ctx context.Context, event *domain.ReopenEvent) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.ReopenEvent, error)
}

type reopenEventRepository struct {
	db DBTX
}

// NewReopenEventRepository builds repository.
func NewReopenEventRepository(db DBTX) ReopenEventRepository {
	return &reopenEventRepository{db: db}
}

func (r *reopenEventRepository) Create(ctx context.Context, event *domain.ReopenEvent) error {
	const query = `
        INSERT INTO reopen_events (ticket_id, reopen_number, reopened_by, reopen_reason, sla_reset_mode, reopened_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	err := r.db.QueryRow(ctx, query,
		event.TicketID,
		event.ReopenNumber,
		event.ReopenedBy,
		event.ReopenReason,
		event.SLAResetMode,
		event.ReopenedAt,
	).Scan(&event.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *reopenEventRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.ReopenEvent, error) {
	const query = `
        SELECT id, ticket_id, reopen_number, reopened_by, reopen_reason, sla_reset_mode, reopened_at
        FROM reopen_events WHERE ticket_id=$1 ORDER BY reopen_number ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ReopenEvent
	for rows.Next() {
		var event domain.ReopenEvent
		if err := rows.Scan(
			&event.ID,
			&event.TicketID,
			&event.ReopenNumber,
			&event.ReopenedBy,
			&event.ReopenReason,
			&event.SLAResetMode,
			&event.ReopenedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}
