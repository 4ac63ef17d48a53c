package repository

import (
	"context"

	"github.com/itasset/ticket-workflow/internal/domain"
)

// RepairRecordRepository writes asset repair history.
type RepairRecordRepository interface {
	Create(ctx context.Context, record *domain.RepairRecord) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.RepairRecord, error)
}

type repairRecordRepository struct {
	db DBTX
}

// NewRepairRecordRepository builds repository.
func NewRepairRecordRepository(db DBTX) RepairRecordRepository {
	return &repairRecordRepository{db: db}
}

func (r *repairRecordRepository) Create(ctx context.Context, record *domain.RepairRecord) error {
	const query = `
        INSERT INTO repair_records (ticket_id, asset_id, close_request_id, fault_description, resolution,
            parts_replaced, labor_cost_cents, parts_cost_cents, created_by, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id`
	parts := record.PartsReplaced
	if parts == nil {
		parts = []string{}
	}
	return r.db.QueryRow(ctx, query,
		record.TicketID,
		record.AssetID,
		record.CloseRequestID,
		record.FaultDescription,
		record.Resolution,
		parts,
		record.LaborCostCents,
		record.PartsCostCents,
		record.CreatedBy,
		record.CreatedAt,
	).Scan(&record.ID)
}

func (r *repairRecordRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.RepairRecord, error) {
	const query = `
        SELECT id, ticket_id, asset_id, close_request_id, fault_description, resolution,
               parts_replaced, labor_cost_cents, parts_cost_cents, created_by, created_at
        FROM repair_records WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RepairRecord
	for rows.Next() {
		var record domain.RepairRecord
		if err := rows.Scan(
			&record.ID,
			&record.TicketID,
			&record.AssetID,
			&record.CloseRequestID,
			&record.FaultDescription,
			&record.Resolution,
			&record.PartsReplaced,
			&record.LaborCostCents,
			&record.PartsCostCents,
			&record.CreatedBy,
			&record.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, rows.Err()
}
