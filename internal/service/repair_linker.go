package service

import (
	"context"
	"strings"

	"github.com/itasset/ticket-workflow/internal/clock"
	"github.com/itasset/ticket-workflow/internal/domain"
	"github.com/itasset/ticket-workflow/internal/observability"
	"github.com/itasset/ticket-workflow/internal/repository"
)

// RepairLink identifies the asset and approval a repair record belongs to.
type RepairLink struct {
	TicketID       string
	AssetID        string
	CloseRequestID string
	CreatedBy      string
}

// RepairRecordLinker writes one repair-history entry per asset.
type RepairRecordLinker interface {
	CreateForApproval(ctx context.Context, link RepairLink, fields domain.RepairFields) (*domain.RepairRecord, error)
}

// RepairLinker stores repair records through the repair-history repository.
// Calls are independent; the caller decides how to treat failures.
type RepairLinker struct {
	records repository.RepairRecordRepository
	clock   clock.Clock
	metrics *observability.Metrics
}

// NewRepairLinker builds a linker.
func NewRepairLinker(records repository.RepairRecordRepository, clk clock.Clock, metrics *observability.Metrics) *RepairLinker {
	return &RepairLinker{records: records, clock: clk, metrics: metrics}
}

func (l *RepairLinker) CreateForApproval(ctx context.Context, link RepairLink, fields domain.RepairFields) (*domain.RepairRecord, error) {
	record := &domain.RepairRecord{
		TicketID:     link.TicketID,
		AssetID:      strings.TrimSpace(link.AssetID),
		RepairFields: fields,
		CreatedBy:    link.CreatedBy,
		CreatedAt:    l.clock.Now(),
	}
	if link.CloseRequestID != "" {
		id := link.CloseRequestID
		record.CloseRequestID = &id
	}
	if err := l.records.Create(ctx, record); err != nil {
		l.metrics.RecordRepairRecord(false)
		return nil, err
	}
	l.metrics.RecordRepairRecord(true)
	return record, nil
}

// ListByTicket returns the repair records written for ticketID.
func (l *RepairLinker) ListByTicket(ctx context.Context, ticketID string) ([]domain.RepairRecord, error) {
	return l.records.ListByTicket(ctx, ticketID)
}
