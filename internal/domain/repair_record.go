package domain

import "time"

// RepairFields are the fault and cost details captured for one asset.
type RepairFields struct {
	FaultDescription string
	Resolution       string
	PartsReplaced    []string
	LaborCostCents   int64
	PartsCostCents   int64
}

// RepairRecord is a repair-history entry for an asset, written when a close
// request is approved.
type RepairRecord struct {
	ID             string
	TicketID       string
	AssetID        string
	CloseRequestID *string
	RepairFields
	CreatedBy string
	CreatedAt time.Time
}

// TotalCostCents sums labor and parts.
func (r RepairRecord) TotalCostCents() int64 {
	return r.LaborCostCents + r.PartsCostCents
}
