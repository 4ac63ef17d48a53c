package dto

import (
	"time"

	"github.com/itasset/ticket-workflow/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title                  string             `json:"title"`
	ServiceType            domain.ServiceType `json:"service_type"`
	RequesterID            *string            `json:"requester_id"`
	MaxReopenCountOverride *int               `json:"max_reopen_count_override"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	EngineerID string `json:"engineer_id"`
}

// TicketResponse is the ticket without its ledgers.
type TicketResponse struct {
	ID                     string              `json:"id"`
	ExternalKey            string              `json:"external_key"`
	Title                  string              `json:"title"`
	RequesterID            *string             `json:"requester_id"`
	AssignedEngineerID     *string             `json:"assigned_engineer_id"`
	Status                 domain.TicketStatus `json:"status"`
	ServiceType            domain.ServiceType  `json:"service_type"`
	ReopenCount            int                 `json:"reopen_count"`
	MaxReopenCountOverride *int                `json:"max_reopen_count_override"`
	CreatedAt              time.Time           `json:"created_at"`
	UpdatedAt              time.Time           `json:"updated_at"`
	ClosedAt               *time.Time          `json:"closed_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketResponse
	CloseRequests []CloseRequestResponse `json:"close_requests"`
	ReopenEvents  []ReopenEventResponse  `json:"reopen_events"`
	RepairRecords []RepairRecordResponse `json:"repair_records"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID          string                  `json:"id"`
	ChangeType  domain.TicketChangeType `json:"change_type"`
	ChangedByID *string                 `json:"changed_by_id"`
	OldValue    map[string]any          `json:"old_value"`
	NewValue    map[string]any          `json:"new_value"`
	CreatedAt   time.Time               `json:"created_at"`
}
