package dto

import (
	"time"

	"github.com/itasset/ticket-workflow/internal/domain"
)

// CloseRequestCreateRequest payload.
type CloseRequestCreateRequest struct {
	RequestNotes    string  `json:"request_notes"`
	ServiceReportID *string `json:"service_report_id"`
}

// RepairEntryRequest describes repair work on one asset.
type RepairEntryRequest struct {
	AssetID          string   `json:"asset_id"`
	FaultDescription string   `json:"fault_description"`
	Resolution       string   `json:"resolution"`
	PartsReplaced    []string `json:"parts_replaced"`
	LaborCostCents   int64    `json:"labor_cost_cents"`
	PartsCostCents   int64    `json:"parts_cost_cents"`
}

// ReviewCloseRequestRequest payload.
type ReviewCloseRequestRequest struct {
	Action        domain.ReviewAction  `json:"action"`
	ReviewNotes   *string              `json:"review_notes"`
	RepairEntries []RepairEntryRequest `json:"repair_entries"`
}

// CloseRequestResponse is one close request ledger entry.
type CloseRequestResponse struct {
	ID              string                    `json:"id"`
	TicketID        string                    `json:"ticket_id"`
	EngineerID      string                    `json:"engineer_id"`
	RequestNotes    string                    `json:"request_notes"`
	ServiceReportID *string                   `json:"service_report_id"`
	RequestStatus   domain.CloseRequestStatus `json:"request_status"`
	CreatedAt       time.Time                 `json:"created_at"`
	ReviewedAt      *time.Time                `json:"reviewed_at"`
	ReviewerID      *string                   `json:"reviewer_id"`
	ReviewNotes     *string                   `json:"review_notes"`
}

// RepairRecordResponse is one repair-history entry.
type RepairRecordResponse struct {
	ID               string    `json:"id"`
	TicketID         string    `json:"ticket_id"`
	AssetID          string    `json:"asset_id"`
	CloseRequestID   *string   `json:"close_request_id"`
	FaultDescription string    `json:"fault_description"`
	Resolution       string    `json:"resolution"`
	PartsReplaced    []string  `json:"parts_replaced"`
	LaborCostCents   int64     `json:"labor_cost_cents"`
	PartsCostCents   int64     `json:"parts_cost_cents"`
	TotalCostCents   int64     `json:"total_cost_cents"`
	CreatedBy        string    `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
}

// RepairFailureResponse names an asset whose repair record was not written.
type RepairFailureResponse struct {
	AssetID string `json:"asset_id"`
	Error   string `json:"error"`
}

// ReviewResponse is returned by the review endpoint.
type ReviewResponse struct {
	CloseRequest    CloseRequestResponse    `json:"close_request"`
	Ticket          TicketResponse          `json:"ticket"`
	RepairRecords   []RepairRecordResponse  `json:"repair_records"`
	PartialFailures []RepairFailureResponse `json:"partial_failures"`
}

// ReopenTicketRequest payload.
type ReopenTicketRequest struct {
	ReopenReason string `json:"reopen_reason"`
}

// ReopenEventResponse is one reopen ledger entry.
type ReopenEventResponse struct {
	ID           string              `json:"id"`
	TicketID     string              `json:"ticket_id"`
	ReopenNumber int                 `json:"reopen_number"`
	ReopenedBy   string              `json:"reopened_by"`
	ReopenReason string              `json:"reopen_reason"`
	SLAResetMode domain.SLAResetMode `json:"sla_reset_mode"`
	ReopenedAt   time.Time           `json:"reopened_at"`
}

// ReopenResponse is returned by the reopen endpoint.
type ReopenResponse struct {
	Ticket      TicketResponse      `json:"ticket"`
	ReopenEvent ReopenEventResponse `json:"reopen_event"`
	Warnings    []string            `json:"warnings"`
}

// ReopenEligibilityResponse reports whether a ticket can be reopened.
type ReopenEligibilityResponse struct {
	TicketID         string `json:"ticket_id"`
	CanReopen        bool   `json:"can_reopen"`
	Reason           string `json:"reason,omitempty"`
	RemainingReopens int    `json:"remaining_reopens"`
	DaysRemaining    int    `json:"days_remaining"`
	MaxReopenCount   int    `json:"max_reopen_count"`
	ReopenWindowDays int    `json:"reopen_window_days"`
}

// ReopenConfigResponse is the reopen policy in force.
type ReopenConfigResponse struct {
	Version             int                 `json:"version"`
	ReopenWindowDays    int                 `json:"reopen_window_days"`
	MaxReopenCount      int                 `json:"max_reopen_count"`
	SLAResetMode        domain.SLAResetMode `json:"sla_reset_mode"`
	RequireReopenReason bool                `json:"require_reopen_reason"`
	NotifyAssignee      bool                `json:"notify_assignee"`
	NotifyManager       bool                `json:"notify_manager"`
	UpdatedBy           *string             `json:"updated_by"`
	UpdatedAt           *time.Time          `json:"updated_at"`
}

// ReopenConfigUpdateRequest payload. Omitted fields keep their value.
type ReopenConfigUpdateRequest struct {
	ExpectedVersion     *int                 `json:"expected_version"`
	ReopenWindowDays    *int                 `json:"reopen_window_days"`
	MaxReopenCount      *int                 `json:"max_reopen_count"`
	SLAResetMode        *domain.SLAResetMode `json:"sla_reset_mode"`
	RequireReopenReason *bool                `json:"require_reopen_reason"`
	NotifyAssignee      *bool                `json:"notify_assignee"`
	NotifyManager       *bool                `json:"notify_manager"`
}
