package events

import (
	"time"

	"github.com/itasset/ticket-workflow/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventCloseRequested       EventType = "close_requested"
	EventCloseRequestReviewed EventType = "close_request_reviewed"
	EventTicketReopened       EventType = "ticket_reopened"
	EventServiceReportReset   EventType = "service_report_reset"
	EventTicketStatusChanged  EventType = "ticket_status_changed"
)

// Event represents a domain event emitted by services after commit.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// CloseRequestedPayload payload.
type CloseRequestedPayload struct {
	CloseRequestID  string  `json:"close_request_id"`
	EngineerID      string  `json:"engineer_id"`
	RequestNotes    string  `json:"request_notes"`
	ServiceReportID *string `json:"service_report_id,omitempty"`
}

// CloseRequestReviewedPayload payload.
type CloseRequestReviewedPayload struct {
	CloseRequestID string                    `json:"close_request_id"`
	EngineerID     string                    `json:"engineer_id"`
	Status         domain.CloseRequestStatus `json:"status"`
	ReviewNotes    *string                   `json:"review_notes,omitempty"`
}

// TicketReopenedPayload payload.
type TicketReopenedPayload struct {
	ReopenEventID      string              `json:"reopen_event_id"`
	ReopenNumber       int                 `json:"reopen_number"`
	ReopenReason       string              `json:"reopen_reason"`
	SLAResetMode       domain.SLAResetMode `json:"sla_reset_mode"`
	AssignedEngineerID *string             `json:"assigned_engineer_id,omitempty"`
	NotifyAssignee     bool                `json:"notify_assignee"`
	NotifyManager      bool                `json:"notify_manager"`
}

// ServiceReportResetPayload payload.
type ServiceReportResetPayload struct {
	ServiceReportID    *string `json:"service_report_id,omitempty"`
	CloseRequestID     string  `json:"close_request_id,omitempty"`
	AssignedEngineerID *string `json:"assigned_engineer_id,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus          domain.TicketStatus `json:"old_status"`
	NewStatus          domain.TicketStatus `json:"new_status"`
	AssignedEngineerID *string             `json:"assigned_engineer_id,omitempty"`
}
