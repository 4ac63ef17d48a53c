package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus        TicketChangeType = "STATUS_CHANGE"
	ChangeTypeAssignee      TicketChangeType = "ASSIGNEE_CHANGE"
	ChangeTypeCloseRequest  TicketChangeType = "CLOSE_REQUESTED"
	ChangeTypeCloseReviewed TicketChangeType = "CLOSE_REVIEWED"
	ChangeTypeReopen        TicketChangeType = "REOPENED"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID          string
	TicketID    string
	ChangedByID *string
	ChangeType  TicketChangeType
	OldValue    map[string]any
	NewValue    map[string]any
	CreatedAt   time.Time
}
