package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen           TicketStatus = "open"
	TicketStatusAssigned       TicketStatus = "assigned"
	TicketStatusInProgress     TicketStatus = "in_progress"
	TicketStatusPendingClosure TicketStatus = "pending_closure"
	TicketStatusResolved       TicketStatus = "resolved"
	TicketStatusClosed         TicketStatus = "closed"
	TicketStatusCancelled      TicketStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusAssigned, TicketStatusInProgress, TicketStatusPendingClosure,
		TicketStatusResolved, TicketStatusClosed, TicketStatusCancelled:
		return true
	}
	return false
}

// ServiceType describes the kind of work a ticket tracks.
type ServiceType string

const (
	ServiceTypeGeneral ServiceType = "general"
	ServiceTypeRepair  ServiceType = "repair"
	ServiceTypeReplace ServiceType = "replace"
)

// Valid reports whether t is a known service type.
func (t ServiceType) Valid() bool {
	return t == ServiceTypeGeneral || t == ServiceTypeRepair || t == ServiceTypeReplace
}

// RequiresServiceReport is true for hardware work that is documented by a
// service report.
func (t ServiceType) RequiresServiceReport() bool {
	return t == ServiceTypeRepair || t == ServiceTypeReplace
}

// Ticket is the aggregate tracked by the workflow.
type Ticket struct {
	ID                     string
	ExternalKey            string
	Title                  string
	RequesterID            *string
	AssignedEngineerID     *string
	Status                 TicketStatus
	ServiceType            ServiceType
	ReopenCount            int
	MaxReopenCountOverride *int
	CreatedAt              time.Time
	UpdatedAt              time.Time
	ClosedAt               *time.Time
}

// Clone returns a deep copy so callers can stage changes.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	cp.RequesterID = cloneString(t.RequesterID)
	cp.AssignedEngineerID = cloneString(t.AssignedEngineerID)
	if t.MaxReopenCountOverride != nil {
		v := *t.MaxReopenCountOverride
		cp.MaxReopenCountOverride = &v
	}
	if t.ClosedAt != nil {
		v := *t.ClosedAt
		cp.ClosedAt = &v
	}
	return &cp
}

// TicketStatusChange carries the fields a transition writes alongside status.
type TicketStatusChange struct {
	Status             TicketStatus
	ClosedAt           *time.Time
	ClearClosedAt      bool
	ReopenCount        *int
	AssignedEngineerID *string
}

// Apply writes the change onto t.
func (c TicketStatusChange) Apply(t *Ticket, now time.Time) {
	t.Status = c.Status
	if c.ClosedAt != nil {
		v := *c.ClosedAt
		t.ClosedAt = &v
	}
	if c.ClearClosedAt {
		t.ClosedAt = nil
	}
	if c.ReopenCount != nil {
		t.ReopenCount = *c.ReopenCount
	}
	if c.AssignedEngineerID != nil {
		t.AssignedEngineerID = cloneString(c.AssignedEngineerID)
	}
	t.UpdatedAt = now
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
