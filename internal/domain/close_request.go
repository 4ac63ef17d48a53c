package domain

import "time"

// CloseRequestStatus tracks the review outcome of a close request.
type CloseRequestStatus string

const (
	CloseRequestPending  CloseRequestStatus = "pending"
	CloseRequestApproved CloseRequestStatus = "approved"
	CloseRequestRejected CloseRequestStatus = "rejected"
)

// ReviewAction is the coordinator's decision on a close request.
type ReviewAction string

const (
	ReviewApproved ReviewAction = "approved"
	ReviewRejected ReviewAction = "rejected"
)

// Valid reports whether a is approved or rejected.
func (a ReviewAction) Valid() bool {
	return a == ReviewApproved || a == ReviewRejected
}

// CloseRequest is an engineer's request to close a ticket. It is reviewed
// exactly once.
type CloseRequest struct {
	ID              string
	TicketID        string
	EngineerID      string
	RequestNotes    string
	ServiceReportID *string
	RequestStatus   CloseRequestStatus
	CreatedAt       time.Time
	ReviewedAt      *time.Time
	ReviewerID      *string
	ReviewNotes     *string
}

// Clone returns a deep copy.
func (r *CloseRequest) Clone() *CloseRequest {
	if r == nil {
		return nil
	}
	cp := *r
	cp.ServiceReportID = cloneString(r.ServiceReportID)
	cp.ReviewerID = cloneString(r.ReviewerID)
	cp.ReviewNotes = cloneString(r.ReviewNotes)
	if r.ReviewedAt != nil {
		v := *r.ReviewedAt
		cp.ReviewedAt = &v
	}
	return &cp
}

// CloseRequestReview is the single write a pending request receives.
type CloseRequestReview struct {
	Status      CloseRequestStatus
	ReviewerID  string
	ReviewNotes *string
	ReviewedAt  time.Time
}
