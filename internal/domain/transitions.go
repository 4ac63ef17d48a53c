package domain

// allowedTransitions lists every status change the workflow may perform.
// Closed is reopenable; cancelled is terminal.
var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:           {TicketStatusAssigned, TicketStatusCancelled},
	TicketStatusAssigned:       {TicketStatusAssigned, TicketStatusInProgress, TicketStatusCancelled},
	TicketStatusInProgress:     {TicketStatusPendingClosure, TicketStatusAssigned, TicketStatusCancelled},
	TicketStatusPendingClosure: {TicketStatusClosed, TicketStatusInProgress},
	TicketStatusResolved:       {TicketStatusClosed, TicketStatusInProgress},
	TicketStatusClosed:         {TicketStatusInProgress},
	TicketStatusCancelled:      {},
}

// CanTransition reports whether a ticket may move from current to next.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
