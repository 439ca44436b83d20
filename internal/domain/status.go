package domain

// allowedTransitions lists the edges callers may request. The archival
// sweep alone moves completed requests to archived.
var allowedTransitions = map[RequestStatus][]RequestStatus{
	StatusNew:              {StatusInProgress, StatusRevision, StatusAwaitingPurchase, StatusCompleted},
	StatusRevision:         {StatusNew, StatusInProgress},
	StatusInProgress:       {StatusCompleted, StatusAwaitingPurchase, StatusRevision},
	StatusAwaitingPurchase: {StatusInProgress, StatusCompleted},
	StatusCompleted:        {},
	StatusArchived:         {},
}

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// IsTerminal reports whether no caller-driven transition can leave s.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusArchived
}

// TerminalStatuses are the statuses visible in the archive.
func TerminalStatuses() []RequestStatus {
	return []RequestStatus{StatusCompleted, StatusArchived}
}

// ActiveStatuses are the statuses shown on the working board.
func ActiveStatuses() []RequestStatus {
	return []RequestStatus{StatusNew, StatusRevision, StatusInProgress, StatusAwaitingPurchase}
}

// CanTransition reports whether next is a direct successor of current.
func CanTransition(current, next RequestStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
