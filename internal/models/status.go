package models

// RequestStatus is the per-request state machine:
//
//	PENDING -> PROCESSING -> {COMPLETED, FAILED}
//	COMPLETED -> EXPIRED
//
// FAILED and EXPIRED are terminal. Transitions only move forward; every
// non-initial state has exactly one legal predecessor, which lets stores
// enforce legality with a single conditional update.
type RequestStatus string

const (
	StatusPending    RequestStatus = "PENDING"
	StatusProcessing RequestStatus = "PROCESSING"
	StatusCompleted  RequestStatus = "COMPLETED"
	StatusFailed     RequestStatus = "FAILED"
	StatusExpired    RequestStatus = "EXPIRED"
)

var statusPredecessor = map[RequestStatus]RequestStatus{
	StatusProcessing: StatusPending,
	StatusCompleted:  StatusProcessing,
	StatusFailed:     StatusProcessing,
	StatusExpired:    StatusCompleted,
}

// Predecessor returns the only state a request may be in for a transition
// to s to be legal. ok is false for PENDING, which is never a target.
func (s RequestStatus) Predecessor() (RequestStatus, bool) {
	p, ok := statusPredecessor[s]
	return p, ok
}

// CanTransitionTo reports whether moving from s to next is a legal step.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	p, ok := statusPredecessor[next]
	return ok && p == s
}

// Terminal reports whether no further transition is legal from s.
func (s RequestStatus) Terminal() bool {
	return s == StatusFailed || s == StatusExpired
}

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusExpired:
		return true
	}
	return false
}
