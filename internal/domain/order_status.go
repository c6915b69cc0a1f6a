package domain

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// IsTerminal reports whether no further transition may leave s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed || s == OrderStatusRejected
}

func (s OrderStatus) Valid() bool {
	return s == OrderStatusPending || s.IsTerminal()
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}

// CanTransitionTo allows PENDING to move to any terminal status and allows
// re-applying the status a record already holds, which keeps keyed updates
// idempotent.
func CanTransitionTo(from, to OrderStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	return from == OrderStatusPending && to.IsTerminal()
}

// ReconciliationState tracks a single reconciliation attempt.
type ReconciliationState string

const (
	ReconciliationStarted            ReconciliationState = "STARTED"
	ReconciliationVerifying          ReconciliationState = "VERIFYING"
	ReconciliationResolved           ReconciliationState = "RESOLVED"
	ReconciliationVerificationFailed ReconciliationState = "VERIFICATION_FAILED"
)

func (s ReconciliationState) String() string {
	return string(s)
}
