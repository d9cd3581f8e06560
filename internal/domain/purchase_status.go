package domain

type PurchaseStatus string

const (
	PurchaseStatusValidating PurchaseStatus = "VALIDATING"
	PurchaseStatusApplying   PurchaseStatus = "APPLYING"
	PurchaseStatusCommitted  PurchaseStatus = "COMMITTED"
	PurchaseStatusRejected   PurchaseStatus = "REJECTED"
)

var purchaseTransitions = map[PurchaseStatus][]PurchaseStatus{
	PurchaseStatusValidating: {PurchaseStatusApplying, PurchaseStatusRejected},
	// a failed stock guard while applying rolls everything back
	PurchaseStatusApplying: {PurchaseStatusCommitted, PurchaseStatusRejected},
}

func (s PurchaseStatus) IsTerminal() bool {
	return s == PurchaseStatusCommitted || s == PurchaseStatusRejected
}

// String representation (for logging)
func (s PurchaseStatus) String() string {
	return string(s)
}

func CanTransitionTo(from, to PurchaseStatus) bool {
	for _, next := range purchaseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
