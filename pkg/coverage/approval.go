package coverage

// ApprovalStatus is the review state of a coverage item.
type ApprovalStatus string

const (
	StatusPendingReview    ApprovalStatus = "pending_review"
	StatusAutoApproved     ApprovalStatus = "auto_approved"
	StatusManuallyApproved ApprovalStatus = "manually_approved"
	StatusRejected         ApprovalStatus = "rejected"
)

// Valid reports whether s is a known approval status.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case StatusPendingReview, StatusAutoApproved, StatusManuallyApproved, StatusRejected:
		return true
	}
	return false
}

// DetermineApprovalStatus maps a relevance score to the initial approval
// status assigned at insert time. Re-running a scan never re-scores an
// existing item; only the dedup key decides whether an item is touched.
func DetermineApprovalStatus(score int) ApprovalStatus {
	switch {
	case score >= 80:
		return StatusAutoApproved
	case score >= 50:
		return StatusPendingReview
	default:
		return StatusRejected
	}
}

// manualTransitions lists, per operator-selectable target status, the states
// an item may be in. manually_approved is terminal; there is no automatic
// transition out of auto_approved or manually_approved.
var manualTransitions = map[ApprovalStatus][]ApprovalStatus{
	StatusManuallyApproved: {StatusPendingReview, StatusRejected},
	StatusRejected:         {StatusPendingReview, StatusAutoApproved},
}

// ManualTarget reports whether operators may move items to the given status.
func ManualTarget(to ApprovalStatus) bool {
	_, ok := manualTransitions[to]
	return ok
}

// AllowedFrom returns the states from which an operator may transition an
// item to the given target, or nil when the target is not operator-settable.
func AllowedFrom(to ApprovalStatus) []ApprovalStatus {
	return manualTransitions[to]
}

// CanTransition reports whether an explicit operator action may move an item
// from one status to another.
func CanTransition(from, to ApprovalStatus) bool {
	for _, s := range manualTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}
