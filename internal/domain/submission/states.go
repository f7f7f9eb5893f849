package submission

// transitions enumerates the legal status transitions. WITHDRAWN is
// reachable from any non-terminal state and handled separately.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusUnderReview, StatusApproved, StatusApprovedWithConditions, StatusDisapproved, StatusPendingClarification},
	StatusUnderReview: {StatusApproved, StatusApprovedWithConditions, StatusDisapproved, StatusPendingClarification},
	StatusPendingClarification: {StatusSubmitted, StatusUnderReview},
}

// Terminal reports whether no further transitions are allowed from s.
func Terminal(s Status) bool {
	switch s {
	case StatusApproved, StatusApprovedWithConditions, StatusDisapproved, StatusWithdrawn:
		return true
	}
	return false
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	if to == StatusWithdrawn {
		return !Terminal(from)
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// decisionStatus maps a board decision to the resulting submission status.
// Deferral-style decisions land in PENDING_CLARIFICATION and do not count
// as a recorded decision.
func decisionStatus(d Decision) (status Status, decided bool) {
	switch d {
	case DecisionApproved:
		return StatusApproved, true
	case DecisionApprovedWithConditions:
		return StatusApprovedWithConditions, true
	case DecisionDisapproved:
		return StatusDisapproved, true
	case DecisionDeferred, DecisionTabled, DecisionRequiresModifications:
		return StatusPendingClarification, false
	}
	return "", false
}
