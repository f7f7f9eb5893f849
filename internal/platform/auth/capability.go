package auth

import (
	"fmt"
)

// Actor is the identity performing a workflow operation.
type Actor struct {
	ID    string
	Roles []string
}

// HasRole reports whether the actor holds the given role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Actions gated by the capability policy.
const (
	ActionSubmissionCreate   = "submission.create"
	ActionSubmissionSubmit   = "submission.submit"
	ActionSubmissionAssign   = "submission.assign_reviewers"
	ActionSubmissionDecide   = "submission.decide"
	ActionSubmissionWithdraw = "submission.withdraw"
	ActionReviewComplete     = "review.complete"
	ActionAdverseEventReport = "adverse_event.report"
	ActionAdverseEventSubmit = "adverse_event.submit"
	ActionDeviationReport    = "deviation.report"
	ActionDeviationResolve   = "deviation.resolve"
	ActionDeviationClose     = "deviation.close"
)

// CapabilityError is returned when policy denies an action.
type CapabilityError struct {
	ActorID string
	Action  string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("actor %s is not permitted to perform %s", e.ActorID, e.Action)
}

// Checker decides whether an actor may perform an action. Services call it
// before state-changing operations; handlers translate a denial to 403.
type Checker interface {
	CanPerform(actor Actor, action string) error
}

// PolicyChecker is a role-to-action policy table. Admin may perform any
// action.
type PolicyChecker struct {
	policies map[string][]string // action -> allowed roles
}

// NewPolicyChecker builds a checker from an action->roles table.
func NewPolicyChecker(policies map[string][]string) *PolicyChecker {
	return &PolicyChecker{policies: policies}
}

// DefaultPolicies is the standard IRB role policy.
func DefaultPolicies() map[string][]string {
	return map[string][]string{
		ActionSubmissionCreate:   {RoleCoordinator, RoleInvestigator},
		ActionSubmissionSubmit:   {RoleCoordinator, RoleInvestigator},
		ActionSubmissionAssign:   {RoleCoordinator},
		ActionSubmissionDecide:   {RoleCoordinator},
		ActionSubmissionWithdraw: {RoleCoordinator, RoleInvestigator},
		ActionReviewComplete:     {RoleReviewer, RoleCoordinator},
		ActionAdverseEventReport: {RoleInvestigator, RoleCoordinator, RoleSafetyOfficer},
		ActionAdverseEventSubmit: {RoleInvestigator, RoleCoordinator, RoleSafetyOfficer},
		ActionDeviationReport:    {RoleInvestigator, RoleCoordinator},
		ActionDeviationResolve:   {RoleInvestigator, RoleCoordinator},
		ActionDeviationClose:     {RoleCoordinator},
	}
}

func (p *PolicyChecker) CanPerform(actor Actor, action string) error {
	if actor.HasRole(RoleAdmin) {
		return nil
	}
	allowed, ok := p.policies[action]
	if !ok {
		return &CapabilityError{ActorID: actor.ID, Action: action}
	}
	for _, role := range allowed {
		if actor.HasRole(role) {
			return nil
		}
	}
	return &CapabilityError{ActorID: actor.ID, Action: action}
}

// AllowAll permits every action; used in tests and dev wiring.
type AllowAll struct{}

func (AllowAll) CanPerform(Actor, string) error { return nil }
