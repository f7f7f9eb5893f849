// Package submission implements the IRB submission workflow: draft
// submissions, reviewer assignment, board decisions, and withdrawal, with
// guarded status transitions and transactional side effects.
package submission

import (
	"time"

	"github.com/google/uuid"
)

// Type is the kind of IRB review request.
type Type string

const (
	TypeInitial          Type = "INITIAL"
	TypeAmendment        Type = "AMENDMENT"
	TypeContinuingReview Type = "CONTINUING_REVIEW"
	TypeReportableEvent  Type = "REPORTABLE_EVENT"
	TypeStudyClosure     Type = "STUDY_CLOSURE"
	TypeEmergencyUse     Type = "EMERGENCY_USE"
)

// ReviewType is the review pathway the submission requests.
type ReviewType string

const (
	ReviewFullBoard        ReviewType = "FULL_BOARD"
	ReviewExpedited        ReviewType = "EXPEDITED"
	ReviewExempt           ReviewType = "EXEMPT"
	ReviewNotHumanSubjects ReviewType = "NOT_HUMAN_SUBJECTS"
)

// Status is the submission lifecycle state.
type Status string

const (
	StatusDraft                  Status = "DRAFT"
	StatusSubmitted              Status = "SUBMITTED"
	StatusUnderReview            Status = "UNDER_REVIEW"
	StatusApproved               Status = "APPROVED"
	StatusApprovedWithConditions Status = "APPROVED_WITH_CONDITIONS"
	StatusDisapproved            Status = "DISAPPROVED"
	StatusPendingClarification   Status = "PENDING_CLARIFICATION"
	StatusWithdrawn              Status = "WITHDRAWN"
)

// Decision is a board decision on a submission.
type Decision string

const (
	DecisionApproved               Decision = "APPROVED"
	DecisionApprovedWithConditions Decision = "APPROVED_WITH_CONDITIONS"
	DecisionDisapproved            Decision = "DISAPPROVED"
	DecisionDeferred               Decision = "DEFERRED"
	DecisionTabled                 Decision = "TABLED"
	DecisionRequiresModifications  Decision = "REQUIRES_MODIFICATIONS"
)

// Submission is an IRB review request for a study.
type Submission struct {
	ID                  uuid.UUID   `json:"id"`
	StudyID             uuid.UUID   `json:"study_id"`
	Type                Type        `json:"submission_type"`
	ReviewType          ReviewType  `json:"review_type"`
	Status              Status      `json:"status"`
	Title               string      `json:"title"`
	Description         string      `json:"description,omitempty"`
	DocumentIDs         []uuid.UUID `json:"document_ids"`
	ExpeditedCategories []string    `json:"expedited_categories,omitempty"`
	ExemptCategory      string      `json:"exempt_category,omitempty"`
	AssignedReviewerIDs []string    `json:"assigned_reviewer_ids"`

	// Decision is set if and only if the status is one of the three
	// decision-terminal states.
	Decision      *Decision `json:"decision,omitempty"`
	Conditions    []string  `json:"conditions,omitempty"`
	Modifications []string  `json:"modifications,omitempty"`

	WithdrawalReason string     `json:"withdrawal_reason,omitempty"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	DecidedAt        *time.Time `json:"decided_at,omitempty"`
	ExpirationDate   *time.Time `json:"expiration_date,omitempty"`
	NextReviewDue    *time.Time `json:"next_review_due,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReviewerRole is the role a reviewer plays on a submission.
type ReviewerRole string

const (
	RolePrimary   ReviewerRole = "PRIMARY"
	RoleSecondary ReviewerRole = "SECONDARY"
	RoleMember    ReviewerRole = "MEMBER"
)

// ReviewStatus is the lifecycle state of a single reviewer's review.
type ReviewStatus string

const (
	ReviewAssigned   ReviewStatus = "ASSIGNED"
	ReviewInProgress ReviewStatus = "IN_PROGRESS"
	ReviewCompleted  ReviewStatus = "COMPLETED"
	ReviewCancelled  ReviewStatus = "CANCELLED"
)

// Review is one reviewer's assignment on a submission.
type Review struct {
	ID             uuid.UUID    `json:"id"`
	SubmissionID   uuid.UUID    `json:"submission_id"`
	ReviewerID     string       `json:"reviewer_id"`
	Role           ReviewerRole `json:"role"`
	Status         ReviewStatus `json:"status"`
	Recommendation string       `json:"recommendation,omitempty"`
	DueDate        *time.Time   `json:"due_date,omitempty"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Open reports whether the review is still pending work.
func (r *Review) Open() bool {
	return r.Status == ReviewAssigned || r.Status == ReviewInProgress
}
