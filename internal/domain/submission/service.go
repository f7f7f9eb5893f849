package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/irbhub/irbhub/internal/platform/audit"
	"github.com/irbhub/irbhub/internal/platform/auth"
	"github.com/irbhub/irbhub/internal/platform/clock"
	"github.com/irbhub/irbhub/internal/platform/db"
	"github.com/irbhub/irbhub/internal/platform/documents"
	"github.com/irbhub/irbhub/internal/platform/errs"
	"github.com/irbhub/irbhub/internal/platform/notify"
)

// ErrNoReviewerAvailable is returned when expedited auto-assignment finds
// no reviewer.
var ErrNoReviewerAvailable = errors.New("no expedited reviewer available")

const expeditedReviewDays = 7

// systemActor attributes audit entries for decisions the engine issues
// itself, such as exempt auto-approval.
const systemActor = "system"

// Service orchestrates the submission workflow. Every mutation runs in one
// transaction covering the state change, dependent rows, and the audit
// entry; notifications fire after commit.
type Service struct {
	repo    Repository
	reviews ReviewRepository
	runner  db.Runner

	docs      documents.Registry
	directory ReviewerDirectory
	notifier  notify.Notifier
	audit     *audit.Recorder
	caps      auth.Checker
	clock     clock.Clock
	logger    zerolog.Logger

	// Exempt categories approved without convened board review.
	autoApprove map[string]struct{}
}

// Config wires the service's collaborators.
type Config struct {
	Repo              Repository
	Reviews           ReviewRepository
	Runner            db.Runner
	Documents         documents.Registry
	Directory         ReviewerDirectory
	Notifier          notify.Notifier
	Audit             *audit.Recorder
	Capabilities      auth.Checker
	Clock             clock.Clock
	Logger            zerolog.Logger
	AutoApproveExempt []string
}

func NewService(cfg Config) *Service {
	auto := make(map[string]struct{}, len(cfg.AutoApproveExempt))
	for _, cat := range cfg.AutoApproveExempt {
		auto[cat] = struct{}{}
	}
	return &Service{
		repo:        cfg.Repo,
		reviews:     cfg.Reviews,
		runner:      cfg.Runner,
		docs:        cfg.Documents,
		directory:   cfg.Directory,
		notifier:    cfg.Notifier,
		audit:       cfg.Audit,
		caps:        cfg.Capabilities,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		autoApprove: auto,
	}
}

// CreateInput carries the caller-authoritative fields for a new submission.
type CreateInput struct {
	StudyID             uuid.UUID   `json:"study_id"`
	Type                Type        `json:"submission_type"`
	ReviewType          ReviewType  `json:"review_type"`
	Title               string      `json:"title"`
	Description         string      `json:"description"`
	DocumentIDs         []uuid.UUID `json:"document_ids"`
	ExpeditedCategories []string    `json:"expedited_categories"`
	ExemptCategory      string      `json:"exempt_category"`
}

// Create makes a new DRAFT submission.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Submission, error) {
	if err := s.caps.CanPerform(actor, auth.ActionSubmissionCreate); err != nil {
		return nil, err
	}
	var missing []string
	if in.StudyID == uuid.Nil {
		missing = append(missing, "study_id")
	}
	if in.Type == "" {
		missing = append(missing, "submission_type")
	}
	if in.ReviewType == "" {
		missing = append(missing, "review_type")
	}
	if in.Title == "" {
		missing = append(missing, "title")
	}
	if len(missing) > 0 {
		return nil, errs.Validation(missing...)
	}

	now := s.clock.Now()
	sub := &Submission{
		ID:                  uuid.New(),
		StudyID:             in.StudyID,
		Type:                in.Type,
		ReviewType:          in.ReviewType,
		Status:              StatusDraft,
		Title:               in.Title,
		Description:         in.Description,
		DocumentIDs:         in.DocumentIDs,
		ExpeditedCategories: in.ExpeditedCategories,
		ExemptCategory:      in.ExemptCategory,
		CreatedBy:           actor.ID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, sub); err != nil {
			return fmt.Errorf("create submission: %w", err)
		}
		s.audit.Record(ctx, actor.ID, "submission.create", "submission", sub.ID.String(),
			nil, audit.Snapshot(sub), nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Get retrieves a submission.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Submission, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errs.NotFound("submission", id.String())
	}
	return sub, nil
}

// List returns submissions matching the filter with the total count.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Submission, int, error) {
	return s.repo.List(ctx, f)
}

// UpdateInput carries caller-editable draft fields.
type UpdateInput struct {
	Title               *string     `json:"title"`
	Description         *string     `json:"description"`
	DocumentIDs         []uuid.UUID `json:"document_ids"`
	ExpeditedCategories []string    `json:"expedited_categories"`
	ExemptCategory      *string     `json:"exempt_category"`
}

// Update edits a submission's content. Content edits are only allowed before
// a decision is final; status is never writable here.
func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in UpdateInput) (*Submission, error) {
	var updated *Submission
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		sub, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return errs.NotFound("submission", id.String())
		}
		if Terminal(sub.Status) {
			return errs.Precondition("submission", string(sub.Status), "update")
		}
		old := audit.Snapshot(sub)

		if in.Title != nil {
			sub.Title = *in.Title
		}
		if in.Description != nil {
			sub.Description = *in.Description
		}
		if in.DocumentIDs != nil {
			sub.DocumentIDs = in.DocumentIDs
		}
		if in.ExpeditedCategories != nil {
			sub.ExpeditedCategories = in.ExpeditedCategories
		}
		if in.ExemptCategory != nil {
			sub.ExemptCategory = *in.ExemptCategory
		}
		sub.UpdatedAt = s.clock.Now()

		if err := s.repo.Update(ctx, sub); err != nil {
			return fmt.Errorf("update submission: %w", err)
		}
		s.audit.Record(ctx, actor.ID, "submission.update", "submission", sub.ID.String(),
			old, audit.Snapshot(sub), nil)
		updated = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// validateReadiness collects everything still missing before a submission
// can enter review. All requirements are reported at once.
func (s *Service) validateReadiness(ctx context.Context, sub *Submission) error {
	var missing []string
	if len(sub.DocumentIDs) == 0 {
		missing = append(missing, "at least one document")
	} else if sub.Type == TypeInitial {
		hasProtocol, err := s.docs.HasDocumentOfType(ctx, sub.DocumentIDs, documents.TypeProtocol)
		if err != nil {
			return errs.Dependency("document registry", err)
		}
		if !hasProtocol {
			missing = append(missing, "protocol document")
		}
		hasConsent, err := s.docs.HasDocumentOfType(ctx, sub.DocumentIDs, documents.TypeInformedConsent)
		if err != nil {
			return errs.Dependency("document registry", err)
		}
		if !hasConsent {
			missing = append(missing, "informed consent document")
		}
	}
	if sub.ReviewType == ReviewExpedited && len(sub.ExpeditedCategories) == 0 {
		missing = append(missing, "at least one expedited category")
	}
	if len(missing) > 0 {
		return errs.Validation(missing...)
	}
	return nil
}

// SubmitForReview moves a DRAFT submission into the review pipeline.
// Expedited submissions are auto-assigned one reviewer with a 7-day due
// date; exempt submissions in an auto-approve category are approved
// immediately after submission.
func (s *Service) SubmitForReview(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Submission, error) {
	if err := s.caps.CanPerform(actor, auth.ActionSubmissionSubmit); err != nil {
		return nil, err
	}

	var (
		sub              *Submission
		assignedReviewer string
	)
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return errs.NotFound("submission", id.String())
		}
		if cur.Status != StatusDraft {
			return errs.Precondition("submission", string(cur.Status), "submit")
		}
		if err := s.validateReadiness(ctx, cur); err != nil {
			return err
		}
		old := audit.Snapshot(cur)

		now := s.clock.Now()
		cur.Status = StatusSubmitted
		cur.SubmittedAt = &now
		cur.UpdatedAt = now

		if cur.ReviewType == ReviewExpedited {
			reviewerID, err := s.directory.NextExpeditedReviewer(ctx)
			if err != nil {
				return fmt.Errorf("assign expedited reviewer: %w", err)
			}
			due := now.AddDate(0, 0, expeditedReviewDays)
			if err := s.assignLocked(ctx, cur, []Assignment{{ReviewerID: reviewerID, Role: RolePrimary, DueDate: &due}}, now); err != nil {
				return err
			}
			assignedReviewer = reviewerID
		}

		if err := s.repo.Update(ctx, cur); err != nil {
			return fmt.Errorf("update submission: %w", err)
		}
		s.audit.Record(ctx, actor.ID, "submission.submit", "submission", cur.ID.String(),
			old, audit.Snapshot(cur), nil)
		sub = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.fire(ctx, notify.TriggerSubmissionReceived, map[string]string{
		"submission_id": sub.ID.String(),
		"study_id":      sub.StudyID.String(),
	})
	if assignedReviewer != "" {
		s.fireUser(ctx, assignedReviewer, "review-assigned", map[string]string{
			"submission_id": sub.ID.String(),
			"role":          string(RolePrimary),
			"due_date":      s.clock.Now().AddDate(0, 0, expeditedReviewDays).Format("2006-01-02"),
		})
	}

	// Exempt categories on the auto-approve list are decided by the
	// system, not the submitter, so no decide capability is required.
	if sub.ReviewType == ReviewExempt {
		if _, ok := s.autoApprove[sub.ExemptCategory]; ok {
			return s.decide(ctx, systemActor, sub.ID, DecisionInput{Decision: DecisionApproved})
		}
	}
	return sub, nil
}

// Assignment names one reviewer and their role on the submission.
type Assignment struct {
	ReviewerID string       `json:"reviewer_id"`
	Role       ReviewerRole `json:"role"`
	DueDate    *time.Time   `json:"due_date"`
}

// assignLocked creates Review rows and moves the submission to
// UNDER_REVIEW. The caller holds the transaction and persists sub.
func (s *Service) assignLocked(ctx context.Context, sub *Submission, assignments []Assignment, now time.Time) error {
	for _, a := range assignments {
		review := &Review{
			ID:           uuid.New(),
			SubmissionID: sub.ID,
			ReviewerID:   a.ReviewerID,
			Role:         a.Role,
			Status:       ReviewAssigned,
			DueDate:      a.DueDate,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.reviews.Create(ctx, review); err != nil {
			return fmt.Errorf("create review: %w", err)
		}
		sub.AssignedReviewerIDs = append(sub.AssignedReviewerIDs, a.ReviewerID)
	}
	sub.Status = StatusUnderReview

	// Initial submissions get their continuing-review clock started at
	// assignment: one year out, three for exempt studies.
	if sub.Type == TypeInitial && sub.NextReviewDue == nil {
		due := nextContinuingReview(now, sub.ReviewType)
		sub.NextReviewDue = &due
	}
	return nil
}

func nextContinuingReview(from time.Time, rt ReviewType) time.Time {
	if rt == ReviewExempt {
		return from.AddDate(3, 0, 0)
	}
	return from.AddDate(1, 0, 0)
}

// AssignReviewers assigns the reviewer set to a SUBMITTED submission.
func (s *Service) AssignReviewers(ctx context.Context, actor auth.Actor, id uuid.UUID, assignments []Assignment) (*Submission, error) {
	if err := s.caps.CanPerform(actor, auth.ActionSubmissionAssign); err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, errs.Validation("at least one reviewer")
	}
	for _, a := range assignments {
		if a.ReviewerID == "" {
			return nil, errs.Validation("reviewer_id")
		}
	}

	var sub *Submission
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return errs.NotFound("submission", id.String())
		}
		if cur.Status != StatusSubmitted {
			return errs.Precondition("submission", string(cur.Status), "assign-reviewers")
		}
		old := audit.Snapshot(cur)

		now := s.clock.Now()
		if err := s.assignLocked(ctx, cur, assignments, now); err != nil {
			return err
		}
		cur.UpdatedAt = now

		if err := s.repo.Update(ctx, cur); err != nil {
			return fmt.Errorf("update submission: %w", err)
		}
		s.audit.Record(ctx, actor.ID, "submission.assign_reviewers", "submission", cur.ID.String(),
			old, audit.Snapshot(cur), nil)
		sub = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, a := range assignments {
		data := map[string]string{
			"submission_id": sub.ID.String(),
			"role":          string(a.Role),
		}
		if a.DueDate != nil {
			data["due_date"] = a.DueDate.Format("2006-01-02")
		}
		s.fireUser(ctx, a.ReviewerID, "review-assigned", data)
	}
	return sub, nil
}

// DecisionInput carries a board decision.
type DecisionInput struct {
	Decision       Decision   `json:"decision"`
	Conditions     []string   `json:"conditions"`
	Modifications  []string   `json:"modifications"`
	ExpirationDate *time.Time `json:"expiration_date"`
}

// MakeDecision records the board's decision on a SUBMITTED or UNDER_REVIEW
// submission.
func (s *Service) MakeDecision(ctx context.Context, actor auth.Actor, id uuid.UUID, in DecisionInput) (*Submission, error) {
	if err := s.caps.CanPerform(actor, auth.ActionSubmissionDecide); err != nil {
		return nil, err
	}
	return s.decide(ctx, actor.ID, id, in)
}

// decide applies a board decision. The capability check lives in
// MakeDecision; exempt auto-approval comes through here directly because
// the system, not the submitter, issues that decision.
func (s *Service) decide(ctx context.Context, actorID string, id uuid.UUID, in DecisionInput) (*Submission, error) {
	target, decided := decisionStatus(in.Decision)
	if target == "" {
		return nil, errs.Validation("decision")
	}

	var sub *Submission
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return errs.NotFound("submission", id.String())
		}
		if cur.Status != StatusSubmitted && cur.Status != StatusUnderReview {
			return errs.Precondition("submission", string(cur.Status), "decision")
		}
		old := audit.Snapshot(cur)

		now := s.clock.Now()
		cur.Status = target
		cur.Conditions = in.Conditions
		cur.Modifications = in.Modifications
		cur.ExpirationDate = in.ExpirationDate
		cur.UpdatedAt = now
		if decided {
			d := in.Decision
			cur.Decision = &d
			cur.DecidedAt = &now
		} else {
			// Deferral-style outcomes leave the submission undecided.
			cur.Decision = nil
			cur.DecidedAt = nil
		}

		if decided && cur.Status != StatusDisapproved && cur.Type == TypeInitial && cur.NextReviewDue == nil {
			due := nextContinuingReview(now, cur.ReviewType)
			cur.NextReviewDue = &due
		}

		// A decided submission is terminal; no review may stay open
		// past it.
		if decided {
			if err := s.cancelOpenReviews(ctx, cur.ID, now); err != nil {
				return err
			}
		}

		if err := s.repo.Update(ctx, cur); err != nil {
			return fmt.Errorf("update submission: %w", err)
		}
		s.audit.Record(ctx, actorID, "submission.decision", "submission", cur.ID.String(),
			old, audit.Snapshot(cur), map[string]string{"decision": string(in.Decision)})
		sub = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.fire(ctx, notify.TriggerDecisionIssued, map[string]string{
		"submission_id": sub.ID.String(),
		"study_id":      sub.StudyID.String(),
		"decision":      string(in.Decision),
	})
	return sub, nil
}

// cancelOpenReviews cancels every ASSIGNED or IN_PROGRESS review on the
// submission. Runs inside the caller's transaction.
func (s *Service) cancelOpenReviews(ctx context.Context, submissionID uuid.UUID, now time.Time) error {
	reviews, err := s.reviews.ListBySubmission(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("list reviews: %w", err)
	}
	for _, rev := range reviews {
		if !rev.Open() {
			continue
		}
		rev.Status = ReviewCancelled
		rev.UpdatedAt = now
		if err := s.reviews.Update(ctx, rev); err != nil {
			return fmt.Errorf("cancel review %s: %w", rev.ID, err)
		}
	}
	return nil
}

// Withdraw pulls a submission out of review and cancels its open reviews.
func (s *Service) Withdraw(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*Submission, error) {
	if err := s.caps.CanPerform(actor, auth.ActionSubmissionWithdraw); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, errs.Validation("reason")
	}

	var sub *Submission
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return errs.NotFound("submission", id.String())
		}
		if Terminal(cur.Status) {
			return errs.Precondition("submission", string(cur.Status), "withdraw")
		}
		old := audit.Snapshot(cur)

		now := s.clock.Now()
		if err := s.cancelOpenReviews(ctx, cur.ID, now); err != nil {
			return err
		}

		cur.Status = StatusWithdrawn
		cur.WithdrawalReason = reason
		cur.UpdatedAt = now

		if err := s.repo.Update(ctx, cur); err != nil {
			return fmt.Errorf("update submission: %w", err)
		}
		s.audit.Record(ctx, actor.ID, "submission.withdraw", "submission", cur.ID.String(),
			old, audit.Snapshot(cur), map[string]string{"reason": reason})
		sub = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.fire(ctx, notify.TriggerSubmissionWithdrawn, map[string]string{
		"submission_id": sub.ID.String(),
		"study_id":      sub.StudyID.String(),
		"reason":        reason,
	})
	return sub, nil
}

// StartReview moves an assigned review to IN_PROGRESS. Only the assigned
// reviewer may start it.
func (s *Service) StartReview(ctx context.Context, actor auth.Actor, reviewID uuid.UUID) (*Review, error) {
	var review *Review
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.reviews.GetByID(ctx, reviewID)
		if err != nil {
			return errs.NotFound("review", reviewID.String())
		}
		if cur.ReviewerID != actor.ID && !actor.HasRole(auth.RoleAdmin) {
			return &auth.CapabilityError{ActorID: actor.ID, Action: "review.start"}
		}
		if cur.Status != ReviewAssigned {
			return errs.Precondition("review", string(cur.Status), "start")
		}
		cur.Status = ReviewInProgress
		cur.UpdatedAt = s.clock.Now()
		if err := s.reviews.Update(ctx, cur); err != nil {
			return fmt.Errorf("update review: %w", err)
		}
		s.audit.Record(ctx, actor.ID, "review.start", "review", cur.ID.String(), nil, audit.Snapshot(cur), nil)
		review = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

// CompleteReview records the reviewer's recommendation and closes the
// review.
func (s *Service) CompleteReview(ctx context.Context, actor auth.Actor, reviewID uuid.UUID, recommendation string) (*Review, error) {
	if err := s.caps.CanPerform(actor, auth.ActionReviewComplete); err != nil {
		return nil, err
	}
	if recommendation == "" {
		return nil, errs.Validation("recommendation")
	}

	var review *Review
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.reviews.GetByID(ctx, reviewID)
		if err != nil {
			return errs.NotFound("review", reviewID.String())
		}
		if cur.ReviewerID != actor.ID && !actor.HasRole(auth.RoleAdmin) && !actor.HasRole(auth.RoleCoordinator) {
			return &auth.CapabilityError{ActorID: actor.ID, Action: auth.ActionReviewComplete}
		}
		if !cur.Open() {
			return errs.Precondition("review", string(cur.Status), "complete")
		}
		old := audit.Snapshot(cur)

		now := s.clock.Now()
		cur.Status = ReviewCompleted
		cur.Recommendation = recommendation
		cur.CompletedAt = &now
		cur.UpdatedAt = now
		if err := s.reviews.Update(ctx, cur); err != nil {
			return fmt.Errorf("update review: %w", err)
		}
		s.audit.Record(ctx, actor.ID, "review.complete", "review", cur.ID.String(), old, audit.Snapshot(cur), nil)
		review = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

// CancelReview cancels an open review without touching the submission,
// for reviewer reassignment. Coordinators and admins only.
func (s *Service) CancelReview(ctx context.Context, actor auth.Actor, reviewID uuid.UUID) (*Review, error) {
	if !actor.HasRole(auth.RoleCoordinator) && !actor.HasRole(auth.RoleAdmin) {
		return nil, &auth.CapabilityError{ActorID: actor.ID, Action: "review.cancel"}
	}

	var review *Review
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.reviews.GetByID(ctx, reviewID)
		if err != nil {
			return errs.NotFound("review", reviewID.String())
		}
		if !cur.Open() {
			return errs.Precondition("review", string(cur.Status), "cancel")
		}
		old := audit.Snapshot(cur)

		cur.Status = ReviewCancelled
		cur.UpdatedAt = s.clock.Now()
		if err := s.reviews.Update(ctx, cur); err != nil {
			return fmt.Errorf("update review: %w", err)
		}
		s.audit.Record(ctx, actor.ID, "review.cancel", "review", cur.ID.String(), old, audit.Snapshot(cur), nil)
		review = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

// ListReviews returns all reviews on a submission.
func (s *Service) ListReviews(ctx context.Context, submissionID uuid.UUID) ([]*Review, error) {
	return s.reviews.ListBySubmission(ctx, submissionID)
}

// ListReviewsByReviewer returns a reviewer's assignments across
// submissions.
func (s *Service) ListReviewsByReviewer(ctx context.Context, reviewerID string) ([]*Review, error) {
	return s.reviews.ListByReviewer(ctx, reviewerID)
}

// ListContinuingReviewDue exposes the continuing-review scan for the
// compliance monitor.
func (s *Service) ListContinuingReviewDue(ctx context.Context, before time.Time) ([]*Submission, error) {
	return s.repo.ListContinuingReviewDue(ctx, before)
}

// ListOverdueReviews exposes the overdue-review scan for the compliance
// monitor.
func (s *Service) ListOverdueReviews(ctx context.Context, asOf time.Time) ([]*Review, error) {
	return s.reviews.ListOverdue(ctx, asOf)
}

// fire dispatches a workflow notification after commit. Delivery failures
// are logged, never surfaced.
func (s *Service) fire(ctx context.Context, kind notify.TriggerKind, data map[string]string) {
	if err := s.notifier.Trigger(ctx, kind, data); err != nil {
		s.logger.Error().Err(err).Str("trigger", string(kind)).Msg("notification dispatch failed")
	}
}

func (s *Service) fireUser(ctx context.Context, userID, template string, data map[string]string) {
	if err := s.notifier.TriggerUser(ctx, userID, template, data); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("template", template).Msg("notification dispatch failed")
	}
}
