package deviation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/irbhub/irbhub/internal/platform/audit"
	"github.com/irbhub/irbhub/internal/platform/auth"
	"github.com/irbhub/irbhub/internal/platform/clock"
	"github.com/irbhub/irbhub/internal/platform/db"
	"github.com/irbhub/irbhub/internal/platform/errs"
	"github.com/irbhub/irbhub/internal/platform/notify"
)

// Service orchestrates the deviation workflow. Reporting obligations are
// recomputed on every write; notifications repeat only when the
// obligation set actually changed.
type Service struct {
	repo     Repository
	runner   db.Runner
	notifier notify.Notifier
	audit    *audit.Recorder
	caps     auth.Checker
	clock    clock.Clock
	logger   zerolog.Logger
}

type Config struct {
	Repo         Repository
	Runner       db.Runner
	Notifier     notify.Notifier
	Audit        *audit.Recorder
	Capabilities auth.Checker
	Clock        clock.Clock
	Logger       zerolog.Logger
}

func NewService(cfg Config) *Service {
	return &Service{
		repo:     cfg.Repo,
		runner:   cfg.Runner,
		notifier: cfg.Notifier,
		audit:    cfg.Audit,
		caps:     cfg.Capabilities,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
}

// ReportInput carries the caller-authoritative fields of a new deviation.
type ReportInput struct {
	StudyID              uuid.UUID     `json:"study_id"`
	ParticipantID        *uuid.UUID    `json:"participant_id"`
	Type                 DeviationType `json:"deviation_type"`
	Severity             Severity      `json:"severity"`
	Description          string        `json:"description"`
	DeviationDate        *time.Time    `json:"deviation_date"`
	IdentifiedDate       *time.Time    `json:"identified_date"`
	AffectsSafety        bool          `json:"affects_safety"`
	AffectsDataIntegrity bool          `json:"affects_data_integrity"`
	AffectsStudyValidity bool          `json:"affects_study_validity"`
	RootCause            string        `json:"root_cause"`
}

// Report records a deviation in REPORTED, classifies it, and notifies the
// oversight bodies its flags require.
func (s *Service) Report(ctx context.Context, actor auth.Actor, in ReportInput) (*Deviation, error) {
	if err := s.caps.CanPerform(actor, auth.ActionDeviationReport); err != nil {
		return nil, err
	}
	var missing []string
	if in.StudyID == uuid.Nil {
		missing = append(missing, "study_id")
	}
	if in.Type == "" {
		missing = append(missing, "deviation_type")
	}
	if in.Severity == "" {
		missing = append(missing, "severity")
	}
	if in.Description == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return nil, errs.Validation(missing...)
	}

	now := s.clock.Now()
	dev := &Deviation{
		ID:                   uuid.New(),
		StudyID:              in.StudyID,
		ParticipantID:        in.ParticipantID,
		Type:                 in.Type,
		Severity:             in.Severity,
		Description:          in.Description,
		DeviationDate:        in.DeviationDate,
		IdentifiedDate:       in.IdentifiedDate,
		AffectsSafety:        in.AffectsSafety,
		AffectsDataIntegrity: in.AffectsDataIntegrity,
		AffectsStudyValidity: in.AffectsStudyValidity,
		RootCause:            in.RootCause,
		Status:               StatusReported,
		CreatedBy:            actor.ID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	Assess(dev).apply(dev)

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, dev); err != nil {
			return fmt.Errorf("create deviation: %w", err)
		}
		s.audit.Record(ctx, actor.ID, "deviation.report", "deviation", dev.ID.String(),
			nil, audit.Snapshot(dev), nil)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if RequiresImmediateNotification(dev) {
		s.fireUrgent(ctx, dev)
	}
	if dev.Reportable() {
		s.fireReported(ctx, dev)
	}
	return dev, nil
}

// Get retrieves a deviation.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Deviation, error) {
	dev, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errs.NotFound("deviation", id.String())
	}
	return dev, nil
}

// List returns deviations matching the filter with the total count.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Deviation, int, error) {
	return s.repo.List(ctx, f)
}

// UpdateInput carries caller-editable fields. Nil pointers leave the
// field unchanged.
type UpdateInput struct {
	Type                 *DeviationType `json:"deviation_type"`
	Severity             *Severity      `json:"severity"`
	Description          *string        `json:"description"`
	DeviationDate        *time.Time     `json:"deviation_date"`
	IdentifiedDate       *time.Time     `json:"identified_date"`
	AffectsSafety        *bool          `json:"affects_safety"`
	AffectsDataIntegrity *bool          `json:"affects_data_integrity"`
	AffectsStudyValidity *bool          `json:"affects_study_validity"`
	RootCause            *string        `json:"root_cause"`
}

// Update edits a deviation and re-runs classification. The oversight
// bodies are re-notified only when the edit changed the obligation set;
// a reworded description stays quiet.
func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in UpdateInput) (*Deviation, error) {
	if err := s.caps.CanPerform(actor, auth.ActionDeviationReport); err != nil {
		return nil, err
	}

	var (
		dev          *Deviation
		changed      bool
		wasImmediate bool
	)
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return errs.NotFound("deviation", id.String())
		}
		if cur.Terminal() {
			return errs.Precondition("deviation", string(cur.Status), "update")
		}
		wasImmediate = RequiresImmediateNotification(cur)
		old := audit.Snapshot(cur)

		if in.Type != nil {
			cur.Type = *in.Type
		}
		if in.Severity != nil {
			cur.Severity = *in.Severity
		}
		if in.Description != nil {
			cur.Description = *in.Description
		}
		if in.DeviationDate != nil {
			cur.DeviationDate = in.DeviationDate
		}
		if in.IdentifiedDate != nil {
			cur.IdentifiedDate = in.IdentifiedDate
		}
		if in.AffectsSafety != nil {
			cur.AffectsSafety = *in.AffectsSafety
		}
		if in.AffectsDataIntegrity != nil {
			cur.AffectsDataIntegrity = *in.AffectsDataIntegrity
		}
		if in.AffectsStudyValidity != nil {
			cur.AffectsStudyValidity = *in.AffectsStudyValidity
		}
		if in.RootCause != nil {
			cur.RootCause = *in.RootCause
		}

		changed = Assess(cur).apply(cur)
		cur.UpdatedAt = s.clock.Now()

		if err := s.repo.Update(ctx, cur); err != nil {
			return fmt.Errorf("update deviation: %w", err)
		}
		s.audit.Record(ctx, actor.ID, "deviation.update", "deviation", cur.ID.String(),
			old, audit.Snapshot(cur), map[string]string{
				"reclassified": fmt.Sprintf("%t", changed),
			})
		dev = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !wasImmediate && RequiresImmediateNotification(dev) {
		s.fireUrgent(ctx, dev)
	}
	if changed && dev.Reportable() {
		s.fireReported(ctx, dev)
	}
	return dev, nil
}

// CorrectiveActionInput documents how the deviation was addressed.
type CorrectiveActionInput struct {
	CorrectiveAction string `json:"corrective_action"`
	PreventiveAction string `json:"preventive_action"`
	RootCause        string `json:"root_cause"`
}

// RecordCorrectiveAction resolves a REPORTED deviation with its
// corrective and preventive actions.
func (s *Service) RecordCorrectiveAction(ctx context.Context, actor auth.Actor, id uuid.UUID, in CorrectiveActionInput) (*Deviation, error) {
	if err := s.caps.CanPerform(actor, auth.ActionDeviationResolve); err != nil {
		return nil, err
	}
	if in.CorrectiveAction == "" {
		return nil, errs.Validation("corrective_action")
	}

	var dev *Deviation
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return errs.NotFound("deviation", id.String())
		}
		if cur.Status != StatusReported {
			return errs.Precondition("deviation", string(cur.Status), "resolve")
		}
		old := audit.Snapshot(cur)

		now := s.clock.Now()
		cur.Status = StatusResolved
		cur.CorrectiveAction = in.CorrectiveAction
		cur.PreventiveAction = in.PreventiveAction
		if in.RootCause != "" {
			cur.RootCause = in.RootCause
		}
		cur.ResolvedAt = &now
		cur.UpdatedAt = now

		if err := s.repo.Update(ctx, cur); err != nil {
			return fmt.Errorf("update deviation: %w", err)
		}
		s.audit.Record(ctx, actor.ID, "deviation.resolve", "deviation", cur.ID.String(),
			old, audit.Snapshot(cur), nil)
		dev = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// Close finishes a RESOLVED deviation. Closed deviations are immutable.
func (s *Service) Close(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Deviation, error) {
	if err := s.caps.CanPerform(actor, auth.ActionDeviationClose); err != nil {
		return nil, err
	}

	var dev *Deviation
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return errs.NotFound("deviation", id.String())
		}
		if cur.Status != StatusResolved {
			return errs.Precondition("deviation", string(cur.Status), "close")
		}
		old := audit.Snapshot(cur)

		now := s.clock.Now()
		cur.Status = StatusClosed
		cur.ClosedAt = &now
		cur.UpdatedAt = now

		if err := s.repo.Update(ctx, cur); err != nil {
			return fmt.Errorf("update deviation: %w", err)
		}
		s.audit.Record(ctx, actor.ID, "deviation.close", "deviation", cur.ID.String(),
			old, audit.Snapshot(cur), nil)
		dev = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dev, nil
}

func (s *Service) fireReported(ctx context.Context, d *Deviation) {
	data := map[string]string{
		"deviation_id": d.ID.String(),
		"study_id":     d.StudyID.String(),
		"severity":     string(d.Severity),
		"irb":          fmt.Sprintf("%t", d.ReportableToIRB),
		"sponsor":      fmt.Sprintf("%t", d.ReportableToSponsor),
		"fda":          fmt.Sprintf("%t", d.ReportableToFDA),
	}
	if err := s.notifier.Trigger(ctx, notify.TriggerDeviationReported, data); err != nil {
		s.logger.Error().Err(err).Str("deviation_id", d.ID.String()).Msg("notification dispatch failed")
	}
}

// fireUrgent alerts the safety desk about a critical or
// safety-impacting deviation, independent of its reporting obligations.
func (s *Service) fireUrgent(ctx context.Context, d *Deviation) {
	data := map[string]string{
		"deviation_id":   d.ID.String(),
		"study_id":       d.StudyID.String(),
		"severity":       string(d.Severity),
		"affects_safety": fmt.Sprintf("%t", d.AffectsSafety),
	}
	if err := s.notifier.Trigger(ctx, notify.TriggerDeviationUrgent, data); err != nil {
		s.logger.Error().Err(err).Str("deviation_id", d.ID.String()).Msg("notification dispatch failed")
	}
}
