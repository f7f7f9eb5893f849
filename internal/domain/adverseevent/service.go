package adverseevent

import (
	"context"
	"fmt"
	"strings"
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

// Service orchestrates the adverse-event workflow. Classification is
// recomputed inside the same transaction as every write, so the stored
// derived fields can never drift from the reported attributes.
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

// ReportInput carries the caller-authoritative fields of a new event. The
// derived classification fields are not accepted here.
type ReportInput struct {
	StudyID              uuid.UUID    `json:"study_id"`
	ParticipantID        *uuid.UUID   `json:"participant_id"`
	Description          string       `json:"description"`
	OnsetDate            *time.Time   `json:"onset_date"`
	Severity             Severity     `json:"severity"`
	Seriousness          Seriousness  `json:"seriousness"`
	Expectedness         Expectedness `json:"expectedness"`
	Relatedness          Relatedness  `json:"relatedness"`
	Outcome              Outcome      `json:"outcome"`
	MedicallySignificant bool         `json:"medically_significant"`
	ActionTaken          string       `json:"action_taken"`
}

// Report records a new adverse event in DRAFT, classifies it, and alerts
// the safety desk immediately when the event is life-threatening, fatal,
// or an unexpected SAE. SAEs get a report identifier at intake so the
// number exists before anything is filed externally.
func (s *Service) Report(ctx context.Context, actor auth.Actor, in ReportInput) (*AdverseEvent, error) {
	if err := s.caps.CanPerform(actor, auth.ActionAdverseEventReport); err != nil {
		return nil, err
	}
	var missing []string
	if in.StudyID == uuid.Nil {
		missing = append(missing, "study_id")
	}
	if in.Severity == "" {
		missing = append(missing, "severity")
	}
	if in.Seriousness == "" {
		missing = append(missing, "seriousness")
	}
	if in.Expectedness == "" {
		missing = append(missing, "expectedness")
	}
	if in.Relatedness == "" {
		missing = append(missing, "relatedness")
	}
	if len(missing) > 0 {
		return nil, errs.Validation(missing...)
	}

	now := s.clock.Now()
	event := &AdverseEvent{
		ID:                   uuid.New(),
		StudyID:              in.StudyID,
		ParticipantID:        in.ParticipantID,
		Description:          in.Description,
		OnsetDate:            in.OnsetDate,
		Severity:             in.Severity,
		Seriousness:          in.Seriousness,
		Expectedness:         in.Expectedness,
		Relatedness:          in.Relatedness,
		Outcome:              in.Outcome,
		MedicallySignificant: in.MedicallySignificant,
		ActionTaken:          in.ActionTaken,
		Status:               StatusDraft,
		CreatedBy:            actor.ID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if event.Outcome == "" {
		event.Outcome = OutcomeUnknown
	}
	Assess(event).apply(event)

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if event.IsSAE {
			reportID, err := s.nextSAEReportID(ctx, event.StudyID, now)
			if err != nil {
				return err
			}
			event.SAEReportID = reportID
		}
		if err := s.repo.Create(ctx, event); err != nil {
			return fmt.Errorf("create adverse event: %w", err)
		}
		s.audit.Record(ctx, actor.ID, "adverse_event.report", "adverse_event", event.ID.String(),
			nil, audit.Snapshot(event), nil)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if RequiresImmediateNotification(event) {
		s.fire(ctx, notify.TriggerSAEImmediate, map[string]string{
			"event_id":      event.ID.String(),
			"study_id":      event.StudyID.String(),
			"sae_report_id": event.SAEReportID,
			"severity":      string(event.Severity),
			"outcome":       string(event.Outcome),
		})
	}
	return event, nil
}

// nextSAEReportID mints SAE-{year}-{study prefix}-{sequence}. The sequence
// is a per-year counter so report numbers restart each January.
func (s *Service) nextSAEReportID(ctx context.Context, studyID uuid.UUID, now time.Time) (string, error) {
	seq, err := s.repo.NextSAESequence(ctx, now.Year())
	if err != nil {
		return "", fmt.Errorf("next sae sequence: %w", err)
	}
	prefix := strings.ToUpper(strings.ReplaceAll(studyID.String(), "-", ""))[:8]
	return fmt.Sprintf("SAE-%d-%s-%04d", now.Year(), prefix, seq), nil
}

// Get retrieves an adverse event with its hospitalizations.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*AdverseEvent, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errs.NotFound("adverse event", id.String())
	}
	return event, nil
}

// List returns adverse events matching the filter with the total count.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*AdverseEvent, int, error) {
	return s.repo.List(ctx, f)
}

// UpdateInput carries caller-editable fields. Nil pointers leave the field
// unchanged.
type UpdateInput struct {
	Description          *string       `json:"description"`
	OnsetDate            *time.Time    `json:"onset_date"`
	Severity             *Severity     `json:"severity"`
	Seriousness          *Seriousness  `json:"seriousness"`
	Expectedness         *Expectedness `json:"expectedness"`
	Relatedness          *Relatedness  `json:"relatedness"`
	Outcome              *Outcome      `json:"outcome"`
	MedicallySignificant *bool         `json:"medically_significant"`
	ActionTaken          *string       `json:"action_taken"`
}

// Update edits an event and re-runs classification. If the edit changes
// any reporting obligation on an already-reported event, the event drops
// back to REQUIRES_FOLLOWUP and the regulatory triggers fire again with
// the new flags.
func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in UpdateInput) (*AdverseEvent, error) {
	if err := s.caps.CanPerform(actor, auth.ActionAdverseEventReport); err != nil {
		return nil, err
	}

	var (
		event       *AdverseEvent
		significant bool
	)
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return errs.NotFound("adverse event", id.String())
		}
		old := audit.Snapshot(cur)

		if in.Description != nil {
			cur.Description = *in.Description
		}
		if in.OnsetDate != nil {
			cur.OnsetDate = in.OnsetDate
		}
		if in.Severity != nil {
			cur.Severity = *in.Severity
		}
		if in.Seriousness != nil {
			cur.Seriousness = *in.Seriousness
		}
		if in.Expectedness != nil {
			cur.Expectedness = *in.Expectedness
		}
		if in.Relatedness != nil {
			cur.Relatedness = *in.Relatedness
		}
		if in.Outcome != nil {
			cur.Outcome = *in.Outcome
		}
		if in.MedicallySignificant != nil {
			cur.MedicallySignificant = *in.MedicallySignificant
		}
		if in.ActionTaken != nil {
			cur.ActionTaken = *in.ActionTaken
		}

		now := s.clock.Now()
		significant = Assess(cur).apply(cur)
		if significant {
			if cur.IsSAE && cur.SAEReportID == "" {
				reportID, err := s.nextSAEReportID(ctx, cur.StudyID, now)
				if err != nil {
					return err
				}
				cur.SAEReportID = reportID
			}
			if cur.Status == StatusReported {
				cur.Status = StatusRequiresFollowUp
			}
		}
		cur.UpdatedAt = now

		if err := s.repo.Update(ctx, cur); err != nil {
			return fmt.Errorf("update adverse event: %w", err)
		}
		s.audit.Record(ctx, actor.ID, "adverse_event.update", "adverse_event", cur.ID.String(),
			old, audit.Snapshot(cur), map[string]string{
				"reclassified": fmt.Sprintf("%t", significant),
			})
		event = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	if significant {
		s.fireRegulatory(ctx, event)
	}
	return event, nil
}

// ValidateForSubmission collects what is still missing before the event
// can be formally reported. Deadline breaches are a Warning, not an error:
// a late report is still filed, just flagged.
func (s *Service) ValidateForSubmission(e *AdverseEvent, now time.Time) (warnings []string, err error) {
	var missing []string
	if e.Description == "" {
		missing = append(missing, "description")
	}
	if e.OnsetDate == nil {
		missing = append(missing, "onset_date")
	}
	if e.Outcome == "" || e.Outcome == OutcomeUnknown {
		missing = append(missing, "outcome")
	}
	if e.IsSAE && e.ActionTaken == "" {
		missing = append(missing, "action_taken")
	}
	if len(missing) > 0 {
		return nil, errs.Validation(missing...)
	}

	deadline := e.OnsetDate.AddDate(0, 0, DeadlineDays(e.ReportingTimeline))
	if now.After(deadline) {
		warnings = append(warnings, fmt.Sprintf(
			"reporting deadline exceeded: %s tier required submission by %s",
			e.ReportingTimeline, deadline.Format("2006-01-02")))
	}
	return warnings, nil
}

// SubmitResult pairs the reported event with any timeline warnings.
type SubmitResult struct {
	Event    *AdverseEvent `json:"event"`
	Warnings []string      `json:"warnings,omitempty"`
}

// Submit formally reports the event: it validates completeness, stamps
// ReportedAt, fires the regulatory triggers its flags require, and
// schedules the tier-specific follow-up reminder sequence.
func (s *Service) Submit(ctx context.Context, actor auth.Actor, id uuid.UUID) (*SubmitResult, error) {
	if err := s.caps.CanPerform(actor, auth.ActionAdverseEventSubmit); err != nil {
		return nil, err
	}

	var (
		event    *AdverseEvent
		warnings []string
	)
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return errs.NotFound("adverse event", id.String())
		}
		if cur.Status == StatusReported {
			return errs.Precondition("adverse_event", string(cur.Status), "submit")
		}
		now := s.clock.Now()
		warnings, err = s.ValidateForSubmission(cur, now)
		if err != nil {
			return err
		}
		old := audit.Snapshot(cur)

		cur.Status = StatusReported
		cur.ReportedAt = &now
		cur.UpdatedAt = now

		for _, days := range FollowUpOffsets(cur) {
			reminder := &FollowUpReminder{
				ID:      uuid.New(),
				EventID: cur.ID,
				DueDate: now.AddDate(0, 0, days),
			}
			if err := s.repo.ScheduleFollowUp(ctx, reminder); err != nil {
				return fmt.Errorf("schedule follow-up: %w", err)
			}
		}

		if err := s.repo.Update(ctx, cur); err != nil {
			return fmt.Errorf("update adverse event: %w", err)
		}
		s.audit.Record(ctx, actor.ID, "adverse_event.submit", "adverse_event", cur.ID.String(),
			old, audit.Snapshot(cur), map[string]string{
				"timeline": string(cur.ReportingTimeline),
			})
		event = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.fireRegulatory(ctx, event)
	for _, w := range warnings {
		s.logger.Warn().Str("event_id", event.ID.String()).Msg(w)
	}
	return &SubmitResult{Event: event, Warnings: warnings}, nil
}

// HospitalizationInput describes one hospital stay tied to the event.
type HospitalizationInput struct {
	AdmissionDate time.Time  `json:"admission_date"`
	DischargeDate *time.Time `json:"discharge_date"`
	Reason        string     `json:"reason"`
	Hospital      string     `json:"hospital"`
}

// AddHospitalization attaches a hospitalization and upgrades the event to
// SERIOUS. A hospitalized participant makes the event an SAE regardless of
// how it was graded at intake.
func (s *Service) AddHospitalization(ctx context.Context, actor auth.Actor, eventID uuid.UUID, in HospitalizationInput) (*AdverseEvent, error) {
	if err := s.caps.CanPerform(actor, auth.ActionAdverseEventReport); err != nil {
		return nil, err
	}
	if in.AdmissionDate.IsZero() {
		return nil, errs.Validation("admission_date")
	}
	if in.DischargeDate != nil && in.DischargeDate.Before(in.AdmissionDate) {
		return nil, errs.Validation("discharge_date must not precede admission_date")
	}

	var (
		event       *AdverseEvent
		significant bool
	)
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetByID(ctx, eventID)
		if err != nil {
			return errs.NotFound("adverse event", eventID.String())
		}
		old := audit.Snapshot(cur)

		now := s.clock.Now()
		h := &Hospitalization{
			ID:            uuid.New(),
			EventID:       cur.ID,
			AdmissionDate: in.AdmissionDate,
			DischargeDate: in.DischargeDate,
			Reason:        in.Reason,
			Hospital:      in.Hospital,
			CreatedAt:     now,
		}
		if err := s.repo.AddHospitalization(ctx, h); err != nil {
			return fmt.Errorf("add hospitalization: %w", err)
		}
		cur.Hospitalizations = append(cur.Hospitalizations, *h)
		cur.Seriousness = Serious
		significant = Assess(cur).apply(cur)
		if cur.IsSAE && cur.SAEReportID == "" {
			reportID, err := s.nextSAEReportID(ctx, cur.StudyID, now)
			if err != nil {
				return err
			}
			cur.SAEReportID = reportID
		}
		if significant && cur.Status == StatusReported {
			cur.Status = StatusRequiresFollowUp
		}
		cur.UpdatedAt = now

		if err := s.repo.Update(ctx, cur); err != nil {
			return fmt.Errorf("update adverse event: %w", err)
		}
		s.audit.Record(ctx, actor.ID, "adverse_event.hospitalization", "adverse_event", cur.ID.String(),
			old, audit.Snapshot(cur), nil)
		event = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	if significant {
		s.fireRegulatory(ctx, event)
	}
	return event, nil
}

// AddFollowUpReport attaches a follow-up document and returns the event to
// REPORTED once the outstanding follow-up is filed.
func (s *Service) AddFollowUpReport(ctx context.Context, actor auth.Actor, eventID, documentID uuid.UUID) (*AdverseEvent, error) {
	if err := s.caps.CanPerform(actor, auth.ActionAdverseEventReport); err != nil {
		return nil, err
	}
	if documentID == uuid.Nil {
		return nil, errs.Validation("document_id")
	}

	var event *AdverseEvent
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetByID(ctx, eventID)
		if err != nil {
			return errs.NotFound("adverse event", eventID.String())
		}
		if cur.Status == StatusDraft {
			return errs.Precondition("adverse_event", string(cur.Status), "follow-up")
		}
		old := audit.Snapshot(cur)

		cur.FollowUpReportIDs = append(cur.FollowUpReportIDs, documentID)
		cur.Status = StatusReported
		cur.UpdatedAt = s.clock.Now()

		if err := s.repo.Update(ctx, cur); err != nil {
			return fmt.Errorf("update adverse event: %w", err)
		}
		s.audit.Record(ctx, actor.ID, "adverse_event.follow_up", "adverse_event", cur.ID.String(),
			old, audit.Snapshot(cur), map[string]string{"document_id": documentID.String()})
		event = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// ListFollowUpsDue exposes pending reminders for the compliance monitor.
func (s *Service) ListFollowUpsDue(ctx context.Context, asOf time.Time) ([]*FollowUpReminder, error) {
	return s.repo.ListFollowUpsDue(ctx, asOf)
}

// MarkFollowUpSent records that a reminder was delivered.
func (s *Service) MarkFollowUpSent(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkFollowUpSent(ctx, id)
}

// fireRegulatory dispatches one trigger per reporting obligation currently
// set on the event.
func (s *Service) fireRegulatory(ctx context.Context, e *AdverseEvent) {
	data := map[string]string{
		"event_id":      e.ID.String(),
		"study_id":      e.StudyID.String(),
		"sae_report_id": e.SAEReportID,
		"timeline":      string(e.ReportingTimeline),
	}
	if e.ReportableToFDA {
		s.fire(ctx, notify.TriggerRegulatoryFDA, data)
	}
	if e.ReportableToSponsor {
		s.fire(ctx, notify.TriggerRegulatorySponsor, data)
	}
	if e.ReportableToIRB {
		s.fire(ctx, notify.TriggerRegulatoryIRB, data)
	}
}

func (s *Service) fire(ctx context.Context, kind notify.TriggerKind, data map[string]string) {
	if err := s.notifier.Trigger(ctx, kind, data); err != nil {
		s.logger.Error().Err(err).Str("trigger", string(kind)).Msg("notification dispatch failed")
	}
}
