package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/irbhub/irbhub/internal/domain/adverseevent"
	"github.com/irbhub/irbhub/internal/domain/submission"
	"github.com/irbhub/irbhub/internal/platform/audit"
	"github.com/irbhub/irbhub/internal/platform/clock"
	"github.com/irbhub/irbhub/internal/platform/documents"
	"github.com/irbhub/irbhub/internal/platform/notify"
	"github.com/irbhub/irbhub/internal/platform/scheduler"
)

// systemActor attributes scan-driven audit entries.
const systemActor = "system"

// Narrow read-only views of the other domains; the monitor never mutates
// workflow state except for marking reminders delivered.

type ContinuingReviewSource interface {
	ListContinuingReviewDue(ctx context.Context, before time.Time) ([]*submission.Submission, error)
}

type OverdueReviewSource interface {
	ListOverdueReviews(ctx context.Context, asOf time.Time) ([]*submission.Review, error)
}

type FollowUpSource interface {
	ListFollowUpsDue(ctx context.Context, asOf time.Time) ([]*adverseevent.FollowUpReminder, error)
	MarkFollowUpSent(ctx context.Context, id uuid.UUID) error
}

type DocumentSource interface {
	ListExpiringWithin(ctx context.Context, now, before time.Time) ([]*documents.Document, error)
}

// Windows sets how far ahead (or back) each scan looks.
type Windows struct {
	ContinuingReview time.Duration // look ahead for continuing reviews
	DocumentExpiry   time.Duration // look ahead for expiring documents
	FlaggedMetrics   time.Duration // look back for flagged metrics
}

// Monitor runs the periodic oversight scans and turns matches into
// notifications.
type Monitor struct {
	metrics    Repository
	continuing ContinuingReviewSource
	overdue    OverdueReviewSource
	followUps  FollowUpSource
	docs       DocumentSource
	notifier   notify.Notifier
	audit      *audit.Recorder
	clock      clock.Clock
	logger     zerolog.Logger
	windows    Windows
}

type MonitorConfig struct {
	Metrics    Repository
	Continuing ContinuingReviewSource
	Overdue    OverdueReviewSource
	FollowUps  FollowUpSource
	Documents  DocumentSource
	Notifier   notify.Notifier
	Audit      *audit.Recorder
	Clock      clock.Clock
	Logger     zerolog.Logger
	Windows    Windows
}

func NewMonitor(cfg MonitorConfig) *Monitor {
	return &Monitor{
		metrics:    cfg.Metrics,
		continuing: cfg.Continuing,
		overdue:    cfg.Overdue,
		followUps:  cfg.FollowUps,
		docs:       cfg.Documents,
		notifier:   cfg.Notifier,
		audit:      cfg.Audit,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		windows:    cfg.Windows,
	}
}

// RegisterJobs wires the scans into the registry. Due-date scans run on
// the slow interval; the overdue-review scan runs on the fast one.
func (m *Monitor) RegisterJobs(reg *scheduler.Registry, slow, fast time.Duration) error {
	jobs := []struct {
		name     string
		interval time.Duration
		run      scheduler.Job
	}{
		{"continuing-review-scan", slow, m.ScanContinuingReviews},
		{"document-expiry-scan", slow, m.ScanExpiringDocuments},
		{"flagged-metric-scan", slow, m.ScanFlaggedMetrics},
		{"overdue-review-scan", fast, m.ScanOverdueReviews},
		{"followup-reminder-scan", fast, m.ScanFollowUpReminders},
	}
	for _, j := range jobs {
		if err := reg.Register(j.name, j.interval, j.run); err != nil {
			return fmt.Errorf("register %s: %w", j.name, err)
		}
	}
	return nil
}

// ScanContinuingReviews notifies for approvals whose continuing review
// falls due within the window.
func (m *Monitor) ScanContinuingReviews(ctx context.Context) error {
	now := m.clock.Now()
	subs, err := m.continuing.ListContinuingReviewDue(ctx, now.Add(m.windows.ContinuingReview))
	if err != nil {
		return fmt.Errorf("list continuing reviews due: %w", err)
	}
	for _, sub := range subs {
		m.fire(ctx, notify.TriggerContinuingReviewDue, map[string]string{
			"submission_id": sub.ID.String(),
			"study_id":      sub.StudyID.String(),
			"due_date":      sub.NextReviewDue.Format("2006-01-02"),
		})
		m.audit.Record(ctx, systemActor, "compliance.continuing_review_due", "submission", sub.ID.String(),
			nil, nil, map[string]string{"due_date": sub.NextReviewDue.Format("2006-01-02")})
	}
	m.logger.Info().Int("matches", len(subs)).Msg("continuing review scan complete")
	return nil
}

// ScanExpiringDocuments notifies for study documents expiring within the
// window.
func (m *Monitor) ScanExpiringDocuments(ctx context.Context) error {
	now := m.clock.Now()
	docs, err := m.docs.ListExpiringWithin(ctx, now, now.Add(m.windows.DocumentExpiry))
	if err != nil {
		return fmt.Errorf("list expiring documents: %w", err)
	}
	for _, doc := range docs {
		m.fire(ctx, notify.TriggerDocumentExpiring, map[string]string{
			"document_id":   doc.ID.String(),
			"document_name": doc.Name,
			"expires_at":    doc.ExpiresAt.Format("2006-01-02"),
		})
	}
	m.logger.Info().Int("matches", len(docs)).Msg("document expiry scan complete")
	return nil
}

// ScanOverdueReviews notifies for reviews past their due date that are
// still open.
func (m *Monitor) ScanOverdueReviews(ctx context.Context) error {
	now := m.clock.Now()
	reviews, err := m.overdue.ListOverdueReviews(ctx, now)
	if err != nil {
		return fmt.Errorf("list overdue reviews: %w", err)
	}
	for _, rev := range reviews {
		m.fire(ctx, notify.TriggerReviewOverdue, map[string]string{
			"review_id":     rev.ID.String(),
			"submission_id": rev.SubmissionID.String(),
			"reviewer_id":   rev.ReviewerID,
			"due_date":      rev.DueDate.Format("2006-01-02"),
		})
	}
	m.logger.Info().Int("matches", len(reviews)).Msg("overdue review scan complete")
	return nil
}

// ScanFollowUpReminders delivers due adverse-event follow-up reminders and
// marks them sent so they fire once.
func (m *Monitor) ScanFollowUpReminders(ctx context.Context) error {
	now := m.clock.Now()
	due, err := m.followUps.ListFollowUpsDue(ctx, now)
	if err != nil {
		return fmt.Errorf("list follow-ups due: %w", err)
	}
	for _, rem := range due {
		m.fire(ctx, notify.TriggerFollowUpReminder, map[string]string{
			"event_id": rem.EventID.String(),
			"due_date": rem.DueDate.Format("2006-01-02"),
		})
		if err := m.followUps.MarkFollowUpSent(ctx, rem.ID); err != nil {
			m.logger.Error().Err(err).Str("reminder_id", rem.ID.String()).Msg("mark follow-up sent failed")
		}
	}
	m.logger.Info().Int("matches", len(due)).Msg("follow-up reminder scan complete")
	return nil
}

// ScanFlaggedMetrics notifies for NON_COMPLIANT and CRITICAL metrics
// measured within the look-back window.
func (m *Monitor) ScanFlaggedMetrics(ctx context.Context) error {
	now := m.clock.Now()
	flagged, err := m.metrics.ListFlaggedSince(ctx, now.Add(-m.windows.FlaggedMetrics))
	if err != nil {
		return fmt.Errorf("list flagged metrics: %w", err)
	}
	for _, metric := range flagged {
		m.fire(ctx, notify.TriggerComplianceAlert, map[string]string{
			"metric_id":   metric.ID.String(),
			"study_id":    metric.StudyID.String(),
			"metric_type": metric.MetricType,
			"status":      string(metric.Status),
			"detail":      metric.Detail,
		})
		m.audit.Record(ctx, systemActor, "compliance.alert", "compliance_metric", metric.ID.String(),
			nil, nil, map[string]string{"status": string(metric.Status)})
	}
	m.logger.Info().Int("matches", len(flagged)).Msg("flagged metric scan complete")
	return nil
}

func (m *Monitor) fire(ctx context.Context, kind notify.TriggerKind, data map[string]string) {
	if err := m.notifier.Trigger(ctx, kind, data); err != nil {
		m.logger.Error().Err(err).Str("trigger", string(kind)).Msg("notification dispatch failed")
	}
}
