package compliance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/irbhub/irbhub/internal/domain/adverseevent"
	"github.com/irbhub/irbhub/internal/domain/submission"
	"github.com/irbhub/irbhub/internal/platform/audit"
	"github.com/irbhub/irbhub/internal/platform/clock"
	"github.com/irbhub/irbhub/internal/platform/documents"
	"github.com/irbhub/irbhub/internal/platform/errs"
	"github.com/irbhub/irbhub/internal/platform/notify"
	"github.com/irbhub/irbhub/internal/platform/scheduler"
)

// ---------- stub sources ----------

type stubContinuing struct{ subs []*submission.Submission }

func (s *stubContinuing) ListContinuingReviewDue(_ context.Context, _ time.Time) ([]*submission.Submission, error) {
	return s.subs, nil
}

type stubOverdue struct{ reviews []*submission.Review }

func (s *stubOverdue) ListOverdueReviews(_ context.Context, _ time.Time) ([]*submission.Review, error) {
	return s.reviews, nil
}

type stubFollowUps struct {
	mu   sync.Mutex
	due  []*adverseevent.FollowUpReminder
	sent []uuid.UUID
}

func (s *stubFollowUps) ListFollowUpsDue(_ context.Context, _ time.Time) ([]*adverseevent.FollowUpReminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.due, nil
}

func (s *stubFollowUps) MarkFollowUpSent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, id)
	return nil
}

type memMetricRepo struct {
	mu      sync.Mutex
	metrics map[uuid.UUID]*Metric
}

func newMemMetricRepo() *memMetricRepo {
	return &memMetricRepo{metrics: make(map[uuid.UUID]*Metric)}
}

func (m *memMetricRepo) Record(_ context.Context, metric *Metric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *metric
	m.metrics[metric.ID] = &cp
	return nil
}

func (m *memMetricRepo) GetByID(_ context.Context, id uuid.UUID) (*Metric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	metric, ok := m.metrics[id]
	if !ok {
		return nil, errs.NotFound("compliance metric", id.String())
	}
	cp := *metric
	return &cp, nil
}

func (m *memMetricRepo) List(_ context.Context, f ListFilter) ([]*Metric, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Metric
	for _, metric := range m.metrics {
		if f.StudyID != nil && metric.StudyID != *f.StudyID {
			continue
		}
		if f.Status != nil && metric.Status != *f.Status {
			continue
		}
		cp := *metric
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *memMetricRepo) ListFlaggedSince(_ context.Context, since time.Time) ([]*Metric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Metric
	for _, metric := range m.metrics {
		if metric.Status.Flagged() && !metric.MeasuredAt.Before(since) {
			cp := *metric
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---------- fixture ----------

type fixture struct {
	monitor   *Monitor
	metrics   *memMetricRepo
	notifier  *notify.MockNotifier
	clock     *clock.Fake
	followUps *stubFollowUps
	overdue   *stubOverdue
	cont      *stubContinuing
	docs      *documents.MemRegistry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fc := clock.NewFake(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	f := &fixture{
		metrics:   newMemMetricRepo(),
		notifier:  &notify.MockNotifier{},
		clock:     fc,
		followUps: &stubFollowUps{},
		overdue:   &stubOverdue{},
		cont:      &stubContinuing{},
		docs:      documents.NewMemRegistry(),
	}
	f.monitor = NewMonitor(MonitorConfig{
		Metrics:    f.metrics,
		Continuing: f.cont,
		Overdue:    f.overdue,
		FollowUps:  f.followUps,
		Documents:  f.docs,
		Notifier:   f.notifier,
		Audit:      audit.NewRecorder(audit.NewLogSink(zerolog.Nop()), zerolog.Nop(), fc),
		Clock:      fc,
		Logger:     zerolog.Nop(),
		Windows: Windows{
			ContinuingReview: 30 * 24 * time.Hour,
			DocumentExpiry:   30 * 24 * time.Hour,
			FlaggedMetrics:   24 * time.Hour,
		},
	})
	return f
}

// ---------- tests ----------

func TestScanContinuingReviews(t *testing.T) {
	f := newFixture(t)
	due := f.clock.Now().AddDate(0, 0, 10)
	f.cont.subs = []*submission.Submission{{
		ID:            uuid.New(),
		StudyID:       uuid.New(),
		NextReviewDue: &due,
	}}

	if err := f.monitor.ScanContinuingReviews(context.Background()); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if calls := f.notifier.TriggersOf(notify.TriggerContinuingReviewDue); len(calls) != 1 {
		t.Fatalf("expected one trigger, got %d", len(calls))
	}
}

func TestScanExpiringDocuments(t *testing.T) {
	f := newFixture(t)
	expiring := f.clock.Now().AddDate(0, 0, 14)
	doc := &documents.Document{
		Name:      "informed consent v3",
		Type:      documents.TypeInformedConsent,
		ExpiresAt: &expiring,
	}
	if err := f.docs.Register(context.Background(), doc); err != nil {
		t.Fatalf("register document: %v", err)
	}

	if err := f.monitor.ScanExpiringDocuments(context.Background()); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	calls := f.notifier.TriggersOf(notify.TriggerDocumentExpiring)
	if len(calls) != 1 {
		t.Fatalf("expected one trigger, got %d", len(calls))
	}
	if calls[0].Data["document_name"] != "informed consent v3" {
		t.Fatalf("unexpected trigger payload: %v", calls[0].Data)
	}
}

func TestScanOverdueReviews(t *testing.T) {
	f := newFixture(t)
	past := f.clock.Now().AddDate(0, 0, -3)
	f.overdue.reviews = []*submission.Review{{
		ID:           uuid.New(),
		SubmissionID: uuid.New(),
		ReviewerID:   "reviewer-1",
		Status:       submission.ReviewAssigned,
		DueDate:      &past,
	}}

	if err := f.monitor.ScanOverdueReviews(context.Background()); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if calls := f.notifier.TriggersOf(notify.TriggerReviewOverdue); len(calls) != 1 {
		t.Fatalf("expected one trigger, got %d", len(calls))
	}
}

func TestScanFollowUpReminders_MarksSent(t *testing.T) {
	f := newFixture(t)
	rem := &adverseevent.FollowUpReminder{
		ID:      uuid.New(),
		EventID: uuid.New(),
		DueDate: f.clock.Now().AddDate(0, 0, -1),
	}
	f.followUps.due = []*adverseevent.FollowUpReminder{rem}

	if err := f.monitor.ScanFollowUpReminders(context.Background()); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if calls := f.notifier.TriggersOf(notify.TriggerFollowUpReminder); len(calls) != 1 {
		t.Fatalf("expected one trigger, got %d", len(calls))
	}
	if len(f.followUps.sent) != 1 || f.followUps.sent[0] != rem.ID {
		t.Fatalf("reminder should be marked sent: %v", f.followUps.sent)
	}
}

func TestScanFlaggedMetrics(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	fresh := &Metric{
		ID:         uuid.New(),
		StudyID:    uuid.New(),
		MetricType: "consent_version_currency",
		Status:     StatusCritical,
		MeasuredAt: now.Add(-2 * time.Hour),
	}
	stale := &Metric{
		ID:         uuid.New(),
		StudyID:    uuid.New(),
		MetricType: "enrollment_ceiling",
		Status:     StatusNonCompliant,
		MeasuredAt: now.Add(-48 * time.Hour),
	}
	ok := &Metric{
		ID:         uuid.New(),
		StudyID:    uuid.New(),
		MetricType: "training_currency",
		Status:     StatusCompliant,
		MeasuredAt: now.Add(-1 * time.Hour),
	}
	for _, m := range []*Metric{fresh, stale, ok} {
		if err := f.metrics.Record(context.Background(), m); err != nil {
			t.Fatalf("record metric: %v", err)
		}
	}

	if err := f.monitor.ScanFlaggedMetrics(context.Background()); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	calls := f.notifier.TriggersOf(notify.TriggerComplianceAlert)
	if len(calls) != 1 {
		t.Fatalf("expected one alert (fresh critical only), got %d", len(calls))
	}
	if calls[0].Data["metric_type"] != "consent_version_currency" {
		t.Fatalf("unexpected alert payload: %v", calls[0].Data)
	}
}

func TestRegisterJobs(t *testing.T) {
	f := newFixture(t)
	reg := scheduler.New(zerolog.Nop())
	if err := f.monitor.RegisterJobs(reg, time.Hour, time.Minute); err != nil {
		t.Fatalf("RegisterJobs failed: %v", err)
	}
	status := reg.Status()
	if len(status) != 5 {
		t.Fatalf("expected 5 registered jobs, got %d", len(status))
	}
	// Registering again collides on names.
	if err := f.monitor.RegisterJobs(reg, time.Hour, time.Minute); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}
