package adverseevent

import (
	"context"
	"strings"
	"sync"
	"testing"
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

// ---------- in-memory repository ----------

type memRepo struct {
	mu        sync.Mutex
	events    map[uuid.UUID]*AdverseEvent
	reminders map[uuid.UUID]*FollowUpReminder
	sequences map[int]int
}

func newMemRepo() *memRepo {
	return &memRepo{
		events:    make(map[uuid.UUID]*AdverseEvent),
		reminders: make(map[uuid.UUID]*FollowUpReminder),
		sequences: make(map[int]int),
	}
}

func (m *memRepo) Create(_ context.Context, e *AdverseEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.events[e.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*AdverseEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, errs.NotFound("adverse event", id.String())
	}
	cp := *e
	cp.Hospitalizations = append([]Hospitalization(nil), e.Hospitalizations...)
	return &cp, nil
}

func (m *memRepo) Update(_ context.Context, e *AdverseEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; !ok {
		return errs.NotFound("adverse event", e.ID.String())
	}
	cp := *e
	cp.Hospitalizations = append([]Hospitalization(nil), e.Hospitalizations...)
	m.events[e.ID] = &cp
	return nil
}

func (m *memRepo) List(_ context.Context, f ListFilter) ([]*AdverseEvent, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*AdverseEvent
	for _, e := range m.events {
		if f.StudyID != nil && e.StudyID != *f.StudyID {
			continue
		}
		if f.Status != nil && e.Status != *f.Status {
			continue
		}
		if f.SAEOnly && !e.IsSAE {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *memRepo) AddHospitalization(_ context.Context, h *Hospitalization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[h.EventID]
	if !ok {
		return errs.NotFound("adverse event", h.EventID.String())
	}
	e.Hospitalizations = append(e.Hospitalizations, *h)
	return nil
}

func (m *memRepo) NextSAESequence(_ context.Context, year int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[year]++
	return m.sequences[year], nil
}

func (m *memRepo) ScheduleFollowUp(_ context.Context, r *FollowUpReminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.reminders[r.ID] = &cp
	return nil
}

func (m *memRepo) ListFollowUpsDue(_ context.Context, asOf time.Time) ([]*FollowUpReminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*FollowUpReminder
	for _, r := range m.reminders {
		if !r.Sent && !r.DueDate.After(asOf) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) MarkFollowUpSent(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return errs.NotFound("follow-up reminder", id.String())
	}
	r.Sent = true
	return nil
}

// ---------- fixture ----------

type fixture struct {
	svc      *Service
	repo     *memRepo
	notifier *notify.MockNotifier
	clock    *clock.Fake
}

var (
	safetyOfficer = auth.Actor{ID: "safety-1", Roles: []string{auth.RoleSafetyOfficer}}
	investigator  = auth.Actor{ID: "investigator-1", Roles: []string{auth.RoleInvestigator}}
	reviewer      = auth.Actor{ID: "reviewer-1", Roles: []string{auth.RoleReviewer}}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fc := clock.NewFake(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	f := &fixture{
		repo:     newMemRepo(),
		notifier: &notify.MockNotifier{},
		clock:    fc,
	}
	f.svc = NewService(Config{
		Repo:         f.repo,
		Runner:       db.PassthroughRunner{},
		Notifier:     f.notifier,
		Audit:        audit.NewRecorder(audit.NewLogSink(zerolog.Nop()), zerolog.Nop(), fc),
		Capabilities: auth.NewPolicyChecker(auth.DefaultPolicies()),
		Clock:        fc,
		Logger:       zerolog.Nop(),
	})
	return f
}

func (f *fixture) report(t *testing.T, mutate func(*ReportInput)) *AdverseEvent {
	t.Helper()
	onset := f.clock.Now().AddDate(0, 0, -1)
	in := ReportInput{
		StudyID:      uuid.New(),
		Description:  "Grade 2 nausea after infusion",
		OnsetDate:    &onset,
		Severity:     SeverityMild,
		Seriousness:  NonSerious,
		Expectedness: Expected,
		Relatedness:  Possible,
		Outcome:      OutcomeRecovered,
	}
	if mutate != nil {
		mutate(&in)
	}
	event, err := f.svc.Report(context.Background(), investigator, in)
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	return event
}

// ---------- tests ----------

func TestReport_RequiresFields(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Report(context.Background(), investigator, ReportInput{})
	if !errs.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReport_CapabilityDenied(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Report(context.Background(), reviewer, ReportInput{StudyID: uuid.New()})
	if err == nil {
		t.Fatal("expected capability denial for reviewer")
	}
}

func TestReport_RoutineEventHasNoAlerts(t *testing.T) {
	f := newFixture(t)
	event := f.report(t, nil)

	if event.IsSAE || event.ReportableToFDA || event.ReportableToSponsor || event.ReportableToIRB {
		t.Fatalf("routine event should have no flags: %+v", event)
	}
	if event.ReportingTimeline != TimelineRoutine {
		t.Fatalf("timeline = %s, want ROUTINE", event.ReportingTimeline)
	}
	if event.SAEReportID != "" {
		t.Fatalf("routine event must not get an SAE report id, got %q", event.SAEReportID)
	}
	if calls := f.notifier.Triggers(); len(calls) != 0 {
		t.Fatalf("expected no notifications, got %d", len(calls))
	}
}

func TestReport_LifeThreateningAlertsImmediately(t *testing.T) {
	f := newFixture(t)
	event := f.report(t, func(in *ReportInput) {
		in.Severity = SeverityLifeThreatening
		in.Expectedness = Unexpected
	})

	if event.ReportingTimeline != TimelineImmediate {
		t.Fatalf("timeline = %s, want IMMEDIATE", event.ReportingTimeline)
	}
	if event.SAEReportID == "" {
		t.Fatal("SAE must be assigned a report id at intake")
	}
	if !strings.HasPrefix(event.SAEReportID, "SAE-2026-") {
		t.Fatalf("report id %q should carry the year", event.SAEReportID)
	}
	if calls := f.notifier.TriggersOf(notify.TriggerSAEImmediate); len(calls) != 1 {
		t.Fatalf("expected one immediate alert, got %d", len(calls))
	}
}

func TestReport_SAESequenceIncrements(t *testing.T) {
	f := newFixture(t)
	first := f.report(t, func(in *ReportInput) { in.Seriousness = Serious })
	second := f.report(t, func(in *ReportInput) { in.Seriousness = Serious })

	if first.SAEReportID == second.SAEReportID {
		t.Fatalf("report ids must be unique: %q", first.SAEReportID)
	}
	if !strings.HasSuffix(first.SAEReportID, "-0001") || !strings.HasSuffix(second.SAEReportID, "-0002") {
		t.Fatalf("sequence should increment: %q then %q", first.SAEReportID, second.SAEReportID)
	}
}

func TestUpdate_ReclassifiesAndRenotifies(t *testing.T) {
	f := newFixture(t)
	event := f.report(t, nil)
	result, err := f.svc.Submit(context.Background(), investigator, event.ID)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.Event.Status != StatusReported {
		t.Fatalf("status = %s, want REPORTED", result.Event.Status)
	}

	serious := Serious
	unexpected := Unexpected
	updated, err := f.svc.Update(context.Background(), safetyOfficer, event.ID, UpdateInput{
		Seriousness:  &serious,
		Expectedness: &unexpected,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !updated.IsSAE || !updated.ReportableToFDA {
		t.Fatalf("upgrade should set SAE and FDA flags: %+v", updated)
	}
	if updated.Status != StatusRequiresFollowUp {
		t.Fatalf("status = %s, want REQUIRES_FOLLOWUP", updated.Status)
	}
	if updated.SAEReportID == "" {
		t.Fatal("upgraded event must receive an SAE report id")
	}
	if calls := f.notifier.TriggersOf(notify.TriggerRegulatoryFDA); len(calls) != 1 {
		t.Fatalf("expected one FDA trigger after upgrade, got %d", len(calls))
	}
}

func TestUpdate_CosmeticEditDoesNotRenotify(t *testing.T) {
	f := newFixture(t)
	event := f.report(t, func(in *ReportInput) { in.Seriousness = Serious })
	before := len(f.notifier.Triggers())

	desc := "updated narrative"
	if _, err := f.svc.Update(context.Background(), investigator, event.ID, UpdateInput{Description: &desc}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if after := len(f.notifier.Triggers()); after != before {
		t.Fatalf("cosmetic edit fired %d new notifications", after-before)
	}
}

func TestSubmit_RequiresCompleteness(t *testing.T) {
	f := newFixture(t)
	event := f.report(t, func(in *ReportInput) {
		in.Description = ""
		in.Seriousness = Serious
	})

	_, err := f.svc.Submit(context.Background(), investigator, event.ID)
	if !errs.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	got, _ := f.svc.Get(context.Background(), event.ID)
	if got.Status != StatusDraft {
		t.Fatalf("failed submit must leave status DRAFT, got %s", got.Status)
	}
}

func TestSubmit_SAERequiresActionTaken(t *testing.T) {
	f := newFixture(t)
	event := f.report(t, func(in *ReportInput) { in.Seriousness = Serious })

	_, err := f.svc.Submit(context.Background(), investigator, event.ID)
	if !errs.IsValidation(err) {
		t.Fatalf("expected validation error for missing action_taken, got %v", err)
	}
}

func TestSubmit_FiresRegulatoryTriggersAndSchedulesFollowUps(t *testing.T) {
	f := newFixture(t)
	event := f.report(t, func(in *ReportInput) {
		in.Seriousness = Serious
		in.Expectedness = Unexpected
		in.ActionTaken = "infusion stopped, participant monitored"
	})

	result, err := f.svc.Submit(context.Background(), investigator, event.ID)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.Event.ReportedAt == nil {
		t.Fatal("ReportedAt must be stamped")
	}
	for _, kind := range []notify.TriggerKind{notify.TriggerRegulatoryFDA, notify.TriggerRegulatorySponsor, notify.TriggerRegulatoryIRB} {
		if calls := f.notifier.TriggersOf(kind); len(calls) != 1 {
			t.Fatalf("expected one %s trigger, got %d", kind, len(calls))
		}
	}

	// Unexpected SAE gets the [7,14,30] schedule.
	due, err := f.svc.ListFollowUpsDue(context.Background(), f.clock.Now().AddDate(0, 0, 31))
	if err != nil {
		t.Fatalf("ListFollowUpsDue failed: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("expected 3 scheduled follow-ups, got %d", len(due))
	}
}

func TestSubmit_LateReportWarnsButSucceeds(t *testing.T) {
	f := newFixture(t)
	event := f.report(t, func(in *ReportInput) {
		onset := f.clock.Now().AddDate(0, 0, -20)
		in.OnsetDate = &onset
		in.Seriousness = Serious
		in.ActionTaken = "dose held"
	})

	result, err := f.svc.Submit(context.Background(), investigator, event.ID)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected a deadline warning, got %v", result.Warnings)
	}
	if result.Event.Status != StatusReported {
		t.Fatalf("late report must still file, status = %s", result.Event.Status)
	}
}

func TestSubmit_Twice(t *testing.T) {
	f := newFixture(t)
	event := f.report(t, nil)
	if _, err := f.svc.Submit(context.Background(), investigator, event.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	_, err := f.svc.Submit(context.Background(), investigator, event.ID)
	if !errs.IsPrecondition(err) {
		t.Fatalf("expected precondition error on double submit, got %v", err)
	}
}

func TestAddHospitalization_ForcesSerious(t *testing.T) {
	f := newFixture(t)
	event := f.report(t, nil)

	admitted := f.clock.Now()
	updated, err := f.svc.AddHospitalization(context.Background(), investigator, event.ID, HospitalizationInput{
		AdmissionDate: admitted,
		Reason:        "observation after syncope",
	})
	if err != nil {
		t.Fatalf("AddHospitalization failed: %v", err)
	}
	if updated.Seriousness != Serious || !updated.IsSAE {
		t.Fatalf("hospitalization must force SERIOUS/SAE: %+v", updated)
	}
	if updated.SAEReportID == "" {
		t.Fatal("newly serious event must get an SAE report id")
	}
	if len(updated.Hospitalizations) != 1 {
		t.Fatalf("expected 1 hospitalization, got %d", len(updated.Hospitalizations))
	}
}

func TestAddHospitalization_RejectsBackwardsDates(t *testing.T) {
	f := newFixture(t)
	event := f.report(t, nil)

	admitted := f.clock.Now()
	discharged := admitted.AddDate(0, 0, -2)
	_, err := f.svc.AddHospitalization(context.Background(), investigator, event.ID, HospitalizationInput{
		AdmissionDate: admitted,
		DischargeDate: &discharged,
	})
	if !errs.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAddFollowUpReport(t *testing.T) {
	f := newFixture(t)
	event := f.report(t, nil)

	// Follow-ups only attach to filed reports.
	_, err := f.svc.AddFollowUpReport(context.Background(), investigator, event.ID, uuid.New())
	if !errs.IsPrecondition(err) {
		t.Fatalf("expected precondition error on draft, got %v", err)
	}

	if _, err := f.svc.Submit(context.Background(), investigator, event.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	serious := Serious
	if _, err := f.svc.Update(context.Background(), investigator, event.ID, UpdateInput{Seriousness: &serious}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	docID := uuid.New()
	updated, err := f.svc.AddFollowUpReport(context.Background(), investigator, event.ID, docID)
	if err != nil {
		t.Fatalf("AddFollowUpReport failed: %v", err)
	}
	if updated.Status != StatusReported {
		t.Fatalf("status = %s, want REPORTED after follow-up", updated.Status)
	}
	if len(updated.FollowUpReportIDs) != 1 || updated.FollowUpReportIDs[0] != docID {
		t.Fatalf("follow-up document not recorded: %v", updated.FollowUpReportIDs)
	}
}

func TestMarkFollowUpSent(t *testing.T) {
	f := newFixture(t)
	event := f.report(t, nil)
	if _, err := f.svc.Submit(context.Background(), investigator, event.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	horizon := f.clock.Now().AddDate(0, 0, 31)
	due, err := f.svc.ListFollowUpsDue(context.Background(), horizon)
	if err != nil {
		t.Fatalf("ListFollowUpsDue failed: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("routine event should have 1 reminder, got %d", len(due))
	}
	if err := f.svc.MarkFollowUpSent(context.Background(), due[0].ID); err != nil {
		t.Fatalf("MarkFollowUpSent failed: %v", err)
	}
	due, err = f.svc.ListFollowUpsDue(context.Background(), horizon)
	if err != nil {
		t.Fatalf("ListFollowUpsDue failed: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("sent reminder should drop out, got %d", len(due))
	}
}
