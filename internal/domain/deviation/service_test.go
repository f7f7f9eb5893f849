package deviation

import (
	"context"
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

type memRepo struct {
	mu   sync.Mutex
	devs map[uuid.UUID]*Deviation
}

func newMemRepo() *memRepo {
	return &memRepo{devs: make(map[uuid.UUID]*Deviation)}
}

func (m *memRepo) Create(_ context.Context, d *Deviation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.devs[d.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Deviation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devs[id]
	if !ok {
		return nil, errs.NotFound("deviation", id.String())
	}
	cp := *d
	return &cp, nil
}

func (m *memRepo) Update(_ context.Context, d *Deviation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devs[d.ID]; !ok {
		return errs.NotFound("deviation", d.ID.String())
	}
	cp := *d
	m.devs[d.ID] = &cp
	return nil
}

func (m *memRepo) List(_ context.Context, f ListFilter) ([]*Deviation, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Deviation
	for _, d := range m.devs {
		if f.StudyID != nil && d.StudyID != *f.StudyID {
			continue
		}
		if f.Status != nil && d.Status != *f.Status {
			continue
		}
		if f.Severity != nil && d.Severity != *f.Severity {
			continue
		}
		if f.ReportableOnly && !d.Reportable() {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, len(out), nil
}

type fixture struct {
	svc      *Service
	notifier *notify.MockNotifier
	clock    *clock.Fake
}

var (
	coordinator  = auth.Actor{ID: "coordinator-1", Roles: []string{auth.RoleCoordinator}}
	investigator = auth.Actor{ID: "investigator-1", Roles: []string{auth.RoleInvestigator}}
	reviewer     = auth.Actor{ID: "reviewer-1", Roles: []string{auth.RoleReviewer}}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fc := clock.NewFake(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	f := &fixture{
		notifier: &notify.MockNotifier{},
		clock:    fc,
	}
	f.svc = NewService(Config{
		Repo:         newMemRepo(),
		Runner:       db.PassthroughRunner{},
		Notifier:     f.notifier,
		Audit:        audit.NewRecorder(audit.NewLogSink(zerolog.Nop()), zerolog.Nop(), fc),
		Capabilities: auth.NewPolicyChecker(auth.DefaultPolicies()),
		Clock:        fc,
		Logger:       zerolog.Nop(),
	})
	return f
}

func (f *fixture) report(t *testing.T, mutate func(*ReportInput)) *Deviation {
	t.Helper()
	in := ReportInput{
		StudyID:     uuid.New(),
		Type:        TypeVisitSchedule,
		Severity:    SeverityMinor,
		Description: "Week 4 visit conducted 3 days outside window",
	}
	if mutate != nil {
		mutate(&in)
	}
	dev, err := f.svc.Report(context.Background(), investigator, in)
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	return dev
}

func reportedCount(f *fixture) int {
	return len(f.notifier.TriggersOf(notify.TriggerDeviationReported))
}

func urgentCount(f *fixture) int {
	return len(f.notifier.TriggersOf(notify.TriggerDeviationUrgent))
}

func TestAssess(t *testing.T) {
	cases := []struct {
		name                    string
		severity                Severity
		safety, dataIntegrity   bool
		wantIRB, wantFDA        bool
	}{
		{"minor", SeverityMinor, false, false, false, false},
		{"minor with safety", SeverityMinor, true, false, false, false},
		{"major benign", SeverityMajor, false, false, false, false},
		{"major safety", SeverityMajor, true, false, true, false},
		{"major data integrity", SeverityMajor, false, true, true, false},
		{"critical", SeverityCritical, false, false, true, false},
		{"critical safety", SeverityCritical, true, false, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := &Deviation{
				Severity:             tc.severity,
				AffectsSafety:        tc.safety,
				AffectsDataIntegrity: tc.dataIntegrity,
			}
			a := Assess(d)
			if a.ReportableToIRB != tc.wantIRB || a.ReportableToSponsor != tc.wantIRB {
				t.Errorf("IRB/sponsor = %t/%t, want %t", a.ReportableToIRB, a.ReportableToSponsor, tc.wantIRB)
			}
			if a.ReportableToFDA != tc.wantFDA {
				t.Errorf("FDA = %t, want %t", a.ReportableToFDA, tc.wantFDA)
			}
		})
	}
}

func TestRequiresImmediateNotification(t *testing.T) {
	cases := []struct {
		name     string
		severity Severity
		safety   bool
		want     bool
	}{
		{"minor benign", SeverityMinor, false, false},
		{"minor safety", SeverityMinor, true, true},
		{"major benign", SeverityMajor, false, false},
		{"major safety", SeverityMajor, true, true},
		{"critical benign", SeverityCritical, false, true},
		{"critical safety", SeverityCritical, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := &Deviation{Severity: tc.severity, AffectsSafety: tc.safety}
			if got := RequiresImmediateNotification(d); got != tc.want {
				t.Errorf("RequiresImmediateNotification = %t, want %t", got, tc.want)
			}
		})
	}
}

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

func TestReport_MinorStaysQuiet(t *testing.T) {
	f := newFixture(t)
	dev := f.report(t, nil)

	if dev.Reportable() {
		t.Fatalf("minor deviation should not be reportable: %+v", dev)
	}
	if got := reportedCount(f); got != 0 {
		t.Fatalf("expected no notifications, got %d", got)
	}
}

func TestReport_CriticalNotifies(t *testing.T) {
	f := newFixture(t)
	dev := f.report(t, func(in *ReportInput) {
		in.Severity = SeverityCritical
		in.AffectsSafety = true
	})

	if !dev.ReportableToIRB || !dev.ReportableToSponsor || !dev.ReportableToFDA {
		t.Fatalf("critical safety deviation must set every flag: %+v", dev)
	}
	if got := reportedCount(f); got != 1 {
		t.Fatalf("expected one notification, got %d", got)
	}
}

func TestReport_MinorSafetyImpactAlertsImmediately(t *testing.T) {
	f := newFixture(t)
	dev := f.report(t, func(in *ReportInput) {
		in.AffectsSafety = true
	})

	// A minor deviation carries no reporting obligations, but touching
	// participant safety still wakes the safety desk right away.
	if dev.Reportable() {
		t.Fatalf("minor deviation should not be reportable: %+v", dev)
	}
	if got := urgentCount(f); got != 1 {
		t.Fatalf("expected one urgent alert, got %d", got)
	}
	if got := reportedCount(f); got != 0 {
		t.Fatalf("expected no reported notification, got %d", got)
	}
}

func TestUpdate_SafetyEscalationAlertsOnce(t *testing.T) {
	f := newFixture(t)
	dev := f.report(t, nil)
	if got := urgentCount(f); got != 0 {
		t.Fatalf("benign minor deviation should not alert, got %d", got)
	}

	safety := true
	if _, err := f.svc.Update(context.Background(), investigator, dev.ID, UpdateInput{AffectsSafety: &safety}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got := urgentCount(f); got != 1 {
		t.Fatalf("safety escalation should alert, got %d", got)
	}

	// Further edits to an already-immediate deviation stay quiet.
	desc := "participant received expired study drug"
	if _, err := f.svc.Update(context.Background(), investigator, dev.ID, UpdateInput{Description: &desc}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got := urgentCount(f); got != 1 {
		t.Fatalf("repeat edit should not alert again, got %d", got)
	}
}

func TestReport_StudyValidityFlagPersists(t *testing.T) {
	f := newFixture(t)
	dev := f.report(t, func(in *ReportInput) {
		in.AffectsStudyValidity = true
	})

	got, err := f.svc.Get(context.Background(), dev.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.AffectsStudyValidity {
		t.Fatal("expected affects_study_validity to persist")
	}
	// Validity impact alone drives neither reporting nor urgent alerts.
	if got.Reportable() || urgentCount(f) != 0 {
		t.Fatalf("validity impact alone should stay quiet: %+v", got)
	}
}

func TestUpdate_RenotifiesOnlyWhenFlagsChange(t *testing.T) {
	f := newFixture(t)
	dev := f.report(t, func(in *ReportInput) {
		in.Severity = SeverityMajor
		in.AffectsSafety = true
	})
	if got := reportedCount(f); got != 1 {
		t.Fatalf("expected one notification at report, got %d", got)
	}

	// Rewording the description leaves the obligation set alone.
	desc := "visit conducted 5 days outside window"
	if _, err := f.svc.Update(context.Background(), investigator, dev.ID, UpdateInput{Description: &desc}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got := reportedCount(f); got != 1 {
		t.Fatalf("cosmetic edit should not re-notify, got %d", got)
	}

	// Escalating to critical changes the FDA flag and re-notifies.
	critical := SeverityCritical
	updated, err := f.svc.Update(context.Background(), investigator, dev.ID, UpdateInput{Severity: &critical})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !updated.ReportableToFDA {
		t.Fatal("critical safety deviation must be FDA-reportable")
	}
	if got := reportedCount(f); got != 2 {
		t.Fatalf("flag change should re-notify, got %d", got)
	}
}

func TestUpdate_DowngradeIsQuiet(t *testing.T) {
	f := newFixture(t)
	dev := f.report(t, func(in *ReportInput) {
		in.Severity = SeverityMajor
		in.AffectsDataIntegrity = true
	})

	// Downgrading clears the flags; nothing new is reportable, so no
	// fresh notification goes out.
	minor := SeverityMinor
	updated, err := f.svc.Update(context.Background(), investigator, dev.ID, UpdateInput{Severity: &minor})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Reportable() {
		t.Fatalf("downgraded deviation should not be reportable: %+v", updated)
	}
	if got := reportedCount(f); got != 1 {
		t.Fatalf("downgrade should not re-notify, got %d", got)
	}
}

func TestCorrectiveAction_Lifecycle(t *testing.T) {
	f := newFixture(t)
	dev := f.report(t, nil)

	_, err := f.svc.RecordCorrectiveAction(context.Background(), investigator, dev.ID, CorrectiveActionInput{})
	if !errs.IsValidation(err) {
		t.Fatalf("expected validation error without corrective_action, got %v", err)
	}

	resolved, err := f.svc.RecordCorrectiveAction(context.Background(), investigator, dev.ID, CorrectiveActionInput{
		CorrectiveAction: "visit rescheduled within window",
		PreventiveAction: "site calendar alerts enabled",
		RootCause:        "site staffing gap",
	})
	if err != nil {
		t.Fatalf("RecordCorrectiveAction failed: %v", err)
	}
	if resolved.Status != StatusResolved || resolved.ResolvedAt == nil {
		t.Fatalf("expected RESOLVED with timestamp: %+v", resolved)
	}

	_, err = f.svc.RecordCorrectiveAction(context.Background(), investigator, dev.ID, CorrectiveActionInput{
		CorrectiveAction: "again",
	})
	if !errs.IsPrecondition(err) {
		t.Fatalf("expected precondition error on double resolve, got %v", err)
	}
}

func TestClose_RequiresResolvedAndFreezes(t *testing.T) {
	f := newFixture(t)
	dev := f.report(t, nil)

	// Investigators cannot close; that is the coordinator's call.
	if _, err := f.svc.Close(context.Background(), investigator, dev.ID); err == nil {
		t.Fatal("expected capability denial for investigator close")
	}

	_, err := f.svc.Close(context.Background(), coordinator, dev.ID)
	if !errs.IsPrecondition(err) {
		t.Fatalf("expected precondition error closing REPORTED, got %v", err)
	}

	if _, err := f.svc.RecordCorrectiveAction(context.Background(), investigator, dev.ID, CorrectiveActionInput{
		CorrectiveAction: "retraining completed",
	}); err != nil {
		t.Fatalf("RecordCorrectiveAction failed: %v", err)
	}
	closed, err := f.svc.Close(context.Background(), coordinator, dev.ID)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if closed.Status != StatusClosed || closed.ClosedAt == nil {
		t.Fatalf("expected CLOSED with timestamp: %+v", closed)
	}

	// Closed deviations are immutable.
	desc := "late edit"
	_, err = f.svc.Update(context.Background(), investigator, dev.ID, UpdateInput{Description: &desc})
	if !errs.IsPrecondition(err) {
		t.Fatalf("expected precondition error editing closed deviation, got %v", err)
	}
}
