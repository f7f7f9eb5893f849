package adverseevent

import (
	"testing"
	"time"
)

func baseEvent() *AdverseEvent {
	return &AdverseEvent{
		Severity:     SeverityMild,
		Seriousness:  NonSerious,
		Expectedness: Expected,
		Relatedness:  Unrelated,
		Outcome:      OutcomeRecovered,
	}
}

func TestAssess_MildExpectedRecovered(t *testing.T) {
	a := Assess(baseEvent())
	if a.IsSAE || a.ReportableToFDA || a.ReportableToSponsor || a.ReportableToIRB {
		t.Fatalf("mild expected event should have no reporting flags: %+v", a)
	}
	if a.Timeline != TimelineRoutine {
		t.Fatalf("timeline = %s, want ROUTINE", a.Timeline)
	}
}

func TestAssess_LifeThreateningUnexpected(t *testing.T) {
	e := baseEvent()
	e.Severity = SeverityLifeThreatening
	e.Expectedness = Unexpected

	a := Assess(e)
	if !a.IsSAE || !a.ReportableToFDA || !a.ReportableToSponsor || !a.ReportableToIRB {
		t.Fatalf("life-threatening unexpected event should set every flag: %+v", a)
	}
	if a.Timeline != TimelineImmediate {
		t.Fatalf("timeline = %s, want IMMEDIATE", a.Timeline)
	}
	if !RequiresImmediateNotification(e) {
		t.Fatal("expected immediate notification")
	}
}

func TestAssess_FatalOutcomeOverridesTier(t *testing.T) {
	e := baseEvent()
	e.Outcome = OutcomeFatal

	a := Assess(e)
	if !a.IsSAE {
		t.Fatal("fatal outcome must be an SAE")
	}
	if a.Timeline != TimelineImmediate {
		t.Fatalf("timeline = %s, want IMMEDIATE", a.Timeline)
	}
	// Fatal but expected: sponsor and IRB yes, FDA no.
	if a.ReportableToFDA {
		t.Fatal("expected fatal event should not be FDA-reportable")
	}
	if !a.ReportableToSponsor || !a.ReportableToIRB {
		t.Fatalf("fatal event must report to sponsor and IRB: %+v", a)
	}
}

func TestAssess_HospitalizationForcesSAE(t *testing.T) {
	e := baseEvent()
	e.Hospitalizations = []Hospitalization{{AdmissionDate: time.Now()}}

	a := Assess(e)
	if !a.IsSAE {
		t.Fatal("hospitalization must make the event an SAE")
	}
	if a.Timeline != TimelineExpedited15Day {
		t.Fatalf("timeline = %s, want EXPEDITED_15_DAY", a.Timeline)
	}
}

func TestAssess_UnexpectedSAEIsSevenDay(t *testing.T) {
	e := baseEvent()
	e.Seriousness = Serious
	e.Expectedness = Unexpected

	a := Assess(e)
	if a.Timeline != TimelineExpedited7Day {
		t.Fatalf("timeline = %s, want EXPEDITED_7_DAY", a.Timeline)
	}
	if !a.ReportableToFDA {
		t.Fatal("unexpected SAE must be FDA-reportable")
	}
	if !RequiresImmediateNotification(e) {
		t.Fatal("unexpected SAE warrants immediate notification")
	}
}

func TestAssess_MedicallySignificantRelated(t *testing.T) {
	e := baseEvent()
	e.MedicallySignificant = true
	e.Relatedness = Possible

	a := Assess(e)
	if !a.IsSAE {
		t.Fatal("medically significant event is an SAE")
	}
	if !a.ReportableToIRB {
		t.Fatal("related medically significant event must be IRB-reportable")
	}
}

func TestAssess_IRBWithoutSAE(t *testing.T) {
	// Relatedness alone, without medical significance, does not reach
	// the IRB.
	e := baseEvent()
	e.Relatedness = Definite

	a := Assess(e)
	if a.ReportableToIRB {
		t.Fatal("related but insignificant event should not be IRB-reportable")
	}
}

func TestFollowUpOffsets(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AdverseEvent)
		want   []int
	}{
		{"life threatening", func(e *AdverseEvent) { e.Severity = SeverityLifeThreatening }, []int{1, 3, 7, 14, 30}},
		{"fatal", func(e *AdverseEvent) { e.Outcome = OutcomeFatal }, []int{1, 3, 7, 14, 30}},
		{"serious", func(e *AdverseEvent) { e.Seriousness = Serious }, []int{7, 14, 30}},
		{"routine", func(*AdverseEvent) {}, []int{30}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := baseEvent()
			tc.mutate(e)
			got := FollowUpOffsets(e)
			if len(got) != len(tc.want) {
				t.Fatalf("offsets = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("offsets = %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestDeadlineDays(t *testing.T) {
	cases := map[Timeline]int{
		TimelineImmediate:      1,
		TimelineExpedited7Day:  7,
		TimelineExpedited15Day: 15,
		TimelineRoutine:        30,
	}
	for tl, want := range cases {
		if got := DeadlineDays(tl); got != want {
			t.Errorf("DeadlineDays(%s) = %d, want %d", tl, got, want)
		}
	}
}

func TestApply_ReportsDerivedChanges(t *testing.T) {
	e := baseEvent()
	if changed := Assess(e).apply(e); !changed {
		t.Fatal("first apply should set the routine timeline")
	}
	if changed := Assess(e).apply(e); changed {
		t.Fatal("re-applying the same assessment should report no change")
	}

	e.Seriousness = Serious
	if changed := Assess(e).apply(e); !changed {
		t.Fatal("upgrading to serious should change derived fields")
	}
}
