package adverseevent

// Assessment is the derived classification of an adverse event. It depends
// only on the event's reported attributes, never on its stored derived
// fields, so re-running Assess after an edit yields the current truth.
type Assessment struct {
	IsSAE               bool
	ReportableToFDA     bool
	ReportableToSponsor bool
	ReportableToIRB     bool
	Timeline            Timeline
}

// Assess classifies an adverse event and determines its reporting
// obligations and timeline.
func Assess(e *AdverseEvent) Assessment {
	sae := e.Seriousness == Serious ||
		e.Outcome == OutcomeFatal ||
		e.Severity == SeverityLifeThreatening ||
		len(e.Hospitalizations) > 0 ||
		e.MedicallySignificant

	a := Assessment{
		IsSAE:               sae,
		ReportableToFDA:     sae && e.Expectedness == Unexpected,
		ReportableToSponsor: sae,
		ReportableToIRB:     sae || (e.Relatedness != Unrelated && e.MedicallySignificant),
	}

	// Tiers are ordered by urgency; the first matching tier wins.
	switch {
	case e.Severity == SeverityLifeThreatening || e.Outcome == OutcomeFatal:
		a.Timeline = TimelineImmediate
	case sae && e.Expectedness == Unexpected:
		a.Timeline = TimelineExpedited7Day
	case sae:
		a.Timeline = TimelineExpedited15Day
	default:
		a.Timeline = TimelineRoutine
	}
	return a
}

// RequiresImmediateNotification reports whether the event warrants an
// out-of-band alert to the safety officer at intake, before any formal
// submission happens.
func RequiresImmediateNotification(e *AdverseEvent) bool {
	a := Assess(e)
	return e.Severity == SeverityLifeThreatening ||
		e.Outcome == OutcomeFatal ||
		(a.IsSAE && e.Expectedness == Unexpected)
}

// FollowUpOffsets returns the follow-up reminder schedule, in days after
// submission. Life-threatening and fatal events get the densest schedule.
func FollowUpOffsets(e *AdverseEvent) []int {
	a := Assess(e)
	switch {
	case e.Severity == SeverityLifeThreatening || e.Outcome == OutcomeFatal:
		return []int{1, 3, 7, 14, 30}
	case a.IsSAE:
		return []int{7, 14, 30}
	default:
		return []int{30}
	}
}

// DeadlineDays returns the number of days after onset by which the event
// must be formally reported for its timeline tier.
func DeadlineDays(t Timeline) int {
	switch t {
	case TimelineImmediate:
		return 1
	case TimelineExpedited7Day:
		return 7
	case TimelineExpedited15Day:
		return 15
	default:
		return 30
	}
}

// apply writes an assessment onto the event and reports whether any
// derived field changed.
func (a Assessment) apply(e *AdverseEvent) bool {
	changed := e.IsSAE != a.IsSAE ||
		e.ReportableToFDA != a.ReportableToFDA ||
		e.ReportableToSponsor != a.ReportableToSponsor ||
		e.ReportableToIRB != a.ReportableToIRB ||
		e.ReportingTimeline != a.Timeline
	e.IsSAE = a.IsSAE
	e.ReportableToFDA = a.ReportableToFDA
	e.ReportableToSponsor = a.ReportableToSponsor
	e.ReportableToIRB = a.ReportableToIRB
	e.ReportingTimeline = a.Timeline
	return changed
}
