package deviation

// Assessment is the derived reporting obligation of a deviation.
type Assessment struct {
	ReportableToIRB     bool
	ReportableToSponsor bool
	ReportableToFDA     bool
}

// Assess determines who must be told about a deviation. Critical
// deviations always reach the IRB and sponsor; major ones only when they
// touch participant safety or data integrity. The FDA hears about
// critical safety deviations only.
func Assess(d *Deviation) Assessment {
	escalate := d.Severity == SeverityCritical ||
		(d.Severity == SeverityMajor && (d.AffectsSafety || d.AffectsDataIntegrity))
	return Assessment{
		ReportableToIRB:     escalate,
		ReportableToSponsor: escalate,
		ReportableToFDA:     d.Severity == SeverityCritical && d.AffectsSafety,
	}
}

// apply writes the assessment onto the deviation and reports whether any
// reporting flag changed.
func (a Assessment) apply(d *Deviation) bool {
	changed := d.ReportableToIRB != a.ReportableToIRB ||
		d.ReportableToSponsor != a.ReportableToSponsor ||
		d.ReportableToFDA != a.ReportableToFDA
	d.ReportableToIRB = a.ReportableToIRB
	d.ReportableToSponsor = a.ReportableToSponsor
	d.ReportableToFDA = a.ReportableToFDA
	return changed
}

// Reportable reports whether any obligation is currently set.
func (d *Deviation) Reportable() bool {
	return d.ReportableToIRB || d.ReportableToSponsor || d.ReportableToFDA
}

// RequiresImmediateNotification reports whether the deviation warrants an
// urgent alert regardless of its reporting obligations: anything critical,
// or anything touching participant safety at any severity.
func RequiresImmediateNotification(d *Deviation) bool {
	return d.Severity == SeverityCritical || d.AffectsSafety
}
