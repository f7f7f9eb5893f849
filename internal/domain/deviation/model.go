// Package deviation implements protocol deviation reporting, severity
// classification, and the corrective-action workflow.
package deviation

import (
	"time"

	"github.com/google/uuid"
)

// DeviationType names what part of the protocol was deviated from.
type DeviationType string

const (
	TypeInclusionCriteria DeviationType = "INCLUSION_CRITERIA"
	TypeExclusionCriteria DeviationType = "EXCLUSION_CRITERIA"
	TypeInformedConsent   DeviationType = "INFORMED_CONSENT"
	TypeStudyProcedure    DeviationType = "STUDY_PROCEDURE"
	TypeVisitSchedule     DeviationType = "VISIT_SCHEDULE"
	TypeMedicationDosing  DeviationType = "MEDICATION_DOSING"
	TypeRandomization     DeviationType = "RANDOMIZATION"
	TypeDataCollection    DeviationType = "DATA_COLLECTION"
	TypeSafetyReporting   DeviationType = "SAFETY_REPORTING"
	TypeEligibilityWaiver DeviationType = "ELIGIBILITY_WAIVER"
	TypeOther             DeviationType = "OTHER"
)

type Severity string

const (
	SeverityMinor    Severity = "MINOR"
	SeverityMajor    Severity = "MAJOR"
	SeverityCritical Severity = "CRITICAL"
)

type Status string

const (
	StatusReported Status = "REPORTED"
	StatusResolved Status = "RESOLVED"
	StatusClosed   Status = "CLOSED"
)

// Deviation is a reported departure from the approved protocol. The
// ReportableTo* fields are derived from severity and impact on every
// write and never accepted from callers.
type Deviation struct {
	ID            uuid.UUID  `json:"id"`
	StudyID       uuid.UUID  `json:"study_id"`
	ParticipantID *uuid.UUID `json:"participant_id,omitempty"`

	Type                 DeviationType `json:"deviation_type"`
	Severity             Severity      `json:"severity"`
	Description          string        `json:"description"`
	DeviationDate        *time.Time    `json:"deviation_date,omitempty"`
	IdentifiedDate       *time.Time    `json:"identified_date,omitempty"`
	AffectsSafety        bool          `json:"affects_safety"`
	AffectsDataIntegrity bool          `json:"affects_data_integrity"`
	AffectsStudyValidity bool          `json:"affects_study_validity"`
	RootCause            string        `json:"root_cause,omitempty"`

	ReportableToIRB     bool `json:"reportable_to_irb"`
	ReportableToSponsor bool `json:"reportable_to_sponsor"`
	ReportableToFDA     bool `json:"reportable_to_fda"`

	Status           Status     `json:"status"`
	CorrectiveAction string     `json:"corrective_action,omitempty"`
	PreventiveAction string     `json:"preventive_action,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the deviation can no longer be edited.
func (d *Deviation) Terminal() bool {
	return d.Status == StatusClosed
}
