// Package adverseevent implements adverse event intake, SAE classification,
// regulatory reporting timelines, and the follow-up workflow.
package adverseevent

import (
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityMild            Severity = "MILD"
	SeverityModerate        Severity = "MODERATE"
	SeveritySevere          Severity = "SEVERE"
	SeverityLifeThreatening Severity = "LIFE_THREATENING"
)

type Seriousness string

const (
	NonSerious Seriousness = "NON_SERIOUS"
	Serious    Seriousness = "SERIOUS"
)

type Expectedness string

const (
	Expected   Expectedness = "EXPECTED"
	Unexpected Expectedness = "UNEXPECTED"
)

// Relatedness is the 5-point causality scale.
type Relatedness string

const (
	Unrelated Relatedness = "UNRELATED"
	Unlikely  Relatedness = "UNLIKELY"
	Possible  Relatedness = "POSSIBLE"
	Probable  Relatedness = "PROBABLE"
	Definite  Relatedness = "DEFINITE"
)

type Outcome string

const (
	OutcomeRecovered             Outcome = "RECOVERED"
	OutcomeRecovering            Outcome = "RECOVERING"
	OutcomeNotRecovered          Outcome = "NOT_RECOVERED"
	OutcomeRecoveredWithSequelae Outcome = "RECOVERED_WITH_SEQUELAE"
	OutcomeFatal                 Outcome = "FATAL"
	OutcomeUnknown               Outcome = "UNKNOWN"
)

// Timeline is the regulatory reporting tier.
type Timeline string

const (
	TimelineImmediate      Timeline = "IMMEDIATE"
	TimelineExpedited7Day  Timeline = "EXPEDITED_7_DAY"
	TimelineExpedited15Day Timeline = "EXPEDITED_15_DAY"
	TimelineRoutine        Timeline = "ROUTINE"
)

type Status string

const (
	StatusDraft            Status = "DRAFT"
	StatusRequiresFollowUp Status = "REQUIRES_FOLLOWUP"
	StatusReported         Status = "REPORTED"
)

// Hospitalization is owned by exactly one adverse event. Adding one forces
// the event serious.
type Hospitalization struct {
	ID            uuid.UUID  `json:"id"`
	EventID       uuid.UUID  `json:"event_id"`
	AdmissionDate time.Time  `json:"admission_date"`
	DischargeDate *time.Time `json:"discharge_date,omitempty"`
	Reason        string     `json:"reason"`
	Hospital      string     `json:"hospital"`
	CreatedAt     time.Time  `json:"created_at"`
}

// AdverseEvent is a reported adverse event on a study. The IsSAE,
// ReportableTo* and ReportingTimeline fields are classification outputs:
// they are recomputed on every write and never accepted from callers.
type AdverseEvent struct {
	ID            uuid.UUID  `json:"id"`
	StudyID       uuid.UUID  `json:"study_id"`
	ParticipantID *uuid.UUID `json:"participant_id,omitempty"`

	Description          string       `json:"description"`
	OnsetDate            *time.Time   `json:"onset_date,omitempty"`
	Severity             Severity     `json:"severity"`
	Seriousness          Seriousness  `json:"seriousness"`
	Expectedness         Expectedness `json:"expectedness"`
	Relatedness          Relatedness  `json:"relatedness"`
	Outcome              Outcome      `json:"outcome"`
	MedicallySignificant bool         `json:"medically_significant"`
	ActionTaken          string       `json:"action_taken,omitempty"`

	IsSAE               bool     `json:"is_sae"`
	ReportableToFDA     bool     `json:"reportable_to_fda"`
	ReportableToSponsor bool     `json:"reportable_to_sponsor"`
	ReportableToIRB     bool     `json:"reportable_to_irb"`
	ReportingTimeline   Timeline `json:"reporting_timeline"`
	SAEReportID         string   `json:"sae_report_id,omitempty"`

	Hospitalizations  []Hospitalization `json:"hospitalizations"`
	FollowUpReportIDs []uuid.UUID       `json:"follow_up_report_ids,omitempty"`

	Status     Status     `json:"status"`
	ReportedAt *time.Time `json:"reported_at,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FollowUpReminder records the intent to prompt a follow-up report. Timed
// delivery is the compliance monitor's job.
type FollowUpReminder struct {
	ID      uuid.UUID `json:"id"`
	EventID uuid.UUID `json:"event_id"`
	DueDate time.Time `json:"due_date"`
	Sent    bool      `json:"sent"`
}
