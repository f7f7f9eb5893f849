// Package compliance stores compliance metrics and runs the periodic
// oversight scans that turn due dates into notifications.
package compliance

import (
	"time"

	"github.com/google/uuid"
)

type MetricStatus string

const (
	StatusCompliant    MetricStatus = "COMPLIANT"
	StatusWarning      MetricStatus = "WARNING"
	StatusNonCompliant MetricStatus = "NON_COMPLIANT"
	StatusCritical     MetricStatus = "CRITICAL"
)

// Flagged reports whether the status warrants attention from the scans.
func (s MetricStatus) Flagged() bool {
	return s == StatusNonCompliant || s == StatusCritical
}

// Metric is one compliance measurement on a study, e.g. consent form
// currency or enrollment against the approved ceiling.
type Metric struct {
	ID         uuid.UUID    `json:"id"`
	StudyID    uuid.UUID    `json:"study_id"`
	MetricType string       `json:"metric_type"`
	Status     MetricStatus `json:"status"`
	Detail     string       `json:"detail,omitempty"`
	MeasuredAt time.Time    `json:"measured_at"`
	CreatedAt  time.Time    `json:"created_at"`
}
