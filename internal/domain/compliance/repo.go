package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows List results. Nil fields mean "any".
type ListFilter struct {
	StudyID *uuid.UUID
	Status  *MetricStatus
	Limit   int
	Offset  int
}

// Repository is the persistence boundary for compliance metrics.
type Repository interface {
	Record(ctx context.Context, m *Metric) error
	GetByID(ctx context.Context, id uuid.UUID) (*Metric, error)
	List(ctx context.Context, f ListFilter) ([]*Metric, int, error)

	// ListFlaggedSince returns NON_COMPLIANT and CRITICAL metrics
	// measured at or after the cutoff.
	ListFlaggedSince(ctx context.Context, since time.Time) ([]*Metric, error)
}
