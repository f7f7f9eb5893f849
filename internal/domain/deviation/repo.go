package deviation

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows List results. Nil fields mean "any".
type ListFilter struct {
	StudyID        *uuid.UUID
	Status         *Status
	Severity       *Severity
	ReportableOnly bool
	Limit          int
	Offset         int
}

// Repository is the persistence boundary for protocol deviations.
type Repository interface {
	Create(ctx context.Context, d *Deviation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Deviation, error)
	Update(ctx context.Context, d *Deviation) error
	List(ctx context.Context, f ListFilter) ([]*Deviation, int, error)
}
