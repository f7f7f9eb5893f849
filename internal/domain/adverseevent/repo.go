package adverseevent

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows List results. Nil fields mean "any".
type ListFilter struct {
	StudyID *uuid.UUID
	Status  *Status
	SAEOnly bool
	Limit   int
	Offset  int
}

// Repository is the persistence boundary for adverse events.
type Repository interface {
	Create(ctx context.Context, e *AdverseEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*AdverseEvent, error)
	Update(ctx context.Context, e *AdverseEvent) error
	List(ctx context.Context, f ListFilter) ([]*AdverseEvent, int, error)

	AddHospitalization(ctx context.Context, h *Hospitalization) error

	// NextSAESequence returns the next value of the per-year SAE report
	// counter. Calls inside a transaction must see a consistent counter.
	NextSAESequence(ctx context.Context, year int) (int, error)

	ScheduleFollowUp(ctx context.Context, r *FollowUpReminder) error
	ListFollowUpsDue(ctx context.Context, asOf time.Time) ([]*FollowUpReminder, error)
	MarkFollowUpSent(ctx context.Context, id uuid.UUID) error
}
