package submission

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists submissions.
type Repository interface {
	Create(ctx context.Context, s *Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*Submission, error)
	Update(ctx context.Context, s *Submission) error
	List(ctx context.Context, f ListFilter) ([]*Submission, int, error)
	// ListContinuingReviewDue returns non-terminal-free approved submissions
	// whose continuing review falls due on or before the given instant.
	ListContinuingReviewDue(ctx context.Context, before time.Time) ([]*Submission, error)
}

// ListFilter narrows List results.
type ListFilter struct {
	StudyID *uuid.UUID
	Status  *Status
	Limit   int
	Offset  int
}

// ReviewRepository persists reviewer assignments.
type ReviewRepository interface {
	Create(ctx context.Context, r *Review) error
	GetByID(ctx context.Context, id uuid.UUID) (*Review, error)
	Update(ctx context.Context, r *Review) error
	ListBySubmission(ctx context.Context, submissionID uuid.UUID) ([]*Review, error)
	ListByReviewer(ctx context.Context, reviewerID string) ([]*Review, error)
	// ListOverdue returns reviews still ASSIGNED or IN_PROGRESS whose due
	// date has passed.
	ListOverdue(ctx context.Context, asOf time.Time) ([]*Review, error)
}

// ReviewerDirectory provides reviewer availability for auto-assignment.
// The identity system lives outside the engine.
type ReviewerDirectory interface {
	NextExpeditedReviewer(ctx context.Context) (string, error)
}

// StaticDirectory hands out expedited reviewers round-robin from a fixed
// list.
type StaticDirectory struct {
	mu        sync.Mutex
	Reviewers []string
	next      int
}

func (d *StaticDirectory) NextExpeditedReviewer(_ context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Reviewers) == 0 {
		return "", ErrNoReviewerAvailable
	}
	id := d.Reviewers[d.next%len(d.Reviewers)]
	d.next++
	return id, nil
}
