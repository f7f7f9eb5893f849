package submission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/irbhub/irbhub/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the Postgres submission repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const submissionCols = `id, study_id, submission_type, review_type, status, title, description,
	document_ids, expedited_categories, exempt_category, assigned_reviewer_ids,
	decision, conditions, modifications, withdrawal_reason,
	submitted_at, decided_at, expiration_date, next_review_due,
	created_by, created_at, updated_at`

func scanSubmission(row pgx.Row) (*Submission, error) {
	var s Submission
	err := row.Scan(&s.ID, &s.StudyID, &s.Type, &s.ReviewType, &s.Status, &s.Title, &s.Description,
		&s.DocumentIDs, &s.ExpeditedCategories, &s.ExemptCategory, &s.AssignedReviewerIDs,
		&s.Decision, &s.Conditions, &s.Modifications, &s.WithdrawalReason,
		&s.SubmittedAt, &s.DecidedAt, &s.ExpirationDate, &s.NextReviewDue,
		&s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *repoPG) Create(ctx context.Context, s *Submission) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO submission (`+submissionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		s.ID, s.StudyID, s.Type, s.ReviewType, s.Status, s.Title, s.Description,
		s.DocumentIDs, s.ExpeditedCategories, s.ExemptCategory, s.AssignedReviewerIDs,
		s.Decision, s.Conditions, s.Modifications, s.WithdrawalReason,
		s.SubmittedAt, s.DecidedAt, s.ExpirationDate, s.NextReviewDue,
		s.CreatedBy, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Submission, error) {
	return scanSubmission(r.conn(ctx).QueryRow(ctx,
		`SELECT `+submissionCols+` FROM submission WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, s *Submission) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE submission SET
			status = $2, title = $3, description = $4,
			document_ids = $5, expedited_categories = $6, exempt_category = $7,
			assigned_reviewer_ids = $8, decision = $9, conditions = $10,
			modifications = $11, withdrawal_reason = $12, submitted_at = $13,
			decided_at = $14, expiration_date = $15, next_review_due = $16,
			updated_at = $17
		WHERE id = $1`,
		s.ID, s.Status, s.Title, s.Description,
		s.DocumentIDs, s.ExpeditedCategories, s.ExemptCategory,
		s.AssignedReviewerIDs, s.Decision, s.Conditions,
		s.Modifications, s.WithdrawalReason, s.SubmittedAt,
		s.DecidedAt, s.ExpirationDate, s.NextReviewDue,
		s.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("submission %s not found", s.ID)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter) ([]*Submission, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	n := 0
	if f.StudyID != nil {
		n++
		where += fmt.Sprintf(" AND study_id = $%d", n)
		args = append(args, *f.StudyID)
	}
	if f.Status != nil {
		n++
		where += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, *f.Status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT count(*) FROM submission `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM submission %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		submissionCols, where, limit, f.Offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var subs []*Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		subs = append(subs, s)
	}
	return subs, total, rows.Err()
}

func (r *repoPG) ListContinuingReviewDue(ctx context.Context, before time.Time) ([]*Submission, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+submissionCols+` FROM submission
		WHERE next_review_due IS NOT NULL AND next_review_due <= $1
		  AND status IN ($2, $3)
		ORDER BY next_review_due`,
		before, StatusApproved, StatusApprovedWithConditions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// =========== Review Repository ===========

type reviewRepoPG struct{ pool *pgxpool.Pool }

// NewReviewRepoPG creates the Postgres review repository.
func NewReviewRepoPG(pool *pgxpool.Pool) ReviewRepository {
	return &reviewRepoPG{pool: pool}
}

func (r *reviewRepoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const reviewCols = `id, submission_id, reviewer_id, role, status, recommendation,
	due_date, completed_at, created_at, updated_at`

func scanReview(row pgx.Row) (*Review, error) {
	var rv Review
	err := row.Scan(&rv.ID, &rv.SubmissionID, &rv.ReviewerID, &rv.Role, &rv.Status, &rv.Recommendation,
		&rv.DueDate, &rv.CompletedAt, &rv.CreatedAt, &rv.UpdatedAt)
	return &rv, err
}

func (r *reviewRepoPG) Create(ctx context.Context, rv *Review) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO review (`+reviewCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rv.ID, rv.SubmissionID, rv.ReviewerID, rv.Role, rv.Status, rv.Recommendation,
		rv.DueDate, rv.CompletedAt, rv.CreatedAt, rv.UpdatedAt)
	return err
}

func (r *reviewRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Review, error) {
	return scanReview(r.conn(ctx).QueryRow(ctx,
		`SELECT `+reviewCols+` FROM review WHERE id = $1`, id))
}

func (r *reviewRepoPG) Update(ctx context.Context, rv *Review) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE review SET
			status = $2, recommendation = $3, due_date = $4,
			completed_at = $5, updated_at = $6
		WHERE id = $1`,
		rv.ID, rv.Status, rv.Recommendation, rv.DueDate,
		rv.CompletedAt, rv.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("review %s not found", rv.ID)
	}
	return nil
}

func (r *reviewRepoPG) ListBySubmission(ctx context.Context, submissionID uuid.UUID) ([]*Review, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+reviewCols+` FROM review
		WHERE submission_id = $1 ORDER BY created_at`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []*Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, rv)
	}
	return reviews, rows.Err()
}

func (r *reviewRepoPG) ListByReviewer(ctx context.Context, reviewerID string) ([]*Review, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+reviewCols+` FROM review
		WHERE reviewer_id = $1 ORDER BY created_at`, reviewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []*Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, rv)
	}
	return reviews, rows.Err()
}

func (r *reviewRepoPG) ListOverdue(ctx context.Context, asOf time.Time) ([]*Review, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+reviewCols+` FROM review
		WHERE due_date IS NOT NULL AND due_date < $1
		  AND status IN ($2, $3)
		ORDER BY due_date`,
		asOf, ReviewAssigned, ReviewInProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []*Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, rv)
	}
	return reviews, rows.Err()
}
