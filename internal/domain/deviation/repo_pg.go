package deviation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/irbhub/irbhub/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the Postgres deviation repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const deviationCols = `id, study_id, participant_id, deviation_type, severity, description,
	deviation_date, identified_date, affects_safety, affects_data_integrity,
	affects_study_validity, root_cause,
	reportable_to_irb, reportable_to_sponsor, reportable_to_fda,
	status, corrective_action, preventive_action, resolved_at, closed_at,
	created_by, created_at, updated_at`

func scanDeviation(row pgx.Row) (*Deviation, error) {
	var d Deviation
	err := row.Scan(&d.ID, &d.StudyID, &d.ParticipantID, &d.Type, &d.Severity, &d.Description,
		&d.DeviationDate, &d.IdentifiedDate, &d.AffectsSafety, &d.AffectsDataIntegrity,
		&d.AffectsStudyValidity, &d.RootCause,
		&d.ReportableToIRB, &d.ReportableToSponsor, &d.ReportableToFDA,
		&d.Status, &d.CorrectiveAction, &d.PreventiveAction, &d.ResolvedAt, &d.ClosedAt,
		&d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *repoPG) Create(ctx context.Context, d *Deviation) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO protocol_deviation (`+deviationCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		d.ID, d.StudyID, d.ParticipantID, d.Type, d.Severity, d.Description,
		d.DeviationDate, d.IdentifiedDate, d.AffectsSafety, d.AffectsDataIntegrity,
		d.AffectsStudyValidity, d.RootCause,
		d.ReportableToIRB, d.ReportableToSponsor, d.ReportableToFDA,
		d.Status, d.CorrectiveAction, d.PreventiveAction, d.ResolvedAt, d.ClosedAt,
		d.CreatedBy, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Deviation, error) {
	return scanDeviation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+deviationCols+` FROM protocol_deviation WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, d *Deviation) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE protocol_deviation SET
			deviation_type = $2, severity = $3, description = $4,
			deviation_date = $5, identified_date = $6, affects_safety = $7,
			affects_data_integrity = $8, affects_study_validity = $9, root_cause = $10,
			reportable_to_irb = $11, reportable_to_sponsor = $12, reportable_to_fda = $13,
			status = $14, corrective_action = $15, preventive_action = $16,
			resolved_at = $17, closed_at = $18, updated_at = $19
		WHERE id = $1`,
		d.ID, d.Type, d.Severity, d.Description,
		d.DeviationDate, d.IdentifiedDate, d.AffectsSafety,
		d.AffectsDataIntegrity, d.AffectsStudyValidity, d.RootCause,
		d.ReportableToIRB, d.ReportableToSponsor, d.ReportableToFDA,
		d.Status, d.CorrectiveAction, d.PreventiveAction,
		d.ResolvedAt, d.ClosedAt, d.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deviation %s not found", d.ID)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter) ([]*Deviation, int, error) {
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
	if f.Severity != nil {
		n++
		where += fmt.Sprintf(" AND severity = $%d", n)
		args = append(args, *f.Severity)
	}
	if f.ReportableOnly {
		where += " AND (reportable_to_irb OR reportable_to_sponsor OR reportable_to_fda)"
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT count(*) FROM protocol_deviation `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM protocol_deviation %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		deviationCols, where, limit, f.Offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var devs []*Deviation
	for rows.Next() {
		d, err := scanDeviation(rows)
		if err != nil {
			return nil, 0, err
		}
		devs = append(devs, d)
	}
	return devs, total, rows.Err()
}
