package adverseevent

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

// NewRepoPG creates the Postgres adverse-event repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const eventCols = `id, study_id, participant_id, description, onset_date,
	severity, seriousness, expectedness, relatedness, outcome,
	medically_significant, action_taken,
	is_sae, reportable_to_fda, reportable_to_sponsor, reportable_to_irb,
	reporting_timeline, sae_report_id, follow_up_report_ids,
	status, reported_at, created_by, created_at, updated_at`

func scanEvent(row pgx.Row) (*AdverseEvent, error) {
	var e AdverseEvent
	err := row.Scan(&e.ID, &e.StudyID, &e.ParticipantID, &e.Description, &e.OnsetDate,
		&e.Severity, &e.Seriousness, &e.Expectedness, &e.Relatedness, &e.Outcome,
		&e.MedicallySignificant, &e.ActionTaken,
		&e.IsSAE, &e.ReportableToFDA, &e.ReportableToSponsor, &e.ReportableToIRB,
		&e.ReportingTimeline, &e.SAEReportID, &e.FollowUpReportIDs,
		&e.Status, &e.ReportedAt, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	return &e, err
}

func (r *repoPG) Create(ctx context.Context, e *AdverseEvent) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO adverse_event (`+eventCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
		e.ID, e.StudyID, e.ParticipantID, e.Description, e.OnsetDate,
		e.Severity, e.Seriousness, e.Expectedness, e.Relatedness, e.Outcome,
		e.MedicallySignificant, e.ActionTaken,
		e.IsSAE, e.ReportableToFDA, e.ReportableToSponsor, e.ReportableToIRB,
		e.ReportingTimeline, e.SAEReportID, e.FollowUpReportIDs,
		e.Status, e.ReportedAt, e.CreatedBy, e.CreatedAt, e.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*AdverseEvent, error) {
	e, err := scanEvent(r.conn(ctx).QueryRow(ctx,
		`SELECT `+eventCols+` FROM adverse_event WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	hs, err := r.listHospitalizations(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Hospitalizations = hs
	return e, nil
}

func (r *repoPG) Update(ctx context.Context, e *AdverseEvent) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE adverse_event SET
			description = $2, onset_date = $3, severity = $4, seriousness = $5,
			expectedness = $6, relatedness = $7, outcome = $8,
			medically_significant = $9, action_taken = $10,
			is_sae = $11, reportable_to_fda = $12, reportable_to_sponsor = $13,
			reportable_to_irb = $14, reporting_timeline = $15, sae_report_id = $16,
			follow_up_report_ids = $17, status = $18, reported_at = $19,
			updated_at = $20
		WHERE id = $1`,
		e.ID, e.Description, e.OnsetDate, e.Severity, e.Seriousness,
		e.Expectedness, e.Relatedness, e.Outcome,
		e.MedicallySignificant, e.ActionTaken,
		e.IsSAE, e.ReportableToFDA, e.ReportableToSponsor,
		e.ReportableToIRB, e.ReportingTimeline, e.SAEReportID,
		e.FollowUpReportIDs, e.Status, e.ReportedAt,
		e.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("adverse event %s not found", e.ID)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter) ([]*AdverseEvent, int, error) {
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
	if f.SAEOnly {
		where += " AND is_sae"
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT count(*) FROM adverse_event `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM adverse_event %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		eventCols, where, limit, f.Offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*AdverseEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, e)
	}
	return events, total, rows.Err()
}

func (r *repoPG) AddHospitalization(ctx context.Context, h *Hospitalization) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO hospitalization (id, event_id, admission_date, discharge_date, reason, hospital, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		h.ID, h.EventID, h.AdmissionDate, h.DischargeDate, h.Reason, h.Hospital, h.CreatedAt)
	return err
}

func (r *repoPG) listHospitalizations(ctx context.Context, eventID uuid.UUID) ([]Hospitalization, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, event_id, admission_date, discharge_date, reason, hospital, created_at
		FROM hospitalization WHERE event_id = $1 ORDER BY admission_date`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hs []Hospitalization
	for rows.Next() {
		var h Hospitalization
		if err := rows.Scan(&h.ID, &h.EventID, &h.AdmissionDate, &h.DischargeDate, &h.Reason, &h.Hospital, &h.CreatedAt); err != nil {
			return nil, err
		}
		hs = append(hs, h)
	}
	return hs, rows.Err()
}

// NextSAESequence bumps the per-year counter and returns its new value.
// The upsert keeps the counter row self-creating on the first SAE of a
// year.
func (r *repoPG) NextSAESequence(ctx context.Context, year int) (int, error) {
	var seq int
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO sae_sequence (year, value) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET value = sae_sequence.value + 1
		RETURNING value`, year).Scan(&seq)
	return seq, err
}

func (r *repoPG) ScheduleFollowUp(ctx context.Context, rem *FollowUpReminder) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO followup_reminder (id, event_id, due_date, sent)
		VALUES ($1,$2,$3,$4)`,
		rem.ID, rem.EventID, rem.DueDate, rem.Sent)
	return err
}

func (r *repoPG) ListFollowUpsDue(ctx context.Context, asOf time.Time) ([]*FollowUpReminder, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, event_id, due_date, sent FROM followup_reminder
		WHERE NOT sent AND due_date <= $1 ORDER BY due_date`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rems []*FollowUpReminder
	for rows.Next() {
		var rem FollowUpReminder
		if err := rows.Scan(&rem.ID, &rem.EventID, &rem.DueDate, &rem.Sent); err != nil {
			return nil, err
		}
		rems = append(rems, &rem)
	}
	return rems, rows.Err()
}

func (r *repoPG) MarkFollowUpSent(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE followup_reminder SET sent = true WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("follow-up reminder %s not found", id)
	}
	return nil
}
