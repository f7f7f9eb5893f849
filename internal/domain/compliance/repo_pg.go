package compliance

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

// NewRepoPG creates the Postgres compliance metric repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const metricCols = `id, study_id, metric_type, status, detail, measured_at, created_at`

func scanMetric(row pgx.Row) (*Metric, error) {
	var m Metric
	err := row.Scan(&m.ID, &m.StudyID, &m.MetricType, &m.Status, &m.Detail, &m.MeasuredAt, &m.CreatedAt)
	return &m, err
}

func (r *repoPG) Record(ctx context.Context, m *Metric) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO compliance_metric (`+metricCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, m.StudyID, m.MetricType, m.Status, m.Detail, m.MeasuredAt, m.CreatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Metric, error) {
	return scanMetric(r.conn(ctx).QueryRow(ctx,
		`SELECT `+metricCols+` FROM compliance_metric WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, f ListFilter) ([]*Metric, int, error) {
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
	if err := r.conn(ctx).QueryRow(ctx, `SELECT count(*) FROM compliance_metric `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM compliance_metric %s ORDER BY measured_at DESC LIMIT %d OFFSET %d`,
		metricCols, where, limit, f.Offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var metrics []*Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, 0, err
		}
		metrics = append(metrics, m)
	}
	return metrics, total, rows.Err()
}

func (r *repoPG) ListFlaggedSince(ctx context.Context, since time.Time) ([]*Metric, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+metricCols+` FROM compliance_metric
		WHERE status IN ($1, $2) AND measured_at >= $3
		ORDER BY measured_at`,
		StatusNonCompliant, StatusCritical, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
