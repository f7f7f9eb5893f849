package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/irbhub/irbhub/internal/platform/audit"
	"github.com/irbhub/irbhub/internal/platform/auth"
	"github.com/irbhub/irbhub/internal/platform/clock"
	"github.com/irbhub/irbhub/internal/platform/db"
	"github.com/irbhub/irbhub/internal/platform/errs"
)

// Service records and queries compliance metrics.
type Service struct {
	repo   Repository
	runner db.Runner
	audit  *audit.Recorder
	clock  clock.Clock
	logger zerolog.Logger
}

type Config struct {
	Repo   Repository
	Runner db.Runner
	Audit  *audit.Recorder
	Clock  clock.Clock
	Logger zerolog.Logger
}

func NewService(cfg Config) *Service {
	return &Service{
		repo:   cfg.Repo,
		runner: cfg.Runner,
		audit:  cfg.Audit,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}
}

// RecordInput carries one measurement.
type RecordInput struct {
	StudyID    uuid.UUID    `json:"study_id"`
	MetricType string       `json:"metric_type"`
	Status     MetricStatus `json:"status"`
	Detail     string       `json:"detail"`
	MeasuredAt *time.Time   `json:"measured_at"`
}

// Record stores a measurement. Only oversight roles may record metrics.
func (s *Service) Record(ctx context.Context, actor auth.Actor, in RecordInput) (*Metric, error) {
	if !actor.HasRole(auth.RoleAdmin) && !actor.HasRole(auth.RoleCoordinator) && !actor.HasRole(auth.RoleSafetyOfficer) {
		return nil, &auth.CapabilityError{ActorID: actor.ID, Action: "compliance.record"}
	}
	var missing []string
	if in.StudyID == uuid.Nil {
		missing = append(missing, "study_id")
	}
	if in.MetricType == "" {
		missing = append(missing, "metric_type")
	}
	if in.Status == "" {
		missing = append(missing, "status")
	}
	if len(missing) > 0 {
		return nil, errs.Validation(missing...)
	}

	now := s.clock.Now()
	measured := now
	if in.MeasuredAt != nil {
		measured = *in.MeasuredAt
	}
	metric := &Metric{
		ID:         uuid.New(),
		StudyID:    in.StudyID,
		MetricType: in.MetricType,
		Status:     in.Status,
		Detail:     in.Detail,
		MeasuredAt: measured,
		CreatedAt:  now,
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Record(ctx, metric); err != nil {
			return fmt.Errorf("record metric: %w", err)
		}
		s.audit.Record(ctx, actor.ID, "compliance.record", "compliance_metric", metric.ID.String(),
			nil, audit.Snapshot(metric), nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return metric, nil
}

// Get retrieves a metric.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Metric, error) {
	metric, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errs.NotFound("compliance metric", id.String())
	}
	return metric, nil
}

// List returns metrics matching the filter with the total count.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Metric, int, error) {
	return s.repo.List(ctx, f)
}
