package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/irbhub/irbhub/internal/platform/audit"
	"github.com/irbhub/irbhub/internal/platform/auth"
	"github.com/irbhub/irbhub/internal/platform/clock"
	"github.com/irbhub/irbhub/internal/platform/db"
	"github.com/irbhub/irbhub/internal/platform/errs"
)

func newService(t *testing.T) (*Service, *memMetricRepo) {
	t.Helper()
	fc := clock.NewFake(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	repo := newMemMetricRepo()
	svc := NewService(Config{
		Repo:   repo,
		Runner: db.PassthroughRunner{},
		Audit:  audit.NewRecorder(audit.NewLogSink(zerolog.Nop()), zerolog.Nop(), fc),
		Clock:  fc,
		Logger: zerolog.Nop(),
	})
	return svc, repo
}

func TestRecord_RequiresOversightRole(t *testing.T) {
	svc, _ := newService(t)
	investigator := auth.Actor{ID: "investigator-1", Roles: []string{auth.RoleInvestigator}}
	_, err := svc.Record(context.Background(), investigator, RecordInput{
		StudyID:    uuid.New(),
		MetricType: "consent_version_currency",
		Status:     StatusWarning,
	})
	if err == nil {
		t.Fatal("expected capability denial for investigator")
	}
}

func TestRecord_RequiresFields(t *testing.T) {
	svc, _ := newService(t)
	officer := auth.Actor{ID: "safety-1", Roles: []string{auth.RoleSafetyOfficer}}
	_, err := svc.Record(context.Background(), officer, RecordInput{})
	if !errs.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRecord_StoresAndQueries(t *testing.T) {
	svc, _ := newService(t)
	officer := auth.Actor{ID: "safety-1", Roles: []string{auth.RoleSafetyOfficer}}
	metric, err := svc.Record(context.Background(), officer, RecordInput{
		StudyID:    uuid.New(),
		MetricType: "enrollment_ceiling",
		Status:     StatusNonCompliant,
		Detail:     "42 enrolled against an approved ceiling of 40",
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if metric.MeasuredAt.IsZero() {
		t.Fatal("MeasuredAt should default to now")
	}

	got, err := svc.Get(context.Background(), metric.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.MetricType != "enrollment_ceiling" || !got.Status.Flagged() {
		t.Fatalf("unexpected metric: %+v", got)
	}
}
