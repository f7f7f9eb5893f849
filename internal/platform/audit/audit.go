// Package audit provides the append-only compliance audit trail. Every
// workflow mutation records who did what to which entity, with before/after
// snapshots. Sink failures are logged loudly but never propagated: the
// recording call sites must not fail an operation because the trail write
// failed (see DESIGN.md for the open-question decision).
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/irbhub/irbhub/internal/platform/clock"
	"github.com/irbhub/irbhub/internal/platform/db"
)

// Entry is a single audit record.
type Entry struct {
	ID         uuid.UUID              `json:"id"`
	ActorID    string                 `json:"actor_id"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	OldValue   map[string]interface{} `json:"old_value,omitempty"`
	NewValue   map[string]interface{} `json:"new_value,omitempty"`
	Context    map[string]string      `json:"context,omitempty"`
	RecordedAt time.Time              `json:"recorded_at"`
}

// Sink receives audit entries. Implementations must be append-only.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// PGSink persists entries to the audit_entry table. It participates in the
// caller's transaction when one is present on the context, so the audit row
// commits atomically with the state change it describes.
type PGSink struct {
	pool *pgxpool.Pool
}

// NewPGSink creates a Sink backed by PostgreSQL.
func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

func (s *PGSink) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

func (s *PGSink) Record(ctx context.Context, e Entry) error {
	oldJSON, err := json.Marshal(e.OldValue)
	if err != nil {
		return err
	}
	newJSON, err := json.Marshal(e.NewValue)
	if err != nil {
		return err
	}
	ctxJSON, err := json.Marshal(e.Context)
	if err != nil {
		return err
	}
	_, err = s.conn(ctx).Exec(ctx, `
		INSERT INTO audit_entry (id, actor_id, action, entity_type, entity_id, old_value, new_value, context, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.ActorID, e.Action, e.EntityType, e.EntityID, oldJSON, newJSON, ctxJSON, e.RecordedAt)
	return err
}

// LogSink writes entries to the structured log only. Used in development
// and as a fallback when no database is wired.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a Sink that emits entries via zerolog.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(_ context.Context, e Entry) error {
	s.logger.Info().
		Str("type", "audit").
		Str("actor_id", e.ActorID).
		Str("action", e.Action).
		Str("entity_type", e.EntityType).
		Str("entity_id", e.EntityID).
		Time("recorded_at", e.RecordedAt).
		Msg("audit entry")
	return nil
}

// Recorder wraps a Sink with the engine's propagation policy: audit write
// failures are logged at error level with full entry detail, and swallowed.
type Recorder struct {
	sink   Sink
	logger zerolog.Logger
	clock  clock.Clock
}

// NewRecorder creates a Recorder.
func NewRecorder(sink Sink, logger zerolog.Logger, clk clock.Clock) *Recorder {
	return &Recorder{sink: sink, logger: logger, clock: clk}
}

// Record builds and writes an audit entry. Failures do not propagate.
func (r *Recorder) Record(ctx context.Context, actorID, action, entityType, entityID string, oldValue, newValue map[string]interface{}, kv map[string]string) {
	e := Entry{
		ID:         uuid.New(),
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		OldValue:   oldValue,
		NewValue:   newValue,
		Context:    kv,
		RecordedAt: r.clock.Now(),
	}
	if err := r.sink.Record(ctx, e); err != nil {
		// Audit completeness is a compliance requirement: this failure is
		// loud even though it does not abort the operation.
		r.logger.Error().Err(err).
			Str("actor_id", actorID).
			Str("action", action).
			Str("entity_type", entityType).
			Str("entity_id", entityID).
			Msg("AUDIT SINK WRITE FAILED - compliance trail incomplete")
	}
}

// Snapshot marshals v into the map form stored in Old/NewValue. Returns nil
// for a nil input or marshal failure.
func Snapshot(v interface{}) map[string]interface{} {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
