package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/irbhub/irbhub/internal/platform/clock"
)

type memSink struct {
	mu      sync.Mutex
	entries []Entry
	fail    error
}

func (s *memSink) Record(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.entries = append(s.entries, e)
	return nil
}

func TestRecorder_WritesEntry(t *testing.T) {
	sink := &memSink{}
	fc := clock.NewFake(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	r := NewRecorder(sink, zerolog.Nop(), fc)

	r.Record(context.Background(), "coordinator-1", "submission.submit", "submission", "abc",
		map[string]interface{}{"status": "DRAFT"},
		map[string]interface{}{"status": "SUBMITTED"},
		map[string]string{"reason": "initial"})

	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(sink.entries))
	}
	e := sink.entries[0]
	if e.ActorID != "coordinator-1" || e.Action != "submission.submit" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.OldValue["status"] != "DRAFT" || e.NewValue["status"] != "SUBMITTED" {
		t.Fatalf("snapshots not carried: %+v", e)
	}
	if !e.RecordedAt.Equal(fc.Now()) {
		t.Fatalf("RecordedAt = %v, want clock time", e.RecordedAt)
	}
}

func TestRecorder_SwallowsSinkFailure(t *testing.T) {
	sink := &memSink{fail: errors.New("disk full")}
	r := NewRecorder(sink, zerolog.Nop(), clock.NewFake(time.Now()))

	// Must not panic or propagate; the call site has no error to handle.
	r.Record(context.Background(), "actor", "action", "entity", "id", nil, nil, nil)
	if len(sink.entries) != 0 {
		t.Fatalf("failed sink should hold no entries, got %d", len(sink.entries))
	}
}

func TestSnapshot(t *testing.T) {
	type thing struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	m := Snapshot(thing{Name: "protocol", Count: 2})
	if m["name"] != "protocol" {
		t.Fatalf("snapshot = %v", m)
	}
	// json numbers arrive as float64
	if m["count"] != float64(2) {
		t.Fatalf("snapshot count = %v (%T)", m["count"], m["count"])
	}
	if Snapshot(nil) != nil {
		t.Fatal("nil input should snapshot to nil")
	}
	// Non-object values cannot become maps.
	if Snapshot(42) != nil {
		t.Fatal("scalar input should snapshot to nil")
	}
}
