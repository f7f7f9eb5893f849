package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRegistry_RegisterRejectsDuplicates(t *testing.T) {
	r := New(zerolog.Nop())
	noop := func(context.Context) error { return nil }

	if err := r.Register("scan", time.Minute, noop); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register("scan", time.Minute, noop); !errors.Is(err, ErrDuplicateJob) {
		t.Errorf("expected ErrDuplicateJob, got %v", err)
	}
}

func TestRegistry_RegisterAfterStart(t *testing.T) {
	r := New(zerolog.Nop())
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop()

	err := r.Register("late", time.Minute, func(context.Context) error { return nil })
	if !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
	if err := r.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted on double start, got %v", err)
	}
}

func TestRegistry_TickerRunsJob(t *testing.T) {
	r := New(zerolog.Nop())
	var count atomic.Int64
	err := r.Register("tick", 10*time.Millisecond, func(context.Context) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for count.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("job did not run twice within deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
	r.Stop()
}

func TestRegistry_RunNow(t *testing.T) {
	r := New(zerolog.Nop())
	var ran atomic.Bool
	_ = r.Register("manual", time.Hour, func(context.Context) error {
		ran.Store(true)
		return nil
	})

	if err := r.RunNow(context.Background(), "manual"); err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}
	if !ran.Load() {
		t.Error("job did not run")
	}
	if err := r.RunNow(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestRegistry_NonReentrant(t *testing.T) {
	r := New(zerolog.Nop())
	release := make(chan struct{})
	started := make(chan struct{})
	_ = r.Register("slow", time.Hour, func(context.Context) error {
		close(started)
		<-release
		return nil
	})

	go func() { _ = r.RunNow(context.Background(), "slow") }()
	<-started

	if err := r.RunNow(context.Background(), "slow"); !errors.Is(err, ErrJobRunning) {
		t.Errorf("expected ErrJobRunning while job in flight, got %v", err)
	}
	close(release)
}

func TestRegistry_JobErrorCountsAsFailure(t *testing.T) {
	r := New(zerolog.Nop())
	_ = r.Register("failing", time.Hour, func(context.Context) error {
		return errors.New("scan failed")
	})

	if err := r.RunNow(context.Background(), "failing"); err == nil {
		t.Fatal("expected job error")
	}

	statuses := r.Status()
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}
	st := statuses[0]
	if st.Runs != 1 || st.Failures != 1 {
		t.Errorf("expected runs=1 failures=1, got runs=%d failures=%d", st.Runs, st.Failures)
	}
	if st.LastRun == nil {
		t.Error("expected LastRun to be set")
	}
}

func TestRegistry_StopWaitsForInFlightRun(t *testing.T) {
	r := New(zerolog.Nop())
	var finished atomic.Bool
	_ = r.Register("draining", 10*time.Millisecond, func(ctx context.Context) error {
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return nil
	})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Let at least one tick fire, then stop while the run may be in flight.
	time.Sleep(20 * time.Millisecond)
	r.Stop()

	if st := r.Status(); st[0].Runs > 0 && !finished.Load() {
		t.Error("Stop returned before in-flight run completed")
	}
}
