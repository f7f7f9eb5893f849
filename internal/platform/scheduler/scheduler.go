// Package scheduler runs registered periodic jobs on independent tickers.
// Jobs are plain functions injected at wiring time; the registry guarantees
// a job never runs concurrently with itself and that every run is bounded
// by the registry's shutdown context.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrAlreadyStarted = errors.New("scheduler already started")
	ErrNotStarted     = errors.New("scheduler not started")
	ErrDuplicateJob   = errors.New("job already registered")
	ErrJobNotFound    = errors.New("job not found")
	ErrJobRunning     = errors.New("job is already running")
)

// Job is the unit of scheduled work. Implementations return an error to
// have the failure logged; a failing run never stops the schedule.
type Job func(ctx context.Context) error

type entry struct {
	name     string
	interval time.Duration
	job      Job
	running  atomic.Bool

	runs     atomic.Int64
	failures atomic.Int64
	lastRun  atomic.Value // time.Time
}

// JobStatus is a snapshot of one job's state.
type JobStatus struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Running  bool          `json:"running"`
	Runs     int64         `json:"runs"`
	Failures int64         `json:"failures"`
	LastRun  *time.Time    `json:"last_run,omitempty"`
}

// Registry owns the set of periodic jobs.
type Registry struct {
	logger zerolog.Logger

	mu      sync.Mutex
	jobs    map[string]*entry
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an empty registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{logger: logger, jobs: make(map[string]*entry)}
}

// Register adds a named job with its tick interval. Registration after
// Start is rejected.
func (r *Registry) Register(name string, interval time.Duration, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrAlreadyStarted
	}
	if _, exists := r.jobs[name]; exists {
		return ErrDuplicateJob
	}
	r.jobs[name] = &entry{name: name, interval: interval, job: job}
	return nil
}

// Start launches one ticker goroutine per registered job. The jobs stop
// when ctx is cancelled or Stop is called.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrAlreadyStarted
	}
	r.started = true

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for _, e := range r.jobs {
		r.wg.Add(1)
		go r.loop(runCtx, e)
	}
	r.logger.Info().Int("jobs", len(r.jobs)).Msg("scheduler started")
	return nil
}

func (r *Registry) loop(ctx context.Context, e *entry) {
	defer r.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.execute(ctx, e)
		}
	}
}

// execute runs one job iteration, skipping if the previous run has not
// finished. Panics are contained so a bad job cannot take down the server.
func (r *Registry) execute(ctx context.Context, e *entry) {
	if !e.running.CompareAndSwap(false, true) {
		r.logger.Warn().Str("job", e.name).Msg("previous run still in progress, skipping tick")
		return
	}
	defer e.running.Store(false)

	start := time.Now()
	e.lastRun.Store(start)
	e.runs.Add(1)

	defer func() {
		if rec := recover(); rec != nil {
			e.failures.Add(1)
			r.logger.Error().Str("job", e.name).Interface("panic", rec).Msg("scheduled job panicked")
		}
	}()

	if err := e.job(ctx); err != nil {
		e.failures.Add(1)
		r.logger.Error().Err(err).Str("job", e.name).Dur("elapsed", time.Since(start)).Msg("scheduled job failed")
		return
	}
	r.logger.Debug().Str("job", e.name).Dur("elapsed", time.Since(start)).Msg("scheduled job completed")
}

// RunNow executes a job immediately, outside its schedule. It returns
// ErrJobRunning if an iteration is in flight.
func (r *Registry) RunNow(ctx context.Context, name string) error {
	r.mu.Lock()
	e, ok := r.jobs[name]
	r.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}
	if !e.running.CompareAndSwap(false, true) {
		return ErrJobRunning
	}
	defer e.running.Store(false)

	e.lastRun.Store(time.Now())
	e.runs.Add(1)
	if err := e.job(ctx); err != nil {
		e.failures.Add(1)
		return err
	}
	return nil
}

// Stop cancels all job loops and waits for in-flight runs to finish.
func (r *Registry) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	r.logger.Info().Msg("scheduler stopped")
}

// Status returns a snapshot of every registered job.
func (r *Registry) Status() []JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]JobStatus, 0, len(r.jobs))
	for _, e := range r.jobs {
		st := JobStatus{
			Name:     e.name,
			Interval: e.interval,
			Running:  e.running.Load(),
			Runs:     e.runs.Load(),
			Failures: e.failures.Load(),
		}
		if v := e.lastRun.Load(); v != nil {
			t := v.(time.Time)
			st.LastRun = &t
		}
		out = append(out, st)
	}
	return out
}
