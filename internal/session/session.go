// Package session owns the lifecycle of one monitoring run: it wires a
// sample source into the pipeline, persists decimated snapshots, and
// guarantees clean state between runs.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/pulse.report/internal/db"
	"github.com/banshee-data/pulse.report/internal/monitoring"
	"github.com/banshee-data/pulse.report/internal/ppg"
	"github.com/banshee-data/pulse.report/internal/timeutil"
)

// SampleSource produces the sample stream. The camera collaborator and
// the synthetic generator both satisfy it.
type SampleSource interface {
	Next() ppg.Sample
}

// RunnerConfig configures a session runner.
type RunnerConfig struct {
	Pipeline   ppg.PipelineConfig
	Store      *db.DB // nil disables persistence
	Decimation int    // persist every Nth snapshot; <=0 persists none
	SubjectAge float64
	Notes      string
	Clock      timeutil.Clock
}

// Runner drives the pipeline for one session at a time.
type Runner struct {
	cfg      RunnerConfig
	pipeline *ppg.Pipeline

	mu        sync.Mutex
	sessionID string
	running   bool
	tick      int
}

// NewRunner builds a runner and its pipeline. The persistence hook is
// installed on the pipeline config before construction so every
// snapshot passes through it on the consumer goroutine.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	r := &Runner{cfg: cfg}

	pcfg := cfg.Pipeline
	prev := pcfg.OnSnapshot
	pcfg.OnSnapshot = func(snap ppg.VitalSignsSnapshot) {
		r.persist(snap)
		if prev != nil {
			prev(snap)
		}
	}
	r.pipeline = ppg.NewPipeline(pcfg)
	return r
}

// Pipeline exposes the underlying pipeline for the API server.
func (r *Runner) Pipeline() *ppg.Pipeline { return r.pipeline }

// Start opens a new session. Estimator state is cleared first so
// nothing leaks from a previous run.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("session already running")
	}

	r.pipeline.Reset()
	r.tick = 0

	if r.cfg.Store != nil {
		id, err := r.cfg.Store.CreateSession(
			r.cfg.Clock.Now().UnixMilli(), r.cfg.SubjectAge, r.cfg.Notes,
		)
		if err != nil {
			return fmt.Errorf("failed to start session: %w", err)
		}
		r.sessionID = id
		monitoring.Logf("session %s started", id)
	}
	r.running = true
	return nil
}

// Stop closes the current session.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return nil
	}
	r.running = false

	if r.cfg.Store != nil && r.sessionID != "" {
		if err := r.cfg.Store.EndSession(r.sessionID, r.cfg.Clock.Now().UnixMilli()); err != nil {
			return fmt.Errorf("failed to end session: %w", err)
		}
		monitoring.Logf("session %s ended", r.sessionID)
	}
	return nil
}

// SessionID returns the active session's ID, or "" outside a session.
func (r *Runner) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return ""
	}
	return r.sessionID
}

// Feed pulls samples from the source and submits them to the pipeline
// until the context is cancelled. It paces itself to the gap between
// consecutive sample timestamps, so replaying a log reproduces the
// original timing.
func (r *Runner) Feed(ctx context.Context, source SampleSource) {
	var lastTs uint64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s := source.Next()
		if lastTs > 0 && s.TimestampMs > lastTs {
			r.cfg.Clock.Sleep(msToDuration(s.TimestampMs - lastTs))
		}
		lastTs = s.TimestampMs
		r.pipeline.Submit(s)
	}
}

// Run starts processing, blocks until the context ends, then stops the
// session.
func (r *Runner) Run(ctx context.Context, source SampleSource) error {
	if err := r.Start(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.pipeline.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		r.Feed(ctx, source)
	}()
	wg.Wait()

	return r.Stop()
}

// persist writes the snapshot at the configured decimation. It runs on
// the pipeline's consumer goroutine, serialised with processing, which
// keeps the sqlite writer single-threaded.
func (r *Runner) persist(snap ppg.VitalSignsSnapshot) {
	r.mu.Lock()
	id := r.sessionID
	running := r.running
	r.tick++
	tick := r.tick
	r.mu.Unlock()

	if !running || r.cfg.Store == nil || id == "" || r.cfg.Decimation <= 0 {
		return
	}
	if tick%r.cfg.Decimation != 0 {
		return
	}
	if err := r.cfg.Store.RecordSnapshot(id, snap); err != nil {
		monitoring.Logf("failed to persist snapshot: %v", err)
	}
}

func msToDuration(ms uint64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
