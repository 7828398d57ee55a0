// Package main implements the batch loop of the scenarios command.
//
// Each tick runs one batch:
//
//	collect → plan → write files → store snapshots
//
// The Runner runs continuously via Run(), executing Tick() at regular
// intervals, or once when the command is started in one-shot mode.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HatiCode/analogflow/cmd/scenarios/metrics"
	"github.com/HatiCode/analogflow/pkg/adapters"
	"github.com/HatiCode/analogflow/pkg/scenario"
	"github.com/HatiCode/analogflow/pkg/storage"
)

// errNotReady is reported by Ready until the first batch completes.
var errNotReady = errors.New("no batch completed yet")

// BatchReport summarizes one batch.
type BatchReport struct {
	Files    int
	Aborted  int
	Accepted int
	Written  []string
}

// Runner orchestrates the batch loop: collect → plan → write → store.
type Runner struct {
	adapter   adapters.Adapter
	planner   *scenario.Planner
	store     storage.Store
	outputDir string
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// OnReady is called once, after the first batch completes.
	OnReady func()

	mu    sync.Mutex
	ready atomic.Bool
	now   func() time.Time
}

// NewRunner creates a new Runner. metrics may be nil.
func NewRunner(
	adapter adapters.Adapter,
	planner *scenario.Planner,
	store storage.Store,
	outputDir string,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		adapter:   adapter,
		planner:   planner,
		store:     store,
		outputDir: outputDir,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Ready returns nil once a batch has completed.
func (r *Runner) Ready() error {
	if r.ready.Load() {
		return nil
	}
	return errNotReady
}

// Run executes a batch at regular intervals.
// Blocks until context is canceled.
func (r *Runner) Run(ctx context.Context, interval time.Duration) error {
	r.logger.Info("starting batch loop", "interval", interval, "source", r.adapter.Name())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := r.Tick(ctx); err != nil {
		r.logger.Error("initial batch failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("batch loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Tick(ctx); err != nil {
				r.logger.Error("batch failed", "error", err)
			}
		}
	}
}

// Tick runs one batch. Ticks never overlap.
//
// Files aborted on bad data are counted in the report and do not fail the
// batch. Collection and registry failures do.
func (r *Runner) Tick(ctx context.Context) (BatchReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.now()
	var report BatchReport

	collectStart := time.Now()
	sources, err := r.adapter.Collect(ctx)
	if err != nil {
		r.recordError("adapter", "collect_failed")
		return report, fmt.Errorf("collect: %w", err)
	}
	if r.metrics != nil {
		r.metrics.RecordCollect(time.Since(collectStart).Seconds())
	}
	r.logger.Info("collected flow files", "adapter", r.adapter.Name(), "files", len(sources))

	results, err := r.planner.PlanBatch(ctx, sources)
	if err != nil {
		r.recordError("planner", "batch_failed")
		return report, fmt.Errorf("plan: %w", err)
	}

	var errs []error
	for _, res := range results {
		report.Files++
		if res.Err != nil {
			report.Aborted++
			if r.metrics != nil {
				r.metrics.RecordFile("aborted")
			}
			continue
		}
		if r.metrics != nil {
			r.metrics.RecordFile("ok")
		}

		paths, err := scenario.WriteFileResult(r.outputDir, res)
		report.Written = append(report.Written, paths...)
		if err != nil {
			r.recordError("output", "write_failed")
			errs = append(errs, err)
		}

		for _, o := range res.Outcomes {
			if r.metrics != nil {
				r.metrics.RecordOutcome(string(o.Status), o.Elapsed.Seconds(), o.Selection.Tries)
			}
			if o.Status == scenario.StatusAccepted {
				report.Accepted++
			}
			if err := r.store.Put(ctx, snapshotOf(o, start)); err != nil {
				r.recordError("store", "put_failed")
				errs = append(errs, fmt.Errorf("store %s station %d: %w", o.Source, o.Station, err))
			}
		}
	}

	if r.metrics != nil {
		if counts, err := r.planner.Registry().Years(ctx); err == nil {
			r.metrics.SetRegistryYears(len(counts))
		}
		r.metrics.MarkBatch(float64(r.now().Unix()))
	}

	if err := errors.Join(errs...); err != nil {
		return report, err
	}

	if !r.ready.Swap(true) && r.OnReady != nil {
		r.OnReady()
	}

	r.logger.Info("batch complete",
		"files", report.Files,
		"aborted", report.Aborted,
		"accepted", report.Accepted,
		"written", len(report.Written),
		"total_ms", r.now().Sub(start).Milliseconds(),
	)
	return report, nil
}

func (r *Runner) recordError(component, reason string) {
	if r.metrics != nil {
		r.metrics.RecordError(component, reason)
	}
}

// snapshotOf converts a station outcome into a stored snapshot. Undefined
// coefficients are left out.
func snapshotOf(o scenario.Outcome, at time.Time) storage.Snapshot {
	s := storage.Snapshot{
		Source:      o.Source,
		Station:     int(o.Station),
		Name:        o.Name,
		GeneratedAt: at,
		Status:      string(o.Status),
		Tries:       o.Selection.Tries,
		Retried:     o.Retried,
	}
	if o.Status != scenario.StatusAccepted {
		return s
	}

	c := o.Selection.Accepted
	s.AnalogYear = c.Year()
	s.Position = c.Position
	if !math.IsNaN(c.Coefficient) {
		coef := c.Coefficient
		s.Coefficient = &coef
	}

	if cont := o.Continuation; cont != nil {
		s.Start = cont.Start()
		s.Flows = make(map[int][]int, len(cont.Stations()))
		for _, st := range cont.Stations() {
			values := make([]int, 0, cont.Len())
			for i := range cont.Len() {
				v, _ := cont.Value(cont.Start().Add(i), st)
				values = append(values, v)
			}
			s.Flows[int(st)] = values
		}
	}

	if len(o.Correlations) > 0 {
		s.Correlations = make(map[int]float64, len(o.Correlations))
		for st, c := range o.Correlations {
			if !math.IsNaN(c) {
				s.Correlations[int(st)] = c
			}
		}
	}
	return s
}
