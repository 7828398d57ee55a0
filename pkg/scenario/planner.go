// Package scenario runs analog selection over batches of flow files.
//
// A batch is processed file by file and, within a file, principal station by
// principal station in ascending code order:
//
//	periodize → fit → (retry) → predict → extend → commit
//
// The analog years chosen for a file are committed to the registry only after
// every station of the file has been processed, so a file that fails on bad
// data leaves the registry untouched.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/analogflow/pkg/adapters"
	"github.com/HatiCode/analogflow/pkg/analog"
	"github.com/HatiCode/analogflow/pkg/flows"
)

// Status is the outcome of one principal station within a file.
type Status string

const (
	StatusAccepted            Status = "accepted"
	StatusExhausted           Status = "exhausted"
	StatusInsufficientHistory Status = "insufficient_history"
)

// Policy defines how analog years are selected for a batch.
type Policy struct {
	// Stations are the principal stations to plan. Stations missing from a
	// file are skipped. Defaults to DefaultStations.
	Stations Stations

	// MaxRank bounds amplitude attempts per station. Defaults to
	// analog.DefaultMaxRank.
	MaxRank int

	// RetryRank, when greater than MaxRank, reruns an exhausted selection once
	// with this larger budget. 0 disables the retry.
	RetryRank int

	// Scope selects the stations that must pass the amplitude test.
	Scope analog.Scope

	// Reuse controls which earlier selections are forbidden.
	Reuse analog.ReusePolicy

	// Months is the continuation length. <= 0 fills the year of the first
	// forecast month.
	Months int
}

// Outcome is the result for one principal station of a file.
type Outcome struct {
	Source  string
	Station flows.Station
	Name    string
	Status  Status

	Selection analog.Selection

	// Retried is set when the selection ran a second time with RetryRank.
	Retried bool

	// Correlations holds every station's coefficient at the accepted window.
	Correlations map[flows.Station]float64

	// Continuation and Extended are set for accepted outcomes only.
	Continuation *flows.Series
	Extended     *flows.Series

	Elapsed time.Duration
}

// Year returns the accepted analog year, or 0.
func (o Outcome) Year() int {
	if !o.Selection.Found() {
		return 0
	}
	return o.Selection.Accepted.Year()
}

// FileName returns the output file name <source>_<NAME>_<year>.txt.
func (o Outcome) FileName() string {
	return fmt.Sprintf("%s_%s_%d.txt", o.Source, o.Name, o.Year())
}

// FileResult is the result of planning one source.
type FileResult struct {
	Source   string
	Series   *flows.Series
	Outcomes []Outcome

	// Committed lists the years recorded in the registry for this file.
	Committed []int

	// Err is set when the file was aborted. Nothing is committed then.
	Err error
}

// Accepted returns the accepted outcomes.
func (f FileResult) Accepted() []Outcome {
	var out []Outcome
	for _, o := range f.Outcomes {
		if o.Status == StatusAccepted {
			out = append(out, o)
		}
	}
	return out
}

// Planner selects analog years for every principal station of every file in
// a batch.
type Planner struct {
	policy   Policy
	registry analog.Registry
	logger   *slog.Logger
}

// New creates a Planner. A nil registry uses an in-memory one.
func New(policy Policy, registry analog.Registry, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = analog.NewUsedYears()
	}
	if len(policy.Stations) == 0 {
		policy.Stations = DefaultStations()
	}
	if policy.MaxRank <= 0 {
		policy.MaxRank = analog.DefaultMaxRank
	}
	if policy.Scope == "" {
		policy.Scope = analog.ScopeReference
	}
	if policy.Reuse == "" {
		policy.Reuse = analog.ForbidAcrossBatch
	}
	return &Planner{policy: policy, registry: registry, logger: logger}
}

// Registry returns the registry the planner commits to.
func (p *Planner) Registry() analog.Registry {
	return p.registry
}

// PlanBatch resets the registry and plans every source in order.
//
// A file aborted on bad data is reported in its FileResult and the batch
// continues. The returned error is reserved for registry failures and
// context cancellation.
func (p *Planner) PlanBatch(ctx context.Context, sources []adapters.Source) ([]FileResult, error) {
	if err := p.registry.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset registry: %w", err)
	}

	results := make([]FileResult, 0, len(sources))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		if src.Err != nil {
			p.logger.Error("file aborted", "source", src.Name, "error", src.Err)
			results = append(results, FileResult{Source: src.Name, Err: fmt.Errorf("source %s: %w", src.Name, src.Err)})
			continue
		}

		res, err := p.PlanFile(ctx, src.Name, src.Table)
		if err != nil {
			if !errors.Is(err, flows.ErrData) && !errors.Is(err, flows.ErrConflict) {
				return append(results, res), err
			}
			p.logger.Error("file aborted", "source", src.Name, "error", err)
		}
		results = append(results, res)
	}
	return results, nil
}

// PlanFile plans one source. Station-level outcomes never abort the file;
// ErrData and ErrConflict do, and nothing is committed in that case.
func (p *Planner) PlanFile(ctx context.Context, source string, table flows.Table) (FileResult, error) {
	res := FileResult{Source: source}
	fail := func(err error) (FileResult, error) {
		res.Err = fmt.Errorf("source %s: %w", source, err)
		res.Outcomes = nil
		return res, res.Err
	}

	series, err := flows.Periodize(table)
	if err != nil {
		return fail(err)
	}
	res.Series = series

	batch, err := p.batchYears(ctx)
	if err != nil {
		return fail(err)
	}
	local := analog.NewYearSet()

	for _, st := range p.policy.Stations.Codes() {
		if !series.Has(st) {
			p.logger.Debug("principal station not in file", "source", source, "station", st)
			continue
		}

		out, err := p.planStation(ctx, source, st, series, p.forbidden(batch, local))
		if err != nil {
			return fail(err)
		}
		if out.Status == StatusAccepted {
			local.Add(out.Year())
		}
		res.Outcomes = append(res.Outcomes, out)
	}

	var years []int
	for _, o := range res.Outcomes {
		if o.Status == StatusAccepted {
			years = append(years, o.Year())
		}
	}
	if len(years) > 0 {
		if err := p.registry.Commit(ctx, years); err != nil {
			return fail(fmt.Errorf("commit years: %w", err))
		}
	}
	res.Committed = years

	p.logger.Info("file planned",
		"source", source,
		"start", series.Start().String(),
		"last", series.Last().String(),
		"accepted", len(years),
		"stations", len(res.Outcomes),
	)
	return res, nil
}

func (p *Planner) planStation(ctx context.Context, source string, st flows.Station, series *flows.Series, forbidden analog.YearSet) (Outcome, error) {
	start := time.Now()
	out := Outcome{Source: source, Station: st, Name: p.policy.Stations[st]}

	model := analog.NewModel(st, analog.NewSelector(p.policy.MaxRank, p.policy.Scope, p.logger), p.logger)
	sel, err := model.Fit(ctx, series, forbidden)
	if errors.Is(err, analog.ErrInsufficientHistory) {
		out.Status = StatusInsufficientHistory
		out.Elapsed = time.Since(start)
		p.logger.Warn("insufficient history", "source", source, "station", st, "months", series.Len())
		return out, nil
	}
	if err != nil {
		return out, err
	}

	if !sel.Found() && p.policy.RetryRank > p.policy.MaxRank {
		p.logger.Info("retrying selection with larger rank ceiling",
			"source", source, "station", st, "rank", p.policy.RetryRank)
		model = analog.NewModel(st, analog.NewSelector(p.policy.RetryRank, p.policy.Scope, p.logger), p.logger)
		if sel, err = model.Fit(ctx, series, forbidden); err != nil {
			return out, err
		}
		out.Retried = true
	}
	out.Selection = sel

	if !sel.Found() {
		out.Status = StatusExhausted
		out.Elapsed = time.Since(start)
		p.logger.Warn("no analog found",
			"source", source, "station", st, "tries", sel.Tries, "forbidden", forbidden.Sorted())
		return out, nil
	}

	cont, err := model.Predict(p.policy.Months)
	if errors.Is(err, analog.ErrInsufficientHistory) {
		out.Status = StatusInsufficientHistory
		out.Elapsed = time.Since(start)
		return out, nil
	}
	if err != nil {
		return out, err
	}

	ext, err := series.Extended(cont, series.AlignmentOffset(cont))
	if err != nil {
		return out, err
	}
	corr, err := model.Correlations()
	if err != nil {
		return out, err
	}

	out.Status = StatusAccepted
	out.Continuation = cont
	out.Extended = ext
	out.Correlations = corr
	out.Elapsed = time.Since(start)

	p.logger.Info("analog accepted",
		"source", source,
		"station", st,
		"name", out.Name,
		"year", out.Year(),
		"position", sel.Accepted.Position,
		"coefficient", sel.Accepted.Coefficient,
		"months", cont.Len(),
	)
	return out, nil
}

func (p *Planner) batchYears(ctx context.Context) (analog.YearSet, error) {
	if p.policy.Reuse != analog.ForbidAcrossBatch {
		return nil, nil
	}
	counts, err := p.registry.Years(ctx)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return analog.YearsOf(counts), nil
}

func (p *Planner) forbidden(batch, local analog.YearSet) analog.YearSet {
	switch p.policy.Reuse {
	case analog.ForbidNever:
		return nil
	case analog.ForbidWithinFile:
		return local.Union(nil)
	default:
		return batch.Union(local)
	}
}

