package analog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/HatiCode/analogflow/pkg/flows"
)

// Model selects an analog year for one reference station and extends the
// series with the months that followed it.
//
// Fit must succeed with an accepted selection before Predict can be called.
// A Model is not safe for concurrent use.
type Model struct {
	station  flows.Station
	selector *Selector
	logger   *slog.Logger

	series    *flows.Series
	ranking   Ranking
	selection Selection
}

// NewModel creates a model for reference station st.
func NewModel(st flows.Station, selector *Selector, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	if selector == nil {
		selector = NewSelector(DefaultMaxRank, ScopeReference, logger)
	}
	return &Model{station: st, selector: selector, logger: logger}
}

// Name returns the model identifier.
func (m *Model) Name() string {
	return "analog"
}

// Station returns the reference station.
func (m *Model) Station() flows.Station {
	return m.station
}

// Fit ranks the series for the model's station and runs the selector with
// the given forbidden years. An exhausted selection is returned with a nil
// error and leaves the model unfitted.
func (m *Model) Fit(ctx context.Context, series *flows.Series, forbidden YearSet) (Selection, error) {
	m.series, m.selection = nil, Selection{}

	if err := ctx.Err(); err != nil {
		return Selection{}, err
	}
	if series.Len() < WindowMonths {
		return Selection{}, fmt.Errorf("%w: %d months, need at least %d", ErrInsufficientHistory, series.Len(), WindowMonths)
	}

	ranking, err := Rank(series, m.station)
	if err != nil {
		return Selection{}, err
	}

	sel, err := m.selector.Select(series, ranking, forbidden)
	if err != nil {
		return sel, fmt.Errorf("select analog for station %d: %w", m.station, err)
	}

	m.logger.Debug("fit complete",
		"station", m.station,
		"state", sel.State,
		"ranked", ranking.Len(),
		"tries", sel.Tries,
	)

	m.ranking = ranking
	m.selection = sel
	if sel.Found() {
		m.series = series
	}
	return sel, nil
}

// Selection returns the result of the last Fit.
func (m *Model) Selection() Selection {
	return m.selection
}

// Ranking returns the ranking computed by the last Fit.
func (m *Model) Ranking() Ranking {
	return m.ranking
}

// Predict returns the continuation for the accepted analog.
// months <= 0 fills the rest of the first forecast month's year.
func (m *Model) Predict(months int) (*flows.Series, error) {
	if m.series == nil || !m.selection.Found() {
		return nil, ErrNotFitted
	}
	return Continuation(m.series, m.selection.Accepted.End, months)
}

// Correlations returns the correlation of every station at the accepted window.
func (m *Model) Correlations() (map[flows.Station]float64, error) {
	if m.series == nil || !m.selection.Found() {
		return nil, ErrNotFitted
	}
	return CorrelationTable(m.series, m.selection.Accepted.End)
}
