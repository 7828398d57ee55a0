// Package analog implements analog-year selection for extending monthly flow
// series.
//
// The engine works in four steps, each taking its inputs explicitly:
//
//  1. Rank: correlate the reference station's last 12 months with the same
//     12 calendar months of every earlier year.
//  2. CheckAmplitude: reject a candidate whose first continuation month implies
//     a month-over-month ratio outside the historical envelope.
//  3. Selector: walk the ranking, skipping forbidden years, until a candidate
//     passes or the attempt budget runs out.
//  4. Continuation: copy the months after the accepted window and re-index
//     them to follow the live series.
//
// Model wraps the four steps behind a Fit/Predict pair.
package analog

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/HatiCode/analogflow/pkg/flows"
)

// WindowMonths is the length of the correlated window.
const WindowMonths = 12

// RankEntry is one candidate window in a ranking.
type RankEntry struct {
	// End is the last month of the candidate window.
	End flows.Period

	// Coefficient is the Pearson correlation with the query window.
	// NaN when either window has zero variance.
	Coefficient float64
}

// Year returns the analog year the entry stands for.
func (e RankEntry) Year() int {
	return e.End.Year()
}

// Ranking lists candidate windows for one reference station, best first.
type Ranking struct {
	Station flows.Station
	Query   flows.Period
	Entries []RankEntry
}

// Len returns the number of ranked windows.
func (r Ranking) Len() int {
	return len(r.Entries)
}

// Rank correlates the last 12 months of station st with every earlier
// 12-month window that ends in the same calendar month.
//
// Entries are sorted by coefficient, highest first; equal coefficients keep
// the more recent window first and NaN coefficients go last. The query
// window itself is not a candidate. A series shorter than 12 months yields an
// empty ranking.
func Rank(series *flows.Series, st flows.Station) (Ranking, error) {
	values, ok := series.Column(st)
	if !ok {
		return Ranking{}, fmt.Errorf("%w: station %d", ErrUnknownStation, st)
	}

	r := Ranking{Station: st, Query: series.Last()}
	n := len(values)
	if n < WindowMonths {
		return r, nil
	}

	query := values[n-WindowMonths:]

	// Walk backwards one year at a time so that the stable sort keeps
	// recent windows ahead of older ones with the same coefficient.
	for end := n - 1 - 12; end >= WindowMonths-1; end -= 12 {
		window := values[end-WindowMonths+1 : end+1]
		r.Entries = append(r.Entries, RankEntry{
			End:         series.Start().Add(end),
			Coefficient: pearson(query, window),
		})
	}

	slices.SortStableFunc(r.Entries, func(a, b RankEntry) int {
		return compareDesc(a.Coefficient, b.Coefficient)
	})

	return r, nil
}

// CorrelationTable returns, for every station, the correlation between its
// last 12 months and its 12-month window ending at end.
func CorrelationTable(series *flows.Series, end flows.Period) (map[flows.Station]float64, error) {
	if series.Len() < WindowMonths {
		return nil, fmt.Errorf("%w: %d months", ErrInsufficientHistory, series.Len())
	}
	first := end.Add(-(WindowMonths - 1))
	if !series.Contains(first) || !series.Contains(end) {
		return nil, fmt.Errorf("%w: window ending %s is outside the series", flows.ErrData, end)
	}

	n := series.Len()
	off := first.Sub(series.Start())
	out := make(map[flows.Station]float64)
	for _, st := range series.Stations() {
		values, _ := series.Column(st)
		out[st] = pearson(values[n-WindowMonths:], values[off:off+WindowMonths])
	}
	return out, nil
}

func pearson(x, y []float64) float64 {
	c := stat.Correlation(x, y, nil)
	if math.IsInf(c, 0) {
		return math.NaN()
	}
	return c
}

// compareDesc orders a before b when a is larger; NaN sorts last.
func compareDesc(a, b float64) int {
	switch an, bn := math.IsNaN(a), math.IsNaN(b); {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}
