package analog

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/HatiCode/analogflow/pkg/flows"
)

// Scope selects which stations must pass the amplitude test.
type Scope string

const (
	// ScopeReference requires only the reference station to pass.
	ScopeReference Scope = "reference"
	// ScopeAll requires every station in the series to pass.
	ScopeAll Scope = "all"
)

// ParseScope parses an amplitude scope name. Empty means ScopeReference.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeReference:
		return ScopeReference, nil
	case ScopeAll:
		return ScopeAll, nil
	}
	return "", fmt.Errorf("invalid amplitude scope %q (must be reference or all)", s)
}

// Envelope is the range of historical month-over-month ratios of one station
// for the calendar month being forecast.
type Envelope struct {
	Min     float64
	Max     float64
	Samples int
}

// Contains reports whether r lies strictly inside the envelope.
// An envelope without samples accepts every ratio.
func (e Envelope) Contains(r float64) bool {
	if e.Samples == 0 {
		return true
	}
	return r > e.Min && r < e.Max
}

// AmplitudeResult is the outcome of CheckAmplitude.
type AmplitudeResult struct {
	Passed bool

	// Failed lists every station whose candidate ratio left its envelope,
	// regardless of scope.
	Failed []flows.Station

	Ratios    map[flows.Station]float64
	Envelopes map[flows.Station]Envelope
}

// CheckAmplitude tests the candidate window ending at end for station st.
//
// The month after end is relabeled as the first forecast month (the month
// after series.Last()). For every station the ratio of that value to the
// live series' last value must lie strictly between the minimum and maximum
// of value(p)/value(p-1) over every historical p in the same calendar month.
// Undefined ratios (zero denominators) count as zero, and the first month of
// the series, which has no predecessor, contributes a zero ratio.
func CheckAmplitude(series *flows.Series, st flows.Station, end flows.Period, scope Scope) (AmplitudeResult, error) {
	if !series.Has(st) {
		return AmplitudeResult{}, fmt.Errorf("%w: station %d", ErrUnknownStation, st)
	}

	first := series.Last().Add(1)
	analog := end.Add(1)
	if !series.Contains(analog) {
		return AmplitudeResult{}, fmt.Errorf("%w: analog month %s is outside %s..%s",
			flows.ErrData, analog, series.Start(), series.Last())
	}
	if analog.Month() != first.Month() {
		return AmplitudeResult{}, fmt.Errorf("%w: analog month %s does not match forecast month %s",
			flows.ErrData, analog, first)
	}

	res := AmplitudeResult{
		Passed:    true,
		Ratios:    make(map[flows.Station]float64),
		Envelopes: make(map[flows.Station]Envelope),
	}

	for _, s := range series.Stations() {
		last, _ := series.Value(series.Last(), s)
		next, _ := series.Value(analog, s)
		ratio := safeRatio(next, last)

		env := historicalEnvelope(series, s, first)
		res.Ratios[s] = ratio
		res.Envelopes[s] = env

		if env.Contains(ratio) {
			continue
		}
		res.Failed = append(res.Failed, s)
		if scope == ScopeAll || s == st {
			res.Passed = false
		}
	}

	return res, nil
}

func historicalEnvelope(series *flows.Series, st flows.Station, month flows.Period) Envelope {
	var ratios []float64

	for p := series.Start(); p <= series.Last(); p = p.Add(1) {
		if p.Month() != month.Month() {
			continue
		}
		cur, _ := series.Value(p, st)
		prev, ok := series.Value(p.Add(-1), st)
		if !ok {
			ratios = append(ratios, 0)
			continue
		}
		ratios = append(ratios, safeRatio(cur, prev))
	}

	if len(ratios) == 0 {
		return Envelope{}
	}
	return Envelope{
		Min:     floats.Min(ratios),
		Max:     floats.Max(ratios),
		Samples: len(ratios),
	}
}

func safeRatio(num, den int) float64 {
	r := float64(num) / float64(den)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}
