package analog

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/HatiCode/analogflow/pkg/flows"
)

// seasonalShape is a fixed seasonal cycle. January is replaced per year and
// December is always 100 so that January ratios are easy to reason about.
var seasonalShape = [12]int{0, 80, 70, 60, 50, 40, 45, 55, 65, 75, 85, 100}

// pattern returns one year of monthly flows per January value.
func pattern(jans ...int) []int {
	out := make([]int, 0, 12*len(jans))
	for _, jan := range jans {
		year := seasonalShape
		year[0] = jan
		out = append(out, year[:]...)
	}
	return out
}

// scaled multiplies every value by k.
func scaled(values []int, k int) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = v * k
	}
	return out
}

// newSeries builds a series from per-station columns of equal length.
func newSeries(t *testing.T, start flows.Period, columns map[flows.Station][]int) *flows.Series {
	t.Helper()

	var stations []flows.Station
	n := -1
	for st, col := range columns {
		stations = append(stations, st)
		if n >= 0 && len(col) != n {
			t.Fatalf("column %d has %d values, want %d", st, len(col), n)
		}
		n = len(col)
	}

	rows := make([][]int, n)
	for i := range rows {
		rows[i] = make([]int, len(stations))
		for j, st := range stations {
			rows[i][j] = columns[st][i]
		}
	}

	s, err := flows.NewSeries(start, stations, rows)
	if err != nil {
		t.Fatalf("NewSeries() error = %v", err)
	}
	return s
}

func jan(year int) flows.Period {
	return flows.NewPeriod(year, time.January)
}

func dec(year int) flows.Period {
	return flows.NewPeriod(year, time.December)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
