package analog

import (
	"fmt"

	"github.com/HatiCode/analogflow/pkg/flows"
)

// RemainingMonths returns the number of months from the first forecast month
// through December of its year.
func RemainingMonths(series *flows.Series) int {
	return 13 - int(series.Last().Add(1).Month())
}

// Continuation copies the months that followed the analog window ending at
// end and re-indexes them to start right after series.Last().
//
// months <= 0 requests RemainingMonths. The result holds
// min(months, available) rows, where available counts the months between
// end+1 and series.Last(). ErrInsufficientHistory is returned when nothing
// is available.
func Continuation(series *flows.Series, end flows.Period, months int) (*flows.Series, error) {
	if months <= 0 {
		months = RemainingMonths(series)
	}

	from := end.Add(1)
	available := series.Last().Sub(from) + 1
	if from < series.Start() || available <= 0 {
		return nil, fmt.Errorf("%w: no months after %s in %s..%s",
			ErrInsufficientHistory, end, series.Start(), series.Last())
	}

	slice, err := series.Slice(from, min(months, available))
	if err != nil {
		return nil, err
	}
	return slice.Shift(series.Last().Add(1).Sub(from)), nil
}
