package flows

import (
	"fmt"
	"slices"
	"time"
)

// Record is one line of a flow file: twelve monthly flows of a station in a year.
type Record struct {
	Station Station
	Year    int
	Flows   [12]int
}

// Table is the tabular (station, year) × month layout of a flow file.
type Table []Record

// Sort orders the table by station then year, in place.
func (t Table) Sort() {
	slices.SortStableFunc(t, func(a, b Record) int {
		if a.Station != b.Station {
			return int(a.Station) - int(b.Station)
		}
		return a.Year - b.Year
	})
}

// Periodize converts a table into a monthly series.
//
// Every station must cover the same contiguous range of years. Trailing
// months where every station reports zero are treated as padding for months
// not yet reported and are dropped; the padding years are remembered so that
// Tabularize restores them. A month where every station is zero followed by
// reported months is ambiguous and returns ErrData.
func Periodize(t Table) (*Series, error) {
	if len(t) == 0 {
		return nil, fmt.Errorf("%w: empty table", ErrData)
	}

	byStation := make(map[Station]map[int][12]int)
	minYear, maxYear := t[0].Year, t[0].Year
	for _, rec := range t {
		years, ok := byStation[rec.Station]
		if !ok {
			years = make(map[int][12]int)
			byStation[rec.Station] = years
		}
		if _, dup := years[rec.Year]; dup {
			return nil, fmt.Errorf("%w: duplicate record for station %d year %d", ErrData, rec.Station, rec.Year)
		}
		years[rec.Year] = rec.Flows
		minYear = min(minYear, rec.Year)
		maxYear = max(maxYear, rec.Year)
	}

	stations := make([]Station, 0, len(byStation))
	for st := range byStation {
		stations = append(stations, st)
	}
	slices.Sort(stations)

	nYears := maxYear - minYear + 1
	rows := make([][]int, nYears*12)
	for i := range rows {
		rows[i] = make([]int, len(stations))
	}
	for col, st := range stations {
		years := byStation[st]
		for y := minYear; y <= maxYear; y++ {
			flows, ok := years[y]
			if !ok {
				return nil, fmt.Errorf("%w: station %d has no record for year %d", ErrData, st, y)
			}
			for m, v := range flows {
				rows[(y-minYear)*12+m][col] = v
			}
		}
	}

	last := len(rows) - 1
	for last >= 0 && allZero(rows[last]) {
		last--
	}
	if last < 0 {
		return nil, fmt.Errorf("%w: every month is zero", ErrData)
	}
	start := NewPeriod(minYear, time.January)
	for i := 0; i < last; i++ {
		if allZero(rows[i]) {
			return nil, fmt.Errorf("%w: every station is zero at %s, before reported months", ErrData, start.Add(i))
		}
	}

	s, err := NewSeries(start, stations, rows[:last+1])
	if err != nil {
		return nil, err
	}
	s.padYear = maxYear
	return s, nil
}

// Tabularize converts a series back into a table ordered by station and year.
// Months of the covered years that are outside the series are written as zero.
//
// Tabularize(Periodize(t)) equals t when t is in that order, as left by
// Table.Sort and by every flow file this package writes. Other orders come
// back sorted.
func Tabularize(s *Series) Table {
	if s.Len() == 0 {
		return Table{}
	}

	firstYear := s.start.Year()
	lastYear := max(s.Last().Year(), s.padYear)

	t := make(Table, 0, len(s.stations)*(lastYear-firstYear+1))
	for col, st := range s.stations {
		for y := firstYear; y <= lastYear; y++ {
			rec := Record{Station: st, Year: y}
			for m := range rec.Flows {
				p := NewPeriod(y, time.Month(m+1))
				if s.Contains(p) {
					rec.Flows[m] = s.rows[p.Sub(s.start)][col]
				}
			}
			t = append(t, rec)
		}
	}
	return t
}

func allZero(row []int) bool {
	for _, v := range row {
		if v != 0 {
			return false
		}
	}
	return true
}
