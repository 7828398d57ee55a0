package flows

import (
	"fmt"
	"slices"
)

// Station identifies a gauging station by its numeric code.
type Station int

// Series is a gap-free monthly flow series for a fixed set of stations.
//
// Rows are indexed by period starting at Start. Stations are kept in
// ascending order and every row holds exactly one flow per station.
type Series struct {
	start    Period
	stations []Station
	index    map[Station]int
	rows     [][]int

	// padYear is the last calendar year covered by the source table,
	// which may extend past Last when trailing months were padding.
	padYear int
}

// NewSeries builds a series starting at start. Each row must hold one
// non-negative flow per station, in the order given by stations.
// The input slices are copied.
func NewSeries(start Period, stations []Station, rows [][]int) (*Series, error) {
	order := make([]int, len(stations))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int { return int(stations[a]) - int(stations[b]) })

	s := &Series{
		start:    start,
		stations: make([]Station, len(stations)),
		index:    make(map[Station]int, len(stations)),
		rows:     make([][]int, len(rows)),
	}
	for i, j := range order {
		st := stations[j]
		if _, dup := s.index[st]; dup {
			return nil, fmt.Errorf("%w: duplicate station %d", ErrData, st)
		}
		s.stations[i] = st
		s.index[st] = i
	}

	for r, row := range rows {
		if len(row) != len(stations) {
			return nil, fmt.Errorf("%w: row %s has %d values, want %d", ErrData, start.Add(r), len(row), len(stations))
		}
		out := make([]int, len(row))
		for i, j := range order {
			if row[j] < 0 {
				return nil, fmt.Errorf("%w: negative flow %d for station %d at %s", ErrData, row[j], stations[j], start.Add(r))
			}
			out[i] = row[j]
		}
		s.rows[r] = out
	}

	s.padYear = s.Last().Year()
	return s, nil
}

// Start returns the first period.
func (s *Series) Start() Period { return s.start }

// Last returns the last period. For an empty series it is Start()-1.
func (s *Series) Last() Period { return s.start.Add(len(s.rows) - 1) }

// Len returns the number of months.
func (s *Series) Len() int { return len(s.rows) }

// Stations returns the station codes in ascending order.
func (s *Series) Stations() []Station { return slices.Clone(s.stations) }

// Has reports whether the series carries the station.
func (s *Series) Has(st Station) bool {
	_, ok := s.index[st]
	return ok
}

// Contains reports whether p lies within the series.
func (s *Series) Contains(p Period) bool {
	return p >= s.start && p <= s.Last()
}

// Value returns the flow of station st at period p.
func (s *Series) Value(p Period, st Station) (int, bool) {
	col, ok := s.index[st]
	if !ok || !s.Contains(p) {
		return 0, false
	}
	return s.rows[p.Sub(s.start)][col], true
}

// Row returns a copy of the flows at period p in station order.
func (s *Series) Row(p Period) ([]int, bool) {
	if !s.Contains(p) {
		return nil, false
	}
	return slices.Clone(s.rows[p.Sub(s.start)]), true
}

// Column returns the flows of one station as float64, oldest first.
func (s *Series) Column(st Station) ([]float64, bool) {
	col, ok := s.index[st]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(s.rows))
	for i, row := range s.rows {
		out[i] = float64(row[col])
	}
	return out, true
}

// Slice returns a new series with n months starting at from.
func (s *Series) Slice(from Period, n int) (*Series, error) {
	if n < 0 || !s.Contains(from) || (n > 0 && !s.Contains(from.Add(n-1))) {
		return nil, fmt.Errorf("%w: slice %s+%d outside %s..%s", ErrData, from, n, s.start, s.Last())
	}
	off := from.Sub(s.start)
	out := s.emptyLike(from)
	out.rows = cloneRows(s.rows[off : off+n])
	out.padYear = out.Last().Year()
	return out, nil
}

// Shift returns a copy of the series moved by offset months.
func (s *Series) Shift(offset int) *Series {
	out := s.Clone()
	out.start = s.start.Add(offset)
	out.padYear = out.Last().Year()
	return out
}

// Clone returns a deep copy.
func (s *Series) Clone() *Series {
	out := s.emptyLike(s.start)
	out.rows = cloneRows(s.rows)
	out.padYear = s.padYear
	return out
}

// AlignmentOffset returns the shift that makes cont start right after Last.
func (s *Series) AlignmentOffset(cont *Series) int {
	return s.Last().Add(1).Sub(cont.start)
}

// Extend shifts cont by offset months and appends it to the series.
//
// The shifted continuation must start exactly one month after Last. A start
// at or before Last returns ErrConflict and a later start returns ErrData.
// The series is left unchanged on error.
func (s *Series) Extend(cont *Series, offset int) error {
	if !slices.Equal(s.stations, cont.stations) {
		return fmt.Errorf("%w: continuation stations %v do not match %v", ErrData, cont.stations, s.stations)
	}

	first := cont.start.Add(offset)
	next := s.Last().Add(1)
	switch {
	case cont.Len() == 0:
		return nil
	case first < next:
		return fmt.Errorf("%w: continuation starting %s overlaps series ending %s", ErrConflict, first, s.Last())
	case first > next:
		return fmt.Errorf("%w: continuation starting %s leaves a gap after %s", ErrData, first, s.Last())
	}

	s.rows = append(s.rows, cloneRows(cont.rows)...)
	if y := s.Last().Year(); y > s.padYear {
		s.padYear = y
	}
	return nil
}

// Extended is like Extend but returns a new series and leaves s untouched.
func (s *Series) Extended(cont *Series, offset int) (*Series, error) {
	out := s.Clone()
	if err := out.Extend(cont, offset); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Series) emptyLike(start Period) *Series {
	out := &Series{
		start:    start,
		stations: slices.Clone(s.stations),
		index:    make(map[Station]int, len(s.index)),
	}
	for k, v := range s.index {
		out.index[k] = v
	}
	return out
}

func cloneRows(rows [][]int) [][]int {
	out := make([][]int, len(rows))
	for i, r := range rows {
		out[i] = slices.Clone(r)
	}
	return out
}
