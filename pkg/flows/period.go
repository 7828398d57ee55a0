// Package flows provides the monthly flow series used by the analog engine.
//
// A Series holds one row per calendar month with one non-negative integer
// flow per station. It is built from the tabular (station, year) × month
// layout of a flow file with Periodize and converted back with Tabularize.
// The codec in this package reads and writes that file format:
//
//	  6 1931   746  1002   945   843   630   487   410   340   298   327   445   608
//
// Existing rows of a Series are never modified. The only mutation is Extend,
// which appends a continuation after the last period.
package flows

import (
	"fmt"
	"time"
)

// Period is a calendar month, stored as months elapsed since January of year 0.
type Period int

// NewPeriod returns the period for the given year and month.
func NewPeriod(year int, month time.Month) Period {
	return Period(year*12 + int(month) - 1)
}

// ParsePeriod parses a period formatted as YYYY-MM.
func ParsePeriod(s string) (Period, error) {
	var year, month int
	if _, err := fmt.Sscanf(s, "%d-%d", &year, &month); err != nil {
		return 0, fmt.Errorf("invalid period %q: %w", s, err)
	}
	if month < 1 || month > 12 {
		return 0, fmt.Errorf("invalid period %q: month out of range", s)
	}
	return NewPeriod(year, time.Month(month)), nil
}

// Year returns the calendar year.
func (p Period) Year() int {
	return int(p) / 12
}

// Month returns the calendar month.
func (p Period) Month() time.Month {
	return time.Month(int(p)%12 + 1)
}

// Add returns the period n months later (earlier when n is negative).
func (p Period) Add(n int) Period {
	return p + Period(n)
}

// Sub returns the number of months from q to p.
func (p Period) Sub(q Period) int {
	return int(p - q)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year(), int(p.Month()))
}

// MarshalText encodes the period as YYYY-MM.
func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a YYYY-MM period.
func (p *Period) UnmarshalText(b []byte) error {
	v, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
