package analog

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// ReusePolicy controls when an analog year may be selected more than once.
type ReusePolicy string

const (
	// ForbidWithinFile keeps years distinct among the stations of one file.
	ForbidWithinFile ReusePolicy = "within_file"
	// ForbidAcrossBatch also excludes years selected by earlier files of the batch.
	ForbidAcrossBatch ReusePolicy = "across_batch"
	// ForbidNever places no constraint on repeated years.
	ForbidNever ReusePolicy = "never"
)

// ParseReusePolicy parses a policy name. Empty means ForbidAcrossBatch.
func ParseReusePolicy(s string) (ReusePolicy, error) {
	switch p := ReusePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ForbidAcrossBatch, nil
	case ForbidWithinFile, ForbidAcrossBatch, ForbidNever:
		return p, nil
	}
	return "", fmt.Errorf("invalid reuse policy %q (must be within_file, across_batch, or never)", s)
}

// YearSet is a set of calendar years.
type YearSet map[int]struct{}

// NewYearSet returns a set holding years.
func NewYearSet(years ...int) YearSet {
	s := make(YearSet, len(years))
	for _, y := range years {
		s[y] = struct{}{}
	}
	return s
}

// Has reports whether year is in the set. A nil set is empty.
func (s YearSet) Has(year int) bool {
	_, ok := s[year]
	return ok
}

// Add inserts year.
func (s YearSet) Add(year int) {
	s[year] = struct{}{}
}

// Union returns a new set with the years of both sets.
func (s YearSet) Union(o YearSet) YearSet {
	out := make(YearSet, len(s)+len(o))
	maps.Copy(out, s)
	maps.Copy(out, o)
	return out
}

// Sorted returns the years in ascending order.
func (s YearSet) Sorted() []int {
	return slices.Sorted(maps.Keys(s))
}

// Registry counts how many times each year has been selected during a batch.
// Implementations must be safe for concurrent use and apply Commit atomically.
type Registry interface {
	// Years returns the selection count per year.
	Years(ctx context.Context) (map[int]int, error)

	// Commit records one selection for each given year, all or nothing.
	Commit(ctx context.Context, years []int) error

	// Reset clears the registry at the start of a batch.
	Reset(ctx context.Context) error
}

// UsedYears is an in-memory Registry.
type UsedYears struct {
	mu     sync.RWMutex
	counts map[int]int
}

// NewUsedYears returns an empty registry.
func NewUsedYears() *UsedYears {
	return &UsedYears{counts: make(map[int]int)}
}

// Years implements Registry.
func (u *UsedYears) Years(ctx context.Context) (map[int]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u.mu.RLock()
	defer u.mu.RUnlock()
	return maps.Clone(u.counts), nil
}

// Commit implements Registry.
func (u *UsedYears) Commit(ctx context.Context, years []int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	for _, y := range years {
		u.counts[y]++
	}
	return nil
}

// Reset implements Registry.
func (u *UsedYears) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	clear(u.counts)
	return nil
}

// Count returns how many times year has been selected.
func (u *UsedYears) Count(year int) int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.counts[year]
}

// YearsOf converts registry counts into the set of years used at least once.
func YearsOf(counts map[int]int) YearSet {
	s := make(YearSet, len(counts))
	for y, c := range counts {
		if c > 0 {
			s.Add(y)
		}
	}
	return s
}
