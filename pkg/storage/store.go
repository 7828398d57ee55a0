// Package storage provides scenario snapshot storage implementations and a
// Redis-backed used-years registry.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/HatiCode/analogflow/pkg/flows"
)

// Snapshot is the latest scenario produced for one principal station of one
// source.
type Snapshot struct {
	Source      string    `json:"source"`
	Station     int       `json:"station"`
	Name        string    `json:"name"`
	GeneratedAt time.Time `json:"generatedAt"`

	// Status is "accepted", "exhausted" or "insufficient_history".
	Status string `json:"status"`

	// AnalogYear, Position and Coefficient describe the accepted candidate.
	// Coefficient is nil when the correlation was undefined.
	AnalogYear  int      `json:"analogYear,omitempty"`
	Position    int      `json:"position,omitempty"`
	Coefficient *float64 `json:"coefficient,omitempty"`
	Tries       int      `json:"tries"`
	Retried     bool     `json:"retried,omitempty"`

	// Start is the first continuation month. Flows holds the continuation
	// per station code.
	Start flows.Period  `json:"start,omitempty"`
	Flows map[int][]int `json:"flows,omitempty"`

	// Correlations holds the defined per-station coefficients at the
	// accepted window.
	Correlations map[int]float64 `json:"correlations,omitempty"`
}

// Key returns the identifier snapshots are stored under.
func (s Snapshot) Key() string {
	return Key(s.Source, s.Station)
}

// Key joins a source name and a station code.
func Key(source string, station int) string {
	return fmt.Sprintf("%s:%d", source, station)
}

type Store interface {
	Put(ctx context.Context, snapshot Snapshot) error
	GetLatest(ctx context.Context, source string, station int) (Snapshot, bool, error)

	// Sources lists, sorted, the sources that have snapshots.
	Sources(ctx context.Context) ([]string, error)
}

// validSource reports whether name is safe to embed in keys.
func validSource(name string) error {
	if name == "" {
		return fmt.Errorf("source name required")
	}
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.') {
			return fmt.Errorf("invalid source name %q: only alphanumeric, dots, hyphens, and underscores allowed", name)
		}
	}
	return nil
}
