// Package adapters provides the flow sources that feed the scenario planner.
//
// Each adapter implements the Adapter interface and returns one Source per
// flow file it discovers. Available adapters:
//   - FileAdapter: walks a directory tree of fixed-width flow files
//   - HTTPAdapter: fetches flow records from a JSON API using gjson paths
//
// Adapters only pull and parse data. Periodizing, analog selection and
// output writing belong to the planner.
package adapters

import (
	"context"
	"strings"

	"github.com/HatiCode/analogflow/pkg/flows"
)

// Source is one named flow table, typically one file of a batch.
type Source struct {
	// Name identifies the source in output file names and snapshots.
	// Example: "VAZOES-AVG".
	Name string

	Table flows.Table

	// Err is set when the source was found but could not be parsed. The
	// planner aborts such a source without failing the batch.
	Err error
}

// Adapter is the interface that all flow sources must implement.
//
// The Collect call is synchronous and should respect context cancellation
// and deadlines. Sources are returned in a deterministic order so that
// batches select the same analog years on every run.
type Adapter interface {
	// Collect returns every source currently available.
	Collect(ctx context.Context) ([]Source, error)

	// Name returns a short, unique identifier for the adapter.
	// Example: "file", "http".
	Name() string
}

// CleanName maps every rune outside [A-Za-z0-9._-] to '_' so that directory
// names such as "seg 21.11" become usable source names.
func CleanName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}
