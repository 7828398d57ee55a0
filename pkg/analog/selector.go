package analog

import (
	"fmt"
	"log/slog"

	"github.com/HatiCode/analogflow/pkg/flows"
)

// DefaultMaxRank is the default number of amplitude attempts per selection.
const DefaultMaxRank = 20

// State is the state of a selection.
type State string

const (
	StateSearching State = "searching"
	StateAccepted  State = "accepted"
	StateExhausted State = "exhausted"
)

// Candidate is one ranked window visited by the selector.
type Candidate struct {
	// Position is the 1-based rank position.
	Position    int
	End         flows.Period
	Coefficient float64

	// Reused is set when the year was forbidden and the amplitude test skipped.
	Reused bool

	// Amplitude is nil when the candidate was skipped.
	Amplitude *AmplitudeResult
}

// Year returns the candidate's analog year.
func (c Candidate) Year() int {
	return c.End.Year()
}

// Selection is the outcome of one selection run for a reference station.
type Selection struct {
	Station  flows.Station
	State    State
	Accepted *Candidate

	// Attempts holds every visited candidate in rank order, including the
	// accepted one.
	Attempts []Candidate

	// Tries counts amplitude evaluations.
	Tries int
}

// Found reports whether a candidate was accepted.
func (s Selection) Found() bool {
	return s.State == StateAccepted && s.Accepted != nil
}

// Selector walks a ranking until a candidate passes the amplitude test.
type Selector struct {
	// MaxRank bounds the number of amplitude evaluations. Candidates skipped
	// because their year is forbidden do not count. Zero means DefaultMaxRank.
	MaxRank int

	// Scope selects the stations that must pass the amplitude test.
	Scope Scope

	Logger *slog.Logger
}

// NewSelector returns a selector with the given attempt budget and scope.
func NewSelector(maxRank int, scope Scope, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{MaxRank: maxRank, Scope: scope, Logger: logger}
}

// Select runs the selection for the ranking's station over series.
//
// Candidates whose year is in forbidden are skipped. The first candidate that
// passes the amplitude test is accepted. When the ranking or the attempt
// budget runs out the selection is returned in StateExhausted with a nil
// error; errors are reserved for inconsistent input.
func (s *Selector) Select(series *flows.Series, ranking Ranking, forbidden YearSet) (Selection, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRank := s.MaxRank
	if maxRank <= 0 {
		maxRank = DefaultMaxRank
	}
	scope := s.Scope
	if scope == "" {
		scope = ScopeReference
	}

	sel := Selection{Station: ranking.Station, State: StateSearching}

	for i, entry := range ranking.Entries {
		if sel.Tries >= maxRank {
			break
		}

		cand := Candidate{
			Position:    i + 1,
			End:         entry.End,
			Coefficient: entry.Coefficient,
		}

		if forbidden.Has(entry.Year()) {
			cand.Reused = true
			sel.Attempts = append(sel.Attempts, cand)
			logger.Debug("skipping reused analog year",
				"station", ranking.Station,
				"position", cand.Position,
				"year", cand.Year(),
			)
			continue
		}

		sel.Tries++

		amp, err := CheckAmplitude(series, ranking.Station, entry.End, scope)
		if err != nil {
			return sel, fmt.Errorf("amplitude test at position %d: %w", cand.Position, err)
		}
		cand.Amplitude = &amp
		sel.Attempts = append(sel.Attempts, cand)

		if !amp.Passed {
			logger.Debug("candidate failed amplitude test",
				"station", ranking.Station,
				"position", cand.Position,
				"end", cand.End.String(),
				"failed", amp.Failed,
			)
			continue
		}

		sel.State = StateAccepted
		sel.Accepted = &cand
		logger.Debug("accepted analog",
			"station", ranking.Station,
			"position", cand.Position,
			"end", cand.End.String(),
			"coefficient", cand.Coefficient,
		)
		return sel, nil
	}

	sel.State = StateExhausted
	return sel, nil
}
