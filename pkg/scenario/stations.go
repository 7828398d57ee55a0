package scenario

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/HatiCode/analogflow/pkg/flows"
)

// Stations maps principal station codes to the display names used in
// output file names.
type Stations map[flows.Station]string

// DefaultStations returns the principal stations of the national system.
func DefaultStations() Stations {
	return Stations{
		6:   "FURNAS",
		74:  "GBM",
		169: "SOBRADINHO",
		275: "TUCURUI",
	}
}

// ParseStations parses a comma-separated list of code:NAME pairs,
// e.g. "6:FURNAS,74:GBM". An empty string returns DefaultStations.
func ParseStations(s string) (Stations, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultStations(), nil
	}

	out := make(Stations)
	for _, part := range strings.Split(s, ",") {
		code, name, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid station %q (want code:NAME)", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(code))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid station code %q", code)
		}
		st := flows.Station(n)
		if _, dup := out[st]; dup {
			return nil, fmt.Errorf("duplicate station code %d", n)
		}
		out[st] = strings.ToUpper(strings.TrimSpace(name))
	}
	return out, nil
}

// Codes returns the station codes in ascending order.
func (s Stations) Codes() []flows.Station {
	return slices.Sorted(maps.Keys(s))
}

// String formats the stations as ParseStations expects them.
func (s Stations) String() string {
	parts := make([]string, 0, len(s))
	for _, st := range s.Codes() {
		parts = append(parts, fmt.Sprintf("%d:%s", st, s[st]))
	}
	return strings.Join(parts, ",")
}
