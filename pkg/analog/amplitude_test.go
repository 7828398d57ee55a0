package analog

import (
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/HatiCode/analogflow/pkg/flows"
)

// January ratios for pattern(50, 120, 150, 80): the first row contributes 0,
// then 1.2, 1.5 and 0.8. The live series ends on a December of 100.
func TestCheckAmplitude_Envelope(t *testing.T) {
	series := newSeries(t, jan(2000), map[flows.Station][]int{
		6: pattern(50, 120, 150, 80),
	})

	tests := []struct {
		name      string
		end       flows.Period
		wantRatio float64
		wantPass  bool
	}{
		{"inside envelope", dec(2000), 1.2, true},
		{"equal to max fails", dec(2001), 1.5, false},
		{"inside near lower bound", dec(2002), 0.8, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := CheckAmplitude(series, 6, tt.end, ScopeReference)
			if err != nil {
				t.Fatalf("CheckAmplitude() error = %v", err)
			}
			if got := res.Ratios[6]; math.Abs(got-tt.wantRatio) > 1e-9 {
				t.Errorf("ratio = %v, want %v", got, tt.wantRatio)
			}
			if res.Passed != tt.wantPass {
				t.Errorf("Passed = %v, want %v", res.Passed, tt.wantPass)
			}

			env := res.Envelopes[6]
			if env.Min != 0 || math.Abs(env.Max-1.5) > 1e-9 || env.Samples != 4 {
				t.Errorf("envelope = %+v, want {0 1.5 4}", env)
			}
		})
	}
}

func TestCheckAmplitude_EqualToMinFails(t *testing.T) {
	// Starting in February drops the predecessor-less January, so the
	// envelope is [0.8, 1.5].
	values := pattern(50, 120, 150, 80)[1:]
	series := newSeries(t, flows.NewPeriod(2000, time.February), map[flows.Station][]int{6: values})

	res, err := CheckAmplitude(series, 6, dec(2002), ScopeReference)
	if err != nil {
		t.Fatalf("CheckAmplitude() error = %v", err)
	}
	if res.Passed {
		t.Errorf("ratio %v equal to envelope min %v should fail", res.Ratios[6], res.Envelopes[6].Min)
	}

	res, err = CheckAmplitude(series, 6, dec(2000), ScopeReference)
	if err != nil {
		t.Fatalf("CheckAmplitude() error = %v", err)
	}
	if !res.Passed {
		t.Errorf("ratio %v inside %+v should pass", res.Ratios[6], res.Envelopes[6])
	}
}

func TestCheckAmplitude_Scope(t *testing.T) {
	series := newSeries(t, jan(2000), map[flows.Station][]int{
		6:  pattern(50, 120, 150, 80),
		74: pattern(50, 250, 150, 80),
	})

	ref, err := CheckAmplitude(series, 6, dec(2000), ScopeReference)
	if err != nil {
		t.Fatalf("CheckAmplitude(reference) error = %v", err)
	}
	if !ref.Passed {
		t.Error("reference scope should ignore other stations")
	}
	if !slices.Equal(ref.Failed, []flows.Station{74}) {
		t.Errorf("Failed = %v, want [74]", ref.Failed)
	}

	all, err := CheckAmplitude(series, 6, dec(2000), ScopeAll)
	if err != nil {
		t.Fatalf("CheckAmplitude(all) error = %v", err)
	}
	if all.Passed {
		t.Error("all scope should fail when any station leaves its envelope")
	}
}

func TestCheckAmplitude_Errors(t *testing.T) {
	series := newSeries(t, jan(2000), map[flows.Station][]int{6: pattern(50, 120, 150, 80)})

	tests := []struct {
		name string
		st   flows.Station
		end  flows.Period
	}{
		{"unknown station", 9, dec(2000)},
		{"analog outside series", 6, dec(2003)},
		{"analog month mismatch", 6, flows.NewPeriod(2001, time.November)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CheckAmplitude(series, tt.st, tt.end, ScopeReference)
			if !errors.Is(err, flows.ErrData) {
				t.Errorf("error = %v, want ErrData", err)
			}
		})
	}
}

func TestEnvelope_Contains(t *testing.T) {
	env := Envelope{Min: 0.5, Max: 2, Samples: 3}

	tests := []struct {
		r    float64
		want bool
	}{
		{0.5, false},
		{0.51, true},
		{1.99, true},
		{2, false},
		{3, false},
	}
	for _, tt := range tests {
		if got := env.Contains(tt.r); got != tt.want {
			t.Errorf("Contains(%v) = %v, want %v", tt.r, got, tt.want)
		}
	}

	if !(Envelope{}).Contains(42) {
		t.Error("empty envelope should accept every ratio")
	}
}

func TestSafeRatio(t *testing.T) {
	if got := safeRatio(10, 0); got != 0 {
		t.Errorf("safeRatio(10, 0) = %v, want 0", got)
	}
	if got := safeRatio(0, 0); got != 0 {
		t.Errorf("safeRatio(0, 0) = %v, want 0", got)
	}
	if got := safeRatio(30, 20); got != 1.5 {
		t.Errorf("safeRatio(30, 20) = %v, want 1.5", got)
	}
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		in      string
		want    Scope
		wantErr bool
	}{
		{"", ScopeReference, false},
		{"reference", ScopeReference, false},
		{" ALL ", ScopeAll, false},
		{"some", "", true},
	}
	for _, tt := range tests {
		got, err := ParseScope(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseScope(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseScope(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
