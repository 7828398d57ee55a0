package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/HatiCode/analogflow/pkg/flows"
)

func sampleSnapshot(source string, station int) Snapshot {
	coef := 0.93
	return Snapshot{
		Source:      source,
		Station:     station,
		Name:        "FURNAS",
		GeneratedAt: time.Now(),
		Status:      "accepted",
		AnalogYear:  1987,
		Position:    2,
		Coefficient: &coef,
		Tries:       1,
		Start:       flows.NewPeriod(2024, time.January),
		Flows:       map[int][]int{6: {812, 1020, 990}, 74: {410, 380, 365}},
		Correlations: map[int]float64{
			6:  0.93,
			74: 0.71,
		},
	}
}

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if store == nil {
		t.Fatal("NewMemoryStore() returned nil")
	}
	if store.Len() != 0 {
		t.Errorf("New store should be empty, got %d snapshots", store.Len())
	}
}

func TestMemoryStore_Put_Get(t *testing.T) {
	tests := []struct {
		name     string
		snapshot Snapshot
		wantErr  bool
	}{
		{
			name:     "valid snapshot",
			snapshot: sampleSnapshot("VAZOES-AVG", 6),
			wantErr:  false,
		},
		{
			name:     "empty source",
			snapshot: sampleSnapshot("", 6),
			wantErr:  true,
		},
		{
			name:     "source with path separator",
			snapshot: sampleSnapshot("cases/wet", 6),
			wantErr:  true,
		},
		{
			name:     "minimal valid snapshot",
			snapshot: Snapshot{Source: "minimal", Station: 74, Status: "exhausted"},
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			ctx := context.Background()

			err := store.Put(ctx, tt.snapshot)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Put() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			got, found, err := store.GetLatest(ctx, tt.snapshot.Source, tt.snapshot.Station)
			if err != nil {
				t.Fatalf("GetLatest() error = %v", err)
			}
			if !found {
				t.Fatal("GetLatest() found = false, want true")
			}
			if got.Key() != tt.snapshot.Key() || got.Status != tt.snapshot.Status {
				t.Errorf("GetLatest() = %+v, want %+v", got, tt.snapshot)
			}
			if len(got.Flows) != len(tt.snapshot.Flows) {
				t.Errorf("Flows = %v, want %v", got.Flows, tt.snapshot.Flows)
			}
		})
	}
}

func TestMemoryStore_GetLatest_NotFound(t *testing.T) {
	store := NewMemoryStore()

	_, found, err := store.GetLatest(context.Background(), "missing", 6)
	if err != nil {
		t.Errorf("GetLatest() error = %v, want nil", err)
	}
	if found {
		t.Error("GetLatest() found = true, want false")
	}
}

func TestMemoryStore_Put_Update(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := sampleSnapshot("VAZOES-AVG", 6)
	second := sampleSnapshot("VAZOES-AVG", 6)
	second.AnalogYear = 1954

	if err := store.Put(ctx, first); err != nil {
		t.Fatalf("Put(first) error = %v", err)
	}
	if err := store.Put(ctx, second); err != nil {
		t.Fatalf("Put(second) error = %v", err)
	}

	got, _, _ := store.GetLatest(ctx, "VAZOES-AVG", 6)
	if got.AnalogYear != 1954 {
		t.Errorf("AnalogYear = %d, want 1954 (latest)", got.AnalogYear)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestMemoryStore_KeysBySourceAndStation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, src := range []string{"VAZOES-AVG", "VAZOES-P10"} {
		for _, st := range []int{6, 74, 169} {
			s := sampleSnapshot(src, st)
			s.AnalogYear = 1900 + st
			if err := store.Put(ctx, s); err != nil {
				t.Fatalf("Put(%s, %d) error = %v", src, st, err)
			}
		}
	}

	if store.Len() != 6 {
		t.Errorf("Len() = %d, want 6", store.Len())
	}
	got, found, _ := store.GetLatest(ctx, "VAZOES-P10", 169)
	if !found || got.AnalogYear != 2069 {
		t.Errorf("GetLatest(VAZOES-P10, 169) = %+v, %v", got, found)
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := store.Put(ctx, sampleSnapshot(fmt.Sprintf("src-%d", i%4), 6)); err != nil {
				t.Errorf("Put() error = %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, _, err := store.GetLatest(ctx, fmt.Sprintf("src-%d", i%4), 6); err != nil {
				t.Errorf("GetLatest() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if store.Len() != 4 {
		t.Errorf("Len() = %d, want 4", store.Len())
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Put(ctx, sampleSnapshot("a", 6)); err == nil {
		t.Error("Put() with canceled context should fail")
	}
	if _, _, err := store.GetLatest(ctx, "a", 6); err == nil {
		t.Error("GetLatest() with canceled context should fail")
	}
}

func TestMemoryStore_Sources(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, s := range []Snapshot{
		sampleSnapshot("VAZOES-P10", 6),
		sampleSnapshot("VAZOES-AVG", 74),
		sampleSnapshot("VAZOES-AVG", 6),
	} {
		if err := store.Put(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.Sources(ctx)
	if err != nil {
		t.Fatalf("Sources() error = %v", err)
	}
	if len(got) != 2 || got[0] != "VAZOES-AVG" || got[1] != "VAZOES-P10" {
		t.Errorf("Sources() = %v", got)
	}
}

func TestMemoryStoreWithTTL_HidesExpired(t *testing.T) {
	store := NewMemoryStoreWithTTL(time.Hour, time.Hour)
	defer store.Stop()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	old := sampleSnapshot("old", 6)
	old.GeneratedAt = now.Add(-2 * time.Hour)
	fresh := sampleSnapshot("fresh", 6)
	fresh.GeneratedAt = now.Add(-time.Minute)
	for _, s := range []Snapshot{old, fresh} {
		if err := store.Put(context.Background(), s); err != nil {
			t.Fatal(err)
		}
	}

	if _, found, _ := store.GetLatest(context.Background(), "old", 6); found {
		t.Error("expired snapshot should not be returned")
	}
	if sources, _ := store.Sources(context.Background()); len(sources) != 1 || sources[0] != "fresh" {
		t.Errorf("Sources() = %v, want [fresh]", sources)
	}

	// Expired entries stay until the sweep runs.
	if store.Len() != 2 {
		t.Errorf("Len() before sweep = %d, want 2", store.Len())
	}
	store.sweep()
	if store.Len() != 1 {
		t.Errorf("Len() after sweep = %d, want 1", store.Len())
	}
}

func TestMemoryStoreWithTTL_Sweeps(t *testing.T) {
	store := NewMemoryStoreWithTTL(100*time.Millisecond, 20*time.Millisecond)
	defer store.Stop()

	old := sampleSnapshot("old", 6)
	old.GeneratedAt = time.Now().Add(-time.Second)
	if err := store.Put(context.Background(), old); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("background sweep did not remove the expired snapshot")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMemoryStoreWithTTL_Stop(t *testing.T) {
	store := NewMemoryStoreWithTTL(time.Minute, time.Second)

	done := make(chan struct{})
	go func() {
		store.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not complete within timeout")
	}

	// Calling Stop again should be safe
	store.Stop()
}

func TestMemoryStore_StopWithoutTTL(t *testing.T) {
	store := NewMemoryStore()
	store.Stop()

	if err := store.Put(context.Background(), sampleSnapshot("a", 6)); err != nil {
		t.Errorf("Put() after Stop() error = %v", err)
	}
}

func TestMemoryStoreWithTTL_PanicOnInvalidTTL(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewMemoryStoreWithTTL should panic with zero TTL")
		}
	}()

	NewMemoryStoreWithTTL(0, time.Second)
}
