//go:build integration

package integration

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/HatiCode/analogflow/pkg/adapters"
	"github.com/HatiCode/analogflow/pkg/flows"
	"github.com/HatiCode/analogflow/pkg/scenario"
	"github.com/HatiCode/analogflow/pkg/storage"
)

var shape = [12]int{0, 80, 70, 60, 50, 40, 45, 55, 65, 75, 85, 100}

// writeFlowFile writes six years of flows for stations 6 and 74 where only
// 2000, 2001, 2003 and 2004 are acceptable analogs.
func writeFlowFile(t *testing.T, path string) {
	t.Helper()

	jans := []int{100, 110, 130, 150, 90, 120}
	var table flows.Table
	for st, k := range map[flows.Station]int{6: 1, 74: 2} {
		for i, jan := range jans {
			rec := flows.Record{Station: st, Year: 2000 + i}
			for m := range rec.Flows {
				v := shape[m]
				if m == 0 {
					v = jan
				}
				rec.Flows[m] = v * k
			}
			table = append(table, rec)
		}
	}
	table.Sort()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := flows.WriteFile(path, table); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}
	return strings.TrimPrefix(endpoint, "redis://")
}

// TestBatchWithRedis runs a two-file batch against a Redis registry and
// snapshot store and checks that no analog year is used twice.
func TestBatchWithRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	addr := startRedis(t)

	root := t.TempDir()
	writeFlowFile(t, filepath.Join(root, "north", "VAZOES.txt"))
	writeFlowFile(t, filepath.Join(root, "south", "VAZOES.txt"))

	reg, err := storage.NewRedisRegistry(addr, "", 0)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	defer reg.Close()
	store, err := storage.NewRedisStore(addr, "", 0, 0)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer store.Close()

	sources, err := (&adapters.FileAdapter{Root: root}).Collect(ctx)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(sources))
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	planner := scenario.New(scenario.Policy{
		Stations: scenario.Stations{6: "FURNAS", 74: "GBM"},
	}, reg, logger)

	results, err := planner.PlanBatch(ctx, sources)
	if err != nil {
		t.Fatalf("PlanBatch() error = %v", err)
	}

	out := t.TempDir()
	seen := map[int]string{}
	for _, res := range results {
		if res.Err != nil {
			t.Fatalf("%s aborted: %v", res.Source, res.Err)
		}
		paths, err := scenario.WriteFileResult(out, res)
		if err != nil {
			t.Fatalf("write %s: %v", res.Source, err)
		}
		if len(paths) != 2 {
			t.Errorf("%s: wrote %d files, want 2", res.Source, len(paths))
		}

		for _, o := range res.Outcomes {
			if o.Status != scenario.StatusAccepted {
				t.Fatalf("%s station %d: %s", o.Source, o.Station, o.Status)
			}
			if prev, dup := seen[o.Year()]; dup {
				t.Errorf("year %d used by %s and %s station %d", o.Year(), prev, o.Source, o.Station)
			}
			seen[o.Year()] = o.Source

			err := store.Put(ctx, storage.Snapshot{
				Source:     o.Source,
				Station:    int(o.Station),
				Name:       o.Name,
				Status:     string(o.Status),
				AnalogYear: o.Year(),
				Start:      o.Continuation.Start(),
			})
			if err != nil {
				t.Fatalf("Put() error = %v", err)
			}
		}
	}

	counts, err := reg.Years(ctx)
	if err != nil {
		t.Fatalf("Years() error = %v", err)
	}
	if len(counts) != 4 {
		t.Errorf("registry = %v, want 4 distinct years", counts)
	}

	snap, found, err := store.GetLatest(ctx, "north_VAZOES", 74)
	if err != nil || !found {
		t.Fatalf("GetLatest() found=%v err=%v", found, err)
	}
	if snap.Name != "GBM" || snap.Start != flows.NewPeriod(2006, 1) {
		t.Errorf("snapshot = %+v", snap)
	}

	// A new batch starts from an empty registry.
	if _, err := planner.PlanBatch(ctx, sources[:1]); err != nil {
		t.Fatalf("second PlanBatch() error = %v", err)
	}
	counts, _ = reg.Years(ctx)
	if len(counts) != 2 {
		t.Errorf("registry after reset = %v, want 2 years", counts)
	}
}

// TestBatchWithSQLite stores snapshots of a batch in SQLite and reads them
// back after reopening the database.
func TestBatchWithSQLite(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFlowFile(t, filepath.Join(root, "VAZOES.txt"))

	sources, err := (&adapters.FileAdapter{Root: root}).Collect(ctx)
	if err != nil {
		t.Fatal(err)
	}

	planner := scenario.New(scenario.Policy{
		Stations: scenario.Stations{6: "FURNAS"},
	}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	results, err := planner.PlanBatch(ctx, sources)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "scenarios.db")
	db, err := storage.NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, o := range results[0].Outcomes {
		if err := db.Put(ctx, storage.Snapshot{Source: o.Source, Station: int(o.Station), Status: string(o.Status), AnalogYear: o.Year()}); err != nil {
			t.Fatal(err)
		}
	}
	db.Close()

	db, err = storage.NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	snap, found, err := db.GetLatest(ctx, "VAZOES", 6)
	if err != nil || !found {
		t.Fatalf("GetLatest() found=%v err=%v", found, err)
	}
	if snap.AnalogYear != results[0].Outcomes[0].Year() {
		t.Errorf("analog year = %d, want %d", snap.AnalogYear, results[0].Outcomes[0].Year())
	}
}
