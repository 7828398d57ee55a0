package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/HatiCode/analogflow/pkg/analog"
	"github.com/HatiCode/analogflow/pkg/flows"
	"github.com/HatiCode/analogflow/pkg/storage"
)

func setup(t *testing.T, health func() error) (http.Handler, *storage.MemoryStore, *analog.UsedYears) {
	t.Helper()
	store := storage.NewMemoryStore()
	reg := analog.NewUsedYears()
	h := SetupRoutes(Deps{
		Store:      store,
		Registry:   reg,
		Health:     health,
		StaleAfter: time.Hour,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h, store, reg
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestHealthEndpoint(t *testing.T) {
	ready := errors.New("no batch completed")
	h, _, _ := setup(t, func() error { return ready })

	if w := get(h, "/healthz"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	ready = nil
	w := get(h, "/healthz")
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("status=%d body=%q", w.Code, w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _, _ := setup(t, nil)

	w := get(h, "/metrics")
	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get("Content-Type") == "" {
		t.Error("Content-Type header should be set for metrics endpoint")
	}
}

func TestGetSnapshot_BadRequests(t *testing.T) {
	h, _, _ := setup(t, nil)

	for _, target := range []string{
		"/scenarios/current",
		"/scenarios/current?source=VAZOES",
		"/scenarios/current?source=VAZOES&station=furnas",
	} {
		if w := get(h, target); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status code = %d, want %d", target, w.Code, http.StatusBadRequest)
		}
	}
}

func TestGetSnapshot_NotFound(t *testing.T) {
	h, _, _ := setup(t, nil)

	if w := get(h, "/scenarios/current?source=VAZOES&station=6"); w.Code != http.StatusNotFound {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestGetSnapshot_Success(t *testing.T) {
	h, store, _ := setup(t, nil)

	coef := 0.93
	err := store.Put(context.Background(), storage.Snapshot{
		Source:      "VAZOES",
		Station:     6,
		Name:        "FURNAS",
		GeneratedAt: time.Now(),
		Status:      "accepted",
		AnalogYear:  1987,
		Position:    2,
		Coefficient: &coef,
		Tries:       2,
		Start:       flows.NewPeriod(2024, time.January),
		Flows:       map[int][]int{6: {900, 1100}},
	})
	if err != nil {
		t.Fatal(err)
	}

	w := get(h, "/scenarios/current?source=VAZOES&station=6")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if w.Header().Get("X-Analogflow-Stale") != "" {
		t.Error("fresh snapshot should not be marked stale")
	}

	var got storage.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.AnalogYear != 1987 || got.Name != "FURNAS" || got.Start != flows.NewPeriod(2024, time.January) {
		t.Errorf("snapshot = %+v", got)
	}
	if len(got.Flows[6]) != 2 || got.Coefficient == nil || *got.Coefficient != coef {
		t.Errorf("flows=%v coefficient=%v", got.Flows, got.Coefficient)
	}
}

func TestGetSnapshot_Stale(t *testing.T) {
	h, store, _ := setup(t, nil)

	_ = store.Put(context.Background(), storage.Snapshot{
		Source:      "VAZOES",
		Station:     74,
		GeneratedAt: time.Now().Add(-2 * time.Hour),
		Status:      "exhausted",
	})

	w := get(h, "/scenarios/current?source=VAZOES&station=74")
	if w.Header().Get("X-Analogflow-Stale") != "true" {
		t.Error("expected stale header")
	}
}

func TestGetRegistry(t *testing.T) {
	h, _, reg := setup(t, nil)
	if err := reg.Commit(context.Background(), []int{1987, 1954, 1987}); err != nil {
		t.Fatal(err)
	}

	w := get(h, "/registry")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}

	var resp RegistryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Years[1987] != 2 || resp.Years[1954] != 1 {
		t.Errorf("years = %v", resp.Years)
	}
	if len(resp.Order) != 2 || resp.Order[0] != 1954 {
		t.Errorf("order = %v", resp.Order)
	}
}

func TestGetSources(t *testing.T) {
	h, store, _ := setup(t, nil)

	w := get(h, "/sources")
	if w.Code != http.StatusOK || w.Body.String() == "" {
		t.Fatalf("status code = %d", w.Code)
	}
	var empty SourcesResponse
	if err := json.NewDecoder(w.Body).Decode(&empty); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if empty.Sources == nil || len(empty.Sources) != 0 {
		t.Errorf("empty store sources = %v, want []", empty.Sources)
	}

	for _, src := range []string{"seg_21.11_VAZOES", "VAZOES-AVG"} {
		if err := store.Put(context.Background(), storage.Snapshot{Source: src, Station: 6, Status: "accepted", GeneratedAt: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}

	var resp SourcesResponse
	if err := json.NewDecoder(get(h, "/sources").Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Sources) != 2 || resp.Sources[0] != "VAZOES-AVG" || resp.Sources[1] != "seg_21.11_VAZOES" {
		t.Errorf("sources = %v", resp.Sources)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _, _ := setup(t, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/registry", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}
