// Package router configures HTTP routes for the scenarios API.
//
// Routes configured:
//   - GET /scenarios/current?source=<name>&station=<code> - Latest scenario snapshot
//   - GET /sources - Sources with stored snapshots
//   - GET /registry - Analog years committed in the current batch
//   - GET /healthz - Health check endpoint
//   - GET /metrics - Prometheus metrics endpoint
//
// Snapshots older than the stale threshold include an X-Analogflow-Stale
// header.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/analogflow/pkg/analog"
	"github.com/HatiCode/analogflow/pkg/httpx"
	"github.com/HatiCode/analogflow/pkg/storage"
)

// Deps holds what the handlers read.
type Deps struct {
	Store    storage.Store
	Registry analog.Registry

	// Health reports whether the service is ready. Nil means always healthy.
	Health func() error

	StaleAfter time.Duration
	Logger     *slog.Logger
}

// RegistryResponse is the body of GET /registry.
type RegistryResponse struct {
	Years map[int]int `json:"years"`
	Order []int       `json:"order"`
}

// SetupRoutes configures HTTP endpoints for the scenarios API.
func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	health := d.Health
	if health == nil {
		health = func() error { return nil }
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", httpx.HealthHandlerWithCheck(health))
	mux.HandleFunc("GET /scenarios/current", handleGetSnapshot(d.Store, d.StaleAfter, d.Logger))
	mux.HandleFunc("GET /sources", handleGetSources(d.Store, d.Logger))
	mux.HandleFunc("GET /registry", handleGetRegistry(d.Registry, d.Logger))
	mux.Handle("GET /metrics", promhttp.Handler())

	return httpx.Chain(mux, httpx.RecoveryMiddleware(d.Logger), httpx.LoggingMiddleware(d.Logger))
}

// handleGetSnapshot returns a handler for
// GET /scenarios/current?source=<name>&station=<code>.
func handleGetSnapshot(store storage.Store, staleAfter time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := r.URL.Query().Get("source")
		if source == "" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "source parameter required")
			return
		}

		station, ok, err := httpx.QueryInt(r, "station")
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}
		if !ok {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "station parameter required")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		snapshot, found, err := store.GetLatest(ctx, source, station)
		if err != nil {
			logger.Error("failed to get snapshot", "source", source, "station", station, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound,
				fmt.Sprintf("snapshot not found for source %q station %d", source, station))
			return
		}

		if staleAfter > 0 && time.Since(snapshot.GeneratedAt) > staleAfter {
			w.Header().Set("X-Analogflow-Stale", "true")
		}

		if err := httpx.WriteJSON(w, http.StatusOK, snapshot); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// SourcesResponse is the body of GET /sources.
type SourcesResponse struct {
	Sources []string `json:"sources"`
}

// handleGetSources returns a handler for GET /sources.
func handleGetSources(store storage.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		sources, err := store.Sources(ctx)
		if err != nil {
			logger.Error("failed to list sources", "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if sources == nil {
			sources = []string{}
		}
		if err := httpx.WriteJSON(w, http.StatusOK, SourcesResponse{Sources: sources}); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleGetRegistry returns a handler for GET /registry.
func handleGetRegistry(registry analog.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		counts, err := registry.Years(ctx)
		if err != nil {
			logger.Error("failed to read registry", "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if counts == nil {
			counts = map[int]int{}
		}

		resp := RegistryResponse{
			Years: counts,
			Order: slices.Sorted(maps.Keys(counts)),
		}
		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}
