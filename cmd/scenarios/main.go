// Command scenarios builds streamflow scenarios from analog years.
//
// For every flow file of a source it ranks past years by correlation with the
// last twelve observed months of each principal station, accepts the best one
// whose month-over-month ratios stay inside the historical envelope, and
// appends that year's continuation to the file. The loop:
//  1. Collects flow files from a directory tree or a JSON API
//  2. Selects one analog year per principal station, without repeating years
//  3. Writes <source>_<NAME>_<year>.txt with the extended series
//  4. Stores scenario snapshots for the HTTP API
//
// The command serves an HTTP API on port 8082 (configurable) providing:
//   - GET /scenarios/current?source=<name>&station=<code> - Latest snapshot
//   - GET /sources - Sources with stored snapshots
//   - GET /registry - Analog years used in the current batch
//   - GET /healthz - Health check endpoint
//   - GET /metrics - Prometheus metrics endpoint
//
// and, when GRPC_LISTEN is set, the standard gRPC health service.
//
// Usage:
//
//	SOURCE_ROOT=/data/flows scenarios -output-dir=/data/out -once
//
// Environment variables:
//
//	SOURCE          - Flow source: file or http (default: file)
//	SOURCE_*        - Source settings, e.g. SOURCE_ROOT, SOURCE_URL
//	OUTPUT_DIR      - Directory for extended flow files (default: out)
//	STATIONS        - Principal stations as code:NAME pairs
//	RANK_CEILING    - Amplitude attempts per station (default: 20)
//	RETRY_RANK      - Larger ceiling for one retry (default: disabled)
//	FORBID_REUSE    - within_file, across_batch or never (default: across_batch)
//	AMPLITUDE_SCOPE - reference or all (default: reference)
//	MONTHS          - Continuation length (default: rest of the forecast year)
//	STORAGE         - memory, redis or sqlite (default: memory)
//	SNAPSHOT_TTL    - Snapshot expiry for memory and redis storage
//	INTERVAL        - Batch interval (default: 1h)
//	ONCE            - Run one batch and exit
//	LOG_LEVEL       - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT      - Logging format: text, json (default: text)
//	LOG_FILE        - Rotating log file
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/analogflow/cmd/scenarios/config"
	"github.com/HatiCode/analogflow/cmd/scenarios/logger"
	"github.com/HatiCode/analogflow/cmd/scenarios/metrics"
	"github.com/HatiCode/analogflow/cmd/scenarios/router"
	"github.com/HatiCode/analogflow/cmd/scenarios/store"
	"github.com/HatiCode/analogflow/pkg/adapters"
	"github.com/HatiCode/analogflow/pkg/httpx"
	"github.com/HatiCode/analogflow/pkg/scenario"
	aftls "github.com/HatiCode/analogflow/pkg/tls"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log, logCloser := logger.New(cfg)
	defer logCloser.Close()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("scenarios failed", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	log.Info("starting analogflow scenarios",
		"version", version,
		"source", cfg.Source,
		"stations", policy.Stations.String(),
		"rank_ceiling", policy.MaxRank,
		"reuse", policy.Reuse,
		"storage", cfg.Storage,
		"once", cfg.Once,
	)

	adapter, err := newAdapter(cfg)
	if err != nil {
		return err
	}

	backend, err := store.New(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Error("failed to close storage", "error", err)
		}
	}()

	m := metrics.New(prometheus.DefaultRegisterer)
	planner := scenario.New(policy, backend.Registry, log)
	runner := NewRunner(adapter, planner, backend.Store, cfg.OutputDir, log, m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if cfg.Once {
		report, err := runner.Tick(ctx)
		if err != nil {
			return err
		}
		log.Info("one-shot batch finished", "files", report.Files, "aborted", report.Aborted, "written", len(report.Written))
		return nil
	}

	var serverTLS *tls.Config
	if cfg.TLS.Enabled {
		if serverTLS, err = aftls.NewServerTLSConfig(cfg.TLS); err != nil {
			return err
		}
	}

	errCh := make(chan error, 2)
	pending := 0

	if cfg.GRPCListen != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			return err
		}
		hs := NewHealthServer(serverTLS, log)
		runner.OnReady = hs.MarkServing
		pending++
		go func() { errCh <- hs.Serve(ctx, lis) }()
	}

	handler := router.SetupRoutes(router.Deps{
		Store:      backend.Store,
		Registry:   backend.Registry,
		Health:     runner.Ready,
		StaleAfter: 2 * cfg.Interval,
		Logger:     log,
	})
	httpServer := httpx.NewServer(cfg.Listen, handler, log)
	if serverTLS != nil {
		httpServer.SetTLSConfig(serverTLS)
	}
	pending++
	go func() { errCh <- httpServer.Serve(ctx, 10*time.Second) }()

	go func() {
		if err := runner.Run(ctx, cfg.Interval); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("batch loop failed", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		pending--
		if err != nil {
			stop()
			return err
		}
	}

	stop()
	log.Info("shutting down")
	deadline := time.After(15 * time.Second)
	for ; pending > 0; pending-- {
		select {
		case err := <-errCh:
			if err != nil {
				log.Error("server shutdown failed", "error", err)
			}
		case <-deadline:
			return errors.New("shutdown timed out")
		}
	}

	log.Info("shutdown complete")
	return nil
}

// newAdapter creates the flow source. HTTP sources verify the server against
// SOURCE_CA_FILE when it is set.
func newAdapter(cfg *config.Config) (adapters.Adapter, error) {
	adapter, err := adapters.New(cfg.Source, cfg.SourceConfig)
	if err != nil {
		return nil, err
	}

	if h, ok := adapter.(*adapters.HTTPAdapter); ok {
		ca := cfg.SourceConfig["caFile"]
		client, err := httpx.NewClient(aftls.Config{Enabled: ca != "", CAFile: ca}, 30*time.Second)
		if err != nil {
			return nil, err
		}
		h.HTTPClient = client
	}
	return adapter, nil
}
