// Package store builds the snapshot store and used-years registry selected
// by the configuration.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/analogflow/cmd/scenarios/config"
	"github.com/HatiCode/analogflow/pkg/analog"
	"github.com/HatiCode/analogflow/pkg/storage"
)

// Backend is the storage wired into the command.
type Backend struct {
	Store    storage.Store
	Registry analog.Registry

	closers []func() error
}

// Close releases every connection held by the backend.
func (b *Backend) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// New creates the backend for cfg.Storage.
//
// memory keeps snapshots and the registry in process. redis stores both in
// Redis so several instances share one batch registry. sqlite persists
// snapshots in a local database and keeps the registry in memory.
func New(cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Storage {
	case "memory":
		logger.Info("using in-memory storage", "ttl", cfg.SnapshotTTL)
		if cfg.SnapshotTTL <= 0 {
			return &Backend{
				Store:    storage.NewMemoryStore(),
				Registry: analog.NewUsedYears(),
			}, nil
		}
		st := storage.NewMemoryStoreWithTTL(cfg.SnapshotTTL, cleanupInterval(cfg.SnapshotTTL))
		return &Backend{
			Store:    st,
			Registry: analog.NewUsedYears(),
			closers:  []func() error{func() error { st.Stop(); return nil }},
		}, nil

	case "redis":
		logger.Info("using Redis storage", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.SnapshotTTL)
		st, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SnapshotTTL)
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		reg, err := storage.NewRedisRegistry(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("create redis registry: %w", err)
		}
		return &Backend{
			Store:    st,
			Registry: reg,
			closers:  []func() error{reg.Close, st.Close},
		}, nil

	case "sqlite":
		logger.Info("using SQLite storage", "path", cfg.SQLitePath)
		st, err := storage.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("create sqlite store: %w", err)
		}
		return &Backend{
			Store:    st,
			Registry: analog.NewUsedYears(),
			closers:  []func() error{st.Close},
		}, nil
	}

	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
}

// cleanupInterval sweeps expired snapshots a few times per TTL.
func cleanupInterval(ttl time.Duration) time.Duration {
	return max(ttl/4, time.Second)
}
