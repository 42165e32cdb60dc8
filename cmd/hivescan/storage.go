package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"hivescan/db/migrations"
	gormrepo "hivescan/internal/adapter/repo/gorm"
	"hivescan/internal/adapter/repo/memory"
	"hivescan/internal/adapter/repo/sqlite"
	"hivescan/internal/app/ports"
	"hivescan/internal/config"
)

// backend is what every storage driver provides: the sink's write side plus
// the lookups workers and schedulers read from.
type backend interface {
	ports.Store
	ports.GymDetailsRepository
	ports.SpawnPointRepository
}

type closeFunc func() error

func openBackend(cfg config.StorageConfig) (backend, closeFunc, error) {
	switch cfg.Driver {
	case "memory":
		return memory.NewStore(), func() error { return nil }, nil
	case "sqlite":
		idx, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.DSN, err)
		}
		return idx, idx.Close, nil
	case "postgres":
		db, err := gormrepo.OpenPostgres(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return gormrepo.NewStore(db), sqlDB.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func migrationsFS(cfg config.StorageConfig) fs.FS {
	if cfg.MigrationsDir != "" {
		return os.DirFS(cfg.MigrationsDir)
	}
	return migrations.FS
}

func migrate(ctx context.Context, cfg config.StorageConfig) ([]string, error) {
	if cfg.Driver != "postgres" {
		return nil, fmt.Errorf("migrations only apply to the postgres driver, not %q", cfg.Driver)
	}
	db, err := gormrepo.OpenPostgres(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	return gormrepo.ApplyMigrations(ctx, db, migrationsFS(cfg))
}
