package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-assets/internal/config"
	"github.com/prn-tf/alexander-assets/internal/repository"
	"github.com/prn-tf/alexander-assets/internal/repository/postgres"
	"github.com/prn-tf/alexander-assets/internal/repository/sqlite"
)

// Database is an open metadata store of either driver.
type Database struct {
	repository.DatabaseHealth

	Driver     string
	Assets     repository.AssetRepository
	Variations repository.VariationRepository

	migrate func(ctx context.Context) error
	version func(ctx context.Context) (int, error)
}

// OpenDatabase connects to the configured database. Schema migrations are
// not applied; call Migrate.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*Database, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg, logger.With().Str("component", "postgres").Logger())
		if err != nil {
			return nil, err
		}
		return &Database{
			DatabaseHealth: db,
			Driver:         cfg.Driver,
			Assets:         postgres.NewAssetRepository(db),
			Variations:     postgres.NewVariationRepository(db),
			migrate:        db.Migrate,
			version:        db.Version,
		}, nil

	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqliteConfig(cfg), logger.With().Str("component", "sqlite").Logger())
		if err != nil {
			return nil, err
		}
		return &Database{
			DatabaseHealth: db,
			Driver:         cfg.Driver,
			Assets:         sqlite.NewAssetRepository(db),
			Variations:     sqlite.NewVariationRepository(db),
			migrate:        db.Migrate,
			version:        db.Version,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Migrate applies pending schema migrations.
func (d *Database) Migrate(ctx context.Context) error {
	return d.migrate(ctx)
}

// Version returns the highest applied migration version.
func (d *Database) Version(ctx context.Context) (int, error) {
	return d.version(ctx)
}

// sqliteConfig overlays the configured pragmas on the SQLite defaults.
func sqliteConfig(cfg config.DatabaseConfig) sqlite.Config {
	c := sqlite.DefaultConfig(cfg.Path)
	if cfg.JournalMode != "" {
		c.JournalMode = cfg.JournalMode
	}
	if cfg.BusyTimeout > 0 {
		c.BusyTimeout = cfg.BusyTimeout
	}
	if cfg.CacheSize != 0 {
		c.CacheSize = cfg.CacheSize
	}
	if cfg.SynchronousMode != "" {
		c.SynchronousMode = cfg.SynchronousMode
	}
	return c
}
