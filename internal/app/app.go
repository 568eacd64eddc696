// Package app wires configuration into the running components shared by the
// server and the admin tools.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-assets/internal/cache/memory"
	cacheredis "github.com/prn-tf/alexander-assets/internal/cache/redis"
	"github.com/prn-tf/alexander-assets/internal/config"
	"github.com/prn-tf/alexander-assets/internal/imaging"
	"github.com/prn-tf/alexander-assets/internal/lock"
	"github.com/prn-tf/alexander-assets/internal/metrics"
	"github.com/prn-tf/alexander-assets/internal/pathgen"
	"github.com/prn-tf/alexander-assets/internal/repository"
	"github.com/prn-tf/alexander-assets/internal/service"
	"github.com/prn-tf/alexander-assets/internal/storage"
)

// cacheSweepInterval is how often the in-memory cache drops expired entries.
const cacheSweepInterval = time.Minute

// App holds the wired services and everything that must be closed with them.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Database *Database
	Disks    *storage.Manager
	Metrics  *metrics.Metrics
	Locker   lock.Locker

	Assets     *service.AssetService
	Variations *service.VariationService
	Cleanup    *service.CleanupService

	closers []io.Closer
}

// NewLogger builds the process logger from the logging settings.
func NewLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.Output == "stderr" {
		out = os.Stderr
	}

	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// New opens the database, disks and cache described by cfg and builds the
// services on top of them. The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
	}

	db, err := OpenDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a.Database = db
	a.closers = append(a.closers, db)

	disks, closers, err := OpenDisks(ctx, cfg.Storage, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Disks = disks
	a.closers = append(a.closers, closers...)

	assetRepo, err := a.wireCache(ctx, db.Assets)
	if err != nil {
		a.Close()
		return nil, err
	}

	paths, err := pathgen.New(cfg.Storage.PathGenerator, pathgen.WithUploadFolder(cfg.Storage.UploadFolder))
	if err != nil {
		a.Close()
		return nil, err
	}

	images := imaging.New(imaging.Options{JPEGQuality: cfg.Delivery.JPEGQuality})

	a.Assets = service.NewAssetService(assetRepo, db.Variations, disks, paths, images, m, logger, service.AssetConfig{
		TempDir:     cfg.Storage.TempDir,
		Deduplicate: cfg.Storage.Deduplicate,
	})
	a.Variations = service.NewVariationService(a.Assets, db.Variations, images, m, logger, service.VariationConfig{
		MaxDimension: cfg.Delivery.MaxDimension,
	})
	a.Cleanup = service.NewCleanupService(db.Variations, a.Variations, a.Locker, m, logger, service.CleanupConfig{
		Interval:  cfg.Cleanup.Interval,
		Retention: cfg.Cleanup.Retention,
		BatchSize: cfg.Cleanup.BatchSize,
		LockTTL:   cfg.Cleanup.LockTTL,
		LockWait:  cfg.Cleanup.LockWait,
		DryRun:    cfg.Cleanup.DryRun,
	})

	return a, nil
}

// wireCache picks the cache and lock backends. Redis serves both when
// enabled; otherwise they are process-local.
func (a *App) wireCache(ctx context.Context, assets repository.AssetRepository) (repository.AssetRepository, error) {
	var cache repository.Cache

	if a.Config.Redis.Enabled {
		client, err := cacheredis.NewClient(ctx, a.Config.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client)

		cache = cacheredis.NewCache(client, "alexander:")
		a.Locker = cacheredis.NewLocker(client)

		a.Logger.Info().Str("addr", a.Config.Redis.Addr()).Msg("connected to Redis")
	} else {
		mem := memory.NewCache(cacheSweepInterval)
		a.closers = append(a.closers, closerFunc(func() error {
			mem.Stop()
			return nil
		}))

		cache = mem

		// Without the scheduler, cleanup only runs from one-shot commands
		// and a process-local lock has nothing to exclude.
		if a.Config.Cleanup.Enabled {
			a.Locker = lock.NewMemoryLocker()
		} else {
			a.Locker = lock.NewNoOpLocker()
		}
	}

	if !a.Config.Cache.Enabled {
		return assets, nil
	}
	return repository.NewCachedAssetRepository(assets, cache, a.Config.Cache.AssetTTL, a.Logger), nil
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close resource")
		}
	}
	a.closers = nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Describe returns a short summary of the configured backends.
func (a *App) Describe() string {
	return fmt.Sprintf("driver=%s disks=%s default=%s", a.Database.Driver,
		strings.Join(a.Disks.Names(), ","), a.Disks.DefaultName())
}
