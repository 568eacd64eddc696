package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-assets/internal/lock"
	"github.com/prn-tf/alexander-assets/internal/metrics"
	"github.com/prn-tf/alexander-assets/internal/repository"
)

// CleanupService removes variations whose derived asset has not been used
// within the retention window.
type CleanupService struct {
	variationRepo repository.VariationRepository
	variations    *VariationService
	locker        lock.Locker
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	config        CleanupConfig

	now func() time.Time

	// Control
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// CleanupConfig contains cleanup configuration.
type CleanupConfig struct {
	// Interval is how often Start runs a cleanup.
	Interval time.Duration

	// Retention is how long a variation may go unused.
	Retention time.Duration

	// BatchSize is the number of variations fetched per page.
	BatchSize int

	// LockTTL bounds how long a run holds the cleanup lock.
	LockTTL time.Duration

	// LockWait is how long RunOnce waits for a held lock before skipping.
	LockWait time.Duration

	// DryRun logs what would be deleted without actually deleting.
	DryRun bool
}

// DefaultCleanupConfig returns the defaults: 15 days retention, pages of 100.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Interval:  24 * time.Hour,
		Retention: 15 * 24 * time.Hour,
		BatchSize: 100,
		LockTTL:   time.Hour,
	}
}

// NewCleanupService creates a new CleanupService. m may be nil.
func NewCleanupService(
	variationRepo repository.VariationRepository,
	variations *VariationService,
	locker lock.Locker,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config CleanupConfig,
) *CleanupService {
	defaults := DefaultCleanupConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}

	return &CleanupService{
		variationRepo: variationRepo,
		variations:    variations,
		locker:        locker,
		metrics:       m,
		logger:        logger.With().Str("service", "cleanup").Logger(),
		config:        config,
		now:           time.Now,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Start begins the cleanup scheduler.
func (c *CleanupService) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	c.logger.Info().
		Dur("interval", c.config.Interval).
		Dur("retention", c.config.Retention).
		Int("batch_size", c.config.BatchSize).
		Bool("dry_run", c.config.DryRun).
		Msg("Starting variation cleanup")

	go c.runLoop()
}

// Stop stops the scheduler and waits for a running cleanup to finish.
func (c *CleanupService) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	close(c.stopChan)
	<-c.doneChan

	c.logger.Info().Msg("Variation cleanup stopped")
}

func (c *CleanupService) runLoop() {
	defer close(c.doneChan)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.RunOnce(context.Background())
		case <-c.stopChan:
			return
		}
	}
}

// CleanupResult contains the result of a cleanup run.
type CleanupResult struct {
	// Deleted is the number of variations removed (or that would be, in a dry run).
	Deleted int

	// Errors is the number of variations that could not be removed.
	Errors int

	// Skipped is true when another process held the cleanup lock.
	Skipped bool

	// Duration is how long the run took.
	Duration time.Duration
}

// RunOnce executes a single cleanup run. Variations are processed in
// pages, oldest use first; a run with nothing eligible is a no-op.
func (c *CleanupService) RunOnce(ctx context.Context) CleanupResult {
	start := time.Now()
	result := CleanupResult{}

	l := lock.NewLock(c.locker, lock.Keys.VariationCleanup())
	acquired, err := l.AcquireWithin(ctx, c.config.LockTTL, c.config.LockWait)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to acquire cleanup lock")
		result.Errors++
		result.Duration = time.Since(start)
		return result
	}
	if !acquired {
		c.logger.Debug().Msg("Cleanup lock held by another process, skipping run")
		result.Skipped = true
		result.Duration = time.Since(start)
		return result
	}
	defer func() {
		if err := l.Release(ctx); err != nil {
			c.logger.Error().Err(err).Msg("Failed to release cleanup lock")
		}
	}()

	cutoff := c.now().UTC().Add(-c.config.Retention)

	// Rows that stay behind (failures, dry run) are skipped by offset.
	offset := 0
	for {
		batch, err := c.variationRepo.ListStale(ctx, cutoff, offset, c.config.BatchSize)
		if err != nil {
			c.logger.Error().Err(err).Msg("Failed to list unused variations")
			result.Errors++
			break
		}

		for _, stale := range batch {
			if c.config.DryRun {
				c.logger.Info().
					Int64("variation_id", stale.ID).
					Int64("variation_asset_id", stale.VariationAssetID).
					Msg("[DRY RUN] Would remove variation")
				result.Deleted++
				offset++
				continue
			}

			c.logRemoval(stale.ID, stale.AssetLastUsedAt)
			if err := c.variations.DeleteVariation(ctx, &stale.Variation); err != nil {
				c.logger.Error().Err(err).Int64("variation_id", stale.ID).Msg("Failed to remove variation")
				result.Errors++
				offset++
				continue
			}
			result.Deleted++
		}

		if len(batch) < c.config.BatchSize || ctx.Err() != nil {
			break
		}

		if err := l.Extend(ctx, c.config.LockTTL); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to extend cleanup lock")
		}
		if !l.IsHeld() {
			c.logger.Warn().Msg("Cleanup lock expired, stopping run")
			break
		}
	}

	result.Duration = time.Since(start)

	if c.metrics != nil {
		c.metrics.RecordCleanupRun(result.Duration.Seconds(), result.Deleted, result.Errors)
	}

	c.logger.Info().
		Int("variations_deleted", result.Deleted).
		Int("errors", result.Errors).
		Bool("dry_run", c.config.DryRun).
		Dur("duration", result.Duration).
		Msg("Variation cleanup run completed")

	return result
}

func (c *CleanupService) logRemoval(id int64, lastUsedAt *time.Time) {
	event := c.logger.Info().Int64("variation_id", id)
	if lastUsedAt == nil {
		event.Msgf("Removing variation %d, last used a very long time ago.", id)
		return
	}
	event.Msgf("Removing variation %d, last used at %s.", id, lastUsedAt.Format("2006-01-02"))
}
