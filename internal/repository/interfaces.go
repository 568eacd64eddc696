// Package repository defines data access interfaces for Alexander Assets.
// These interfaces abstract database operations, allowing for different implementations
// (PostgreSQL, SQLite, cached decorators) while keeping the service layer clean.
package repository

import (
	"context"
	"time"

	"github.com/prn-tf/alexander-assets/internal/domain"
)

// =============================================================================
// Asset Repository
// =============================================================================

// AssetRepository defines the interface for asset data access.
type AssetRepository interface {
	// Create creates a new asset and assigns its ID and timestamps.
	Create(ctx context.Context, asset *domain.Asset) error

	// GetByID retrieves an asset by ID.
	// Returns domain.ErrAssetNotFound if it doesn't exist.
	GetByID(ctx context.Context, id int64) (*domain.Asset, error)

	// Update persists all mutable fields of an asset.
	Update(ctx context.Context, asset *domain.Asset) error

	// Delete deletes an asset record.
	Delete(ctx context.Context, id int64) error

	// ListByHashAndSize returns assets whose fingerprint and size match,
	// ordered by ID. These are the dedup candidates for new content.
	ListByHashAndSize(ctx context.Context, hash string, size int64) ([]*domain.Asset, error)

	// TouchLastUsed sets last_used_at.
	TouchLastUsed(ctx context.Context, id int64, at time.Time) error
}

// =============================================================================
// Variation Repository
// =============================================================================

// VariationRepository defines the interface for variation data access.
type VariationRepository interface {
	// Create creates a new variation.
	// Returns domain.ErrVariationExists if (original, name) is already taken.
	Create(ctx context.Context, variation *domain.Variation) error

	// GetByID retrieves a variation by ID.
	GetByID(ctx context.Context, id int64) (*domain.Variation, error)

	// GetByName retrieves the variation of an original with the given name.
	// Returns domain.ErrVariationNotFound if it doesn't exist.
	GetByName(ctx context.Context, originalAssetID int64, name string) (*domain.Variation, error)

	// ListByOriginal lists all variations of an original asset.
	ListByOriginal(ctx context.Context, originalAssetID int64) ([]*domain.Variation, error)

	// ListByVariationAsset lists the variations pointing at a derived asset, ordered by ID.
	ListByVariationAsset(ctx context.Context, assetID int64) ([]*domain.Variation, error)

	// Delete deletes a variation record.
	Delete(ctx context.Context, id int64) error

	// CountByOriginal counts the variations of an original asset.
	CountByOriginal(ctx context.Context, originalAssetID int64) (int64, error)

	// CountByVariationAsset counts variations pointing at a derived asset.
	CountByVariationAsset(ctx context.Context, assetID int64) (int64, error)

	// ListStale lists variations whose derived asset was last used before
	// cutoff or never. Ordered by last use (never-used first), then derived
	// asset ID, then variation ID.
	ListStale(ctx context.Context, cutoff time.Time, offset, limit int) ([]*domain.StaleVariation, error)
}

// =============================================================================
// Database Health
// =============================================================================

// DatabaseHealth is an interface for database health checks.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}
