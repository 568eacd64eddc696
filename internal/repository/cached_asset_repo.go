package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-assets/internal/domain"
)

// cachedAssetRepository is a read-through cache in front of an AssetRepository.
// Cache failures are logged and fall through to the wrapped repository.
type cachedAssetRepository struct {
	next   AssetRepository
	cache  Cache
	ttl    time.Duration
	keys   CacheKey
	logger zerolog.Logger
}

var _ AssetRepository = (*cachedAssetRepository)(nil)

// NewCachedAssetRepository wraps next with a record cache.
func NewCachedAssetRepository(next AssetRepository, cache Cache, ttl time.Duration, logger zerolog.Logger) AssetRepository {
	return &cachedAssetRepository{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "asset_cache").Logger(),
	}
}

func (r *cachedAssetRepository) Create(ctx context.Context, asset *domain.Asset) error {
	return r.next.Create(ctx, asset)
}

func (r *cachedAssetRepository) GetByID(ctx context.Context, id int64) (*domain.Asset, error) {
	key := r.keys.AssetByID(id)

	data, err := r.cache.Get(ctx, key)
	if err == nil {
		var asset domain.Asset
		if jsonErr := json.Unmarshal(data, &asset); jsonErr == nil {
			return &asset, nil
		}
		r.invalidate(ctx, id)
	} else if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn().Err(err).Int64("asset_id", id).Msg("asset cache read failed")
	}

	asset, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(asset); err == nil {
		if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
			r.logger.Warn().Err(err).Int64("asset_id", id).Msg("asset cache write failed")
		}
	}
	return asset, nil
}

func (r *cachedAssetRepository) Update(ctx context.Context, asset *domain.Asset) error {
	defer r.invalidate(ctx, asset.ID)
	return r.next.Update(ctx, asset)
}

func (r *cachedAssetRepository) Delete(ctx context.Context, id int64) error {
	defer r.invalidate(ctx, id)
	return r.next.Delete(ctx, id)
}

func (r *cachedAssetRepository) ListByHashAndSize(ctx context.Context, hash string, size int64) ([]*domain.Asset, error) {
	return r.next.ListByHashAndSize(ctx, hash, size)
}

func (r *cachedAssetRepository) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	defer r.invalidate(ctx, id)
	return r.next.TouchLastUsed(ctx, id, at)
}

func (r *cachedAssetRepository) invalidate(ctx context.Context, id int64) {
	if err := r.cache.Delete(ctx, r.keys.AssetByID(id)); err != nil {
		r.logger.Warn().Err(err).Int64("asset_id", id).Msg("asset cache invalidation failed")
	}
}
