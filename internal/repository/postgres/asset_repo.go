package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/alexander-assets/internal/domain"
	"github.com/prn-tf/alexander-assets/internal/repository"
)

// assetRepository implements repository.AssetRepository for PostgreSQL.
type assetRepository struct {
	db *DB
}

// NewAssetRepository creates a new PostgreSQL asset repository.
func NewAssetRepository(db *DB) repository.AssetRepository {
	return &assetRepository{db: db}
}

const assetColumns = `id, root_asset_id, user_id, name, mimetype, type, size, disk, path, hash,
	width, height, framerate, duration, last_used_at, created_at, updated_at`

// Create creates a new asset.
func (r *assetRepository) Create(ctx context.Context, asset *domain.Asset) error {
	query := `
		INSERT INTO assets (root_asset_id, user_id, name, mimetype, type, size, disk, path, hash,
			width, height, framerate, duration, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		asset.RootAssetID,
		asset.UserID,
		asset.Name,
		asset.Mimetype,
		asset.Type,
		asset.Size,
		asset.Disk,
		asset.Path,
		asset.Hash,
		asset.Width,
		asset.Height,
		asset.Framerate,
		asset.Duration,
		asset.LastUsedAt,
	).Scan(&asset.ID, &asset.CreatedAt, &asset.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NewDomainError(domain.ErrAssetNotFound, "root asset does not exist", "")
		}
		return fmt.Errorf("failed to create asset: %w", err)
	}

	return nil
}

// GetByID retrieves an asset by ID.
func (r *assetRepository) GetByID(ctx context.Context, id int64) (*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`

	asset, err := scanAsset(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAssetNotFound
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return asset, nil
}

// Update persists all mutable fields of an asset.
func (r *assetRepository) Update(ctx context.Context, asset *domain.Asset) error {
	query := `
		UPDATE assets
		SET root_asset_id = $2, user_id = $3, name = $4, mimetype = $5, type = $6, size = $7,
			disk = $8, path = $9, hash = $10, width = $11, height = $12, framerate = $13,
			duration = $14, last_used_at = $15, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		asset.ID,
		asset.RootAssetID,
		asset.UserID,
		asset.Name,
		asset.Mimetype,
		asset.Type,
		asset.Size,
		asset.Disk,
		asset.Path,
		asset.Hash,
		asset.Width,
		asset.Height,
		asset.Framerate,
		asset.Duration,
		asset.LastUsedAt,
	).Scan(&asset.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrAssetNotFound
		}
		return fmt.Errorf("failed to update asset: %w", err)
	}

	return nil
}

// Delete deletes an asset record.
func (r *assetRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM assets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrAssetNotFound
	}

	return nil
}

// ListByHashAndSize returns dedup candidates for content.
func (r *assetRepository) ListByHashAndSize(ctx context.Context, hash string, size int64) ([]*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE hash = $1 AND size = $2 ORDER BY id`

	rows, err := r.db.Pool.Query(ctx, query, hash, size)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets by hash: %w", err)
	}
	defer rows.Close()

	var assets []*domain.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, asset)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}

	return assets, nil
}

// TouchLastUsed sets last_used_at.
func (r *assetRepository) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	result, err := r.db.Pool.Exec(ctx, `UPDATE assets SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last used: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrAssetNotFound
	}

	return nil
}

func scanAsset(row pgx.Row) (*domain.Asset, error) {
	asset := &domain.Asset{}
	err := row.Scan(
		&asset.ID,
		&asset.RootAssetID,
		&asset.UserID,
		&asset.Name,
		&asset.Mimetype,
		&asset.Type,
		&asset.Size,
		&asset.Disk,
		&asset.Path,
		&asset.Hash,
		&asset.Width,
		&asset.Height,
		&asset.Framerate,
		&asset.Duration,
		&asset.LastUsedAt,
		&asset.CreatedAt,
		&asset.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return asset, nil
}
