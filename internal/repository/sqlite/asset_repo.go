package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/alexander-assets/internal/domain"
	"github.com/prn-tf/alexander-assets/internal/repository"
)

// assetRepository implements repository.AssetRepository for SQLite.
type assetRepository struct {
	db *DB
}

// NewAssetRepository creates a new SQLite asset repository.
func NewAssetRepository(db *DB) repository.AssetRepository {
	return &assetRepository{db: db}
}

const assetColumns = `id, root_asset_id, user_id, name, mimetype, type, size, disk, path, hash,
	width, height, framerate, duration, last_used_at, created_at, updated_at`

// Create creates a new asset.
func (r *assetRepository) Create(ctx context.Context, asset *domain.Asset) error {
	now := time.Now().UTC()
	asset.CreatedAt = now
	asset.UpdatedAt = now

	query := `
		INSERT INTO assets (root_asset_id, user_id, name, mimetype, type, size, disk, path, hash,
			width, height, framerate, duration, last_used_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		nullInt64(asset.RootAssetID),
		nullInt64(asset.UserID),
		asset.Name,
		asset.Mimetype,
		asset.Type,
		asset.Size,
		asset.Disk,
		asset.Path,
		asset.Hash,
		nullInt(asset.Width),
		nullInt(asset.Height),
		nullFloat(asset.Framerate),
		nullFloat(asset.Duration),
		formatNullTime(asset.LastUsedAt),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NewDomainError(domain.ErrAssetNotFound, "root asset does not exist", "")
		}
		return fmt.Errorf("failed to create asset: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get asset ID: %w", err)
	}
	asset.ID = id

	return nil
}

// GetByID retrieves an asset by ID.
func (r *assetRepository) GetByID(ctx context.Context, id int64) (*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = ?`

	asset, err := scanAsset(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrAssetNotFound
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return asset, nil
}

// Update persists all mutable fields of an asset.
func (r *assetRepository) Update(ctx context.Context, asset *domain.Asset) error {
	asset.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE assets
		SET root_asset_id = ?, user_id = ?, name = ?, mimetype = ?, type = ?, size = ?,
			disk = ?, path = ?, hash = ?, width = ?, height = ?, framerate = ?, duration = ?,
			last_used_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		nullInt64(asset.RootAssetID),
		nullInt64(asset.UserID),
		asset.Name,
		asset.Mimetype,
		asset.Type,
		asset.Size,
		asset.Disk,
		asset.Path,
		asset.Hash,
		nullInt(asset.Width),
		nullInt(asset.Height),
		nullFloat(asset.Framerate),
		nullFloat(asset.Duration),
		formatNullTime(asset.LastUsedAt),
		formatTime(asset.UpdatedAt),
		asset.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update asset: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrAssetNotFound
	}

	return nil
}

// Delete deletes an asset record.
func (r *assetRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrAssetNotFound
	}

	return nil
}

// ListByHashAndSize returns dedup candidates for content.
func (r *assetRepository) ListByHashAndSize(ctx context.Context, hash string, size int64) ([]*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE hash = ? AND size = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, hash, size)
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
	result, err := r.db.ExecContext(ctx,
		`UPDATE assets SET last_used_at = ? WHERE id = ?`,
		formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update last used: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrAssetNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*domain.Asset, error) {
	asset := &domain.Asset{}
	var (
		rootAssetID, userID, width, height sql.NullInt64
		framerate, duration                sql.NullFloat64
		lastUsedAt                         sql.NullString
		createdAt, updatedAt               string
	)

	err := row.Scan(
		&asset.ID,
		&rootAssetID,
		&userID,
		&asset.Name,
		&asset.Mimetype,
		&asset.Type,
		&asset.Size,
		&asset.Disk,
		&asset.Path,
		&asset.Hash,
		&width,
		&height,
		&framerate,
		&duration,
		&lastUsedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	asset.RootAssetID = int64Ptr(rootAssetID)
	asset.UserID = int64Ptr(userID)
	asset.Width = intPtr(width)
	asset.Height = intPtr(height)
	asset.Framerate = floatPtr(framerate)
	asset.Duration = floatPtr(duration)
	asset.LastUsedAt = parseNullTime(lastUsedAt)
	asset.CreatedAt = parseTime(createdAt)
	asset.UpdatedAt = parseTime(updatedAt)

	return asset, nil
}
