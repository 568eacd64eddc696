package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/alexander-assets/internal/domain"
	"github.com/prn-tf/alexander-assets/internal/repository"
)

// variationRepository implements repository.VariationRepository for SQLite.
type variationRepository struct {
	db *DB
}

// NewVariationRepository creates a new SQLite variation repository.
func NewVariationRepository(db *DB) repository.VariationRepository {
	return &variationRepository{db: db}
}

const variationColumns = `id, original_asset_id, variation_asset_id, variation_name, created_at, updated_at`

// Create creates a new variation.
func (r *variationRepository) Create(ctx context.Context, v *domain.Variation) error {
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	query := `
		INSERT INTO variations (original_asset_id, variation_asset_id, variation_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		v.OriginalAssetID,
		v.VariationAssetID,
		v.VariationName,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVariationExists
		}
		if isForeignKeyViolation(err) {
			return domain.ErrAssetNotFound
		}
		return fmt.Errorf("failed to create variation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get variation ID: %w", err)
	}
	v.ID = id

	return nil
}

// GetByID retrieves a variation by ID.
func (r *variationRepository) GetByID(ctx context.Context, id int64) (*domain.Variation, error) {
	query := `SELECT ` + variationColumns + ` FROM variations WHERE id = ?`
	return r.getOne(ctx, query, id)
}

// GetByName retrieves the named variation of an original.
func (r *variationRepository) GetByName(ctx context.Context, originalAssetID int64, name string) (*domain.Variation, error) {
	query := `SELECT ` + variationColumns + ` FROM variations WHERE original_asset_id = ? AND variation_name = ?`
	return r.getOne(ctx, query, originalAssetID, name)
}

func (r *variationRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Variation, error) {
	v, err := scanVariation(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrVariationNotFound
		}
		return nil, fmt.Errorf("failed to get variation: %w", err)
	}
	return v, nil
}

// ListByOriginal lists all variations of an original asset.
func (r *variationRepository) ListByOriginal(ctx context.Context, originalAssetID int64) ([]*domain.Variation, error) {
	query := `SELECT ` + variationColumns + ` FROM variations WHERE original_asset_id = ? ORDER BY id`
	return r.list(ctx, query, originalAssetID)
}

// ListByVariationAsset lists the variations pointing at a derived asset.
func (r *variationRepository) ListByVariationAsset(ctx context.Context, assetID int64) ([]*domain.Variation, error) {
	query := `SELECT ` + variationColumns + ` FROM variations WHERE variation_asset_id = ? ORDER BY id`
	return r.list(ctx, query, assetID)
}

func (r *variationRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Variation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list variations: %w", err)
	}
	defer rows.Close()

	var variations []*domain.Variation
	for rows.Next() {
		v, err := scanVariation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan variation: %w", err)
		}
		variations = append(variations, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating variations: %w", err)
	}

	return variations, nil
}

// Delete deletes a variation record.
func (r *variationRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM variations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete variation: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrVariationNotFound
	}

	return nil
}

// CountByOriginal counts the variations of an original asset.
func (r *variationRepository) CountByOriginal(ctx context.Context, originalAssetID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM variations WHERE original_asset_id = ?`,
		originalAssetID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count variations: %w", err)
	}
	return count, nil
}

// CountByVariationAsset counts variations pointing at a derived asset.
func (r *variationRepository) CountByVariationAsset(ctx context.Context, assetID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM variations WHERE variation_asset_id = ?`,
		assetID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count variation references: %w", err)
	}
	return count, nil
}

// ListStale lists cleanup candidates. SQLite sorts NULL before any value
// in ascending order, so never-used variations come first.
func (r *variationRepository) ListStale(ctx context.Context, cutoff time.Time, offset, limit int) ([]*domain.StaleVariation, error) {
	query := `
		SELECT v.id, v.original_asset_id, v.variation_asset_id, v.variation_name,
			v.created_at, v.updated_at, a.last_used_at
		FROM variations v
		LEFT JOIN assets a ON a.id = v.variation_asset_id
		WHERE a.last_used_at IS NULL OR a.last_used_at < ?
		ORDER BY a.last_used_at ASC, a.id ASC, v.id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, formatTime(cutoff), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale variations: %w", err)
	}
	defer rows.Close()

	var stale []*domain.StaleVariation
	for rows.Next() {
		sv := &domain.StaleVariation{}
		var createdAt, updatedAt string
		var lastUsedAt sql.NullString

		err := rows.Scan(
			&sv.ID,
			&sv.OriginalAssetID,
			&sv.VariationAssetID,
			&sv.VariationName,
			&createdAt,
			&updatedAt,
			&lastUsedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stale variation: %w", err)
		}

		sv.CreatedAt = parseTime(createdAt)
		sv.UpdatedAt = parseTime(updatedAt)
		sv.AssetLastUsedAt = parseNullTime(lastUsedAt)
		stale = append(stale, sv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stale variations: %w", err)
	}

	return stale, nil
}

func scanVariation(row rowScanner) (*domain.Variation, error) {
	v := &domain.Variation{}
	var createdAt, updatedAt string

	err := row.Scan(
		&v.ID,
		&v.OriginalAssetID,
		&v.VariationAssetID,
		&v.VariationName,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	return v, nil
}
