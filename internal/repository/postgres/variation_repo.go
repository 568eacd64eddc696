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

// variationRepository implements repository.VariationRepository for PostgreSQL.
type variationRepository struct {
	db *DB
}

// NewVariationRepository creates a new PostgreSQL variation repository.
func NewVariationRepository(db *DB) repository.VariationRepository {
	return &variationRepository{db: db}
}

const variationColumns = `id, original_asset_id, variation_asset_id, variation_name, created_at, updated_at`

// Create creates a new variation.
func (r *variationRepository) Create(ctx context.Context, v *domain.Variation) error {
	query := `
		INSERT INTO variations (original_asset_id, variation_asset_id, variation_name)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		v.OriginalAssetID,
		v.VariationAssetID,
		v.VariationName,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVariationExists
		}
		if isForeignKeyViolation(err) {
			return domain.ErrAssetNotFound
		}
		return fmt.Errorf("failed to create variation: %w", err)
	}

	return nil
}

// GetByID retrieves a variation by ID.
func (r *variationRepository) GetByID(ctx context.Context, id int64) (*domain.Variation, error) {
	return r.getOne(ctx, `SELECT `+variationColumns+` FROM variations WHERE id = $1`, id)
}

// GetByName retrieves the named variation of an original.
func (r *variationRepository) GetByName(ctx context.Context, originalAssetID int64, name string) (*domain.Variation, error) {
	return r.getOne(ctx,
		`SELECT `+variationColumns+` FROM variations WHERE original_asset_id = $1 AND variation_name = $2`,
		originalAssetID, name,
	)
}

func (r *variationRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Variation, error) {
	v, err := scanVariation(r.db.Pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrVariationNotFound
		}
		return nil, fmt.Errorf("failed to get variation: %w", err)
	}
	return v, nil
}

// ListByOriginal lists all variations of an original asset.
func (r *variationRepository) ListByOriginal(ctx context.Context, originalAssetID int64) ([]*domain.Variation, error) {
	return r.list(ctx,
		`SELECT `+variationColumns+` FROM variations WHERE original_asset_id = $1 ORDER BY id`,
		originalAssetID,
	)
}

// ListByVariationAsset lists the variations pointing at a derived asset.
func (r *variationRepository) ListByVariationAsset(ctx context.Context, assetID int64) ([]*domain.Variation, error) {
	return r.list(ctx,
		`SELECT `+variationColumns+` FROM variations WHERE variation_asset_id = $1 ORDER BY id`,
		assetID,
	)
}

func (r *variationRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Variation, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
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
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM variations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete variation: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrVariationNotFound
	}

	return nil
}

// CountByOriginal counts the variations of an original asset.
func (r *variationRepository) CountByOriginal(ctx context.Context, originalAssetID int64) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM variations WHERE original_asset_id = $1`,
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
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM variations WHERE variation_asset_id = $1`,
		assetID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count variation references: %w", err)
	}
	return count, nil
}

// ListStale lists cleanup candidates, never-used first.
func (r *variationRepository) ListStale(ctx context.Context, cutoff time.Time, offset, limit int) ([]*domain.StaleVariation, error) {
	query := `
		SELECT v.id, v.original_asset_id, v.variation_asset_id, v.variation_name,
			v.created_at, v.updated_at, a.last_used_at
		FROM variations v
		LEFT JOIN assets a ON a.id = v.variation_asset_id
		WHERE a.last_used_at IS NULL OR a.last_used_at < $1
		ORDER BY a.last_used_at ASC NULLS FIRST, a.id ASC, v.id ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool.Query(ctx, query, cutoff, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale variations: %w", err)
	}
	defer rows.Close()

	var stale []*domain.StaleVariation
	for rows.Next() {
		sv := &domain.StaleVariation{}
		err := rows.Scan(
			&sv.ID,
			&sv.OriginalAssetID,
			&sv.VariationAssetID,
			&sv.VariationName,
			&sv.CreatedAt,
			&sv.UpdatedAt,
			&sv.AssetLastUsedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stale variation: %w", err)
		}
		stale = append(stale, sv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stale variations: %w", err)
	}

	return stale, nil
}

func scanVariation(row pgx.Row) (*domain.Variation, error) {
	v := &domain.Variation{}
	err := row.Scan(
		&v.ID,
		&v.OriginalAssetID,
		&v.VariationAssetID,
		&v.VariationName,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return v, nil
}
