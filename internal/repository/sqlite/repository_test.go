package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-assets/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(context.Background(), DefaultConfig(MemoryPath), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { db.Close() })
	return db
}

func createAsset(t *testing.T, db *DB, mutate func(a *domain.Asset)) *domain.Asset {
	t.Helper()
	a := &domain.Asset{
		Name:     "cat.png",
		Mimetype: "image/png",
		Type:     domain.TypeImage,
		Size:     10,
		Disk:     "local",
		Path:     "cat.png",
		Hash:     "5eb63bbbe01eeed093cb22bb8f5acdc3",
	}
	if mutate != nil {
		mutate(a)
	}
	require.NoError(t, NewAssetRepository(db).Create(context.Background(), a))
	return a
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))

	version, err := db.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestAssetRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewAssetRepository(db)

	a := createAsset(t, db, func(a *domain.Asset) { a.SetDimensions(300, 200) })
	require.NotZero(t, a.ID)

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "cat.png", got.Name)
	assert.Equal(t, 300, *got.Width)
	assert.Nil(t, got.LastUsedAt)
	assert.True(t, got.IsRoot())

	got.Path = "moved/cat.png"
	got.Disk = "archive"
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "moved/cat.png", got.Path)
	assert.Equal(t, "archive", got.Disk)

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.TouchLastUsed(ctx, a.ID, at))
	got, err = repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
	assert.True(t, at.Equal(*got.LastUsedAt))

	require.NoError(t, repo.Delete(ctx, a.ID))
	_, err = repo.GetByID(ctx, a.ID)
	require.ErrorIs(t, err, domain.ErrAssetNotFound)
	require.ErrorIs(t, repo.Delete(ctx, a.ID), domain.ErrAssetNotFound)
}

func TestAssetRepository_ListByHashAndSize(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	first := createAsset(t, db, nil)
	second := createAsset(t, db, nil)
	createAsset(t, db, func(a *domain.Asset) { a.Size = 11 })
	createAsset(t, db, func(a *domain.Asset) { a.Hash = "other" })

	got, err := NewAssetRepository(db).ListByHashAndSize(ctx, first.Hash, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)
}

func TestVariationRepository_UniqueName(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewVariationRepository(db)

	root := createAsset(t, db, nil)
	derived := createAsset(t, db, func(a *domain.Asset) { a.RootAssetID = &root.ID })

	v := &domain.Variation{OriginalAssetID: root.ID, VariationAssetID: derived.ID, VariationName: "resized:10:10"}
	require.NoError(t, repo.Create(ctx, v))
	require.NotZero(t, v.ID)

	dup := &domain.Variation{OriginalAssetID: root.ID, VariationAssetID: derived.ID, VariationName: "resized:10:10"}
	require.ErrorIs(t, repo.Create(ctx, dup), domain.ErrVariationExists)

	got, err := repo.GetByName(ctx, root.ID, "resized:10:10")
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)

	_, err = repo.GetByName(ctx, root.ID, "resized:20:20")
	require.ErrorIs(t, err, domain.ErrVariationNotFound)

	count, err := repo.CountByOriginal(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	refs, err := repo.CountByVariationAsset(ctx, derived.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), refs)

	byAsset, err := repo.ListByVariationAsset(ctx, derived.ID)
	require.NoError(t, err)
	require.Len(t, byAsset, 1)
	assert.Equal(t, v.ID, byAsset[0].ID)

	require.NoError(t, repo.Delete(ctx, v.ID))
	require.ErrorIs(t, repo.Delete(ctx, v.ID), domain.ErrVariationNotFound)
}

func TestVariationRepository_ListStale(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewVariationRepository(db)
	assets := NewAssetRepository(db)

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	cutoff := now.Add(-15 * 24 * time.Hour)

	root := createAsset(t, db, nil)
	link := func(name string, lastUsed *time.Time) *domain.Variation {
		derived := createAsset(t, db, func(a *domain.Asset) { a.RootAssetID = &root.ID })
		if lastUsed != nil {
			require.NoError(t, assets.TouchLastUsed(ctx, derived.ID, *lastUsed))
		}
		v := &domain.Variation{OriginalAssetID: root.ID, VariationAssetID: derived.ID, VariationName: name}
		require.NoError(t, repo.Create(ctx, v))
		return v
	}
	ago := func(days int) *time.Time {
		ts := now.Add(-time.Duration(days) * 24 * time.Hour)
		return &ts
	}

	old := link("old", ago(20))
	never := link("never", nil)
	link("fresh", ago(10))
	older := link("older", ago(30))

	stale, err := repo.ListStale(ctx, cutoff, 0, 100)
	require.NoError(t, err)
	require.Len(t, stale, 3)
	assert.Equal(t, never.ID, stale[0].ID)
	assert.Nil(t, stale[0].AssetLastUsedAt)
	assert.Equal(t, older.ID, stale[1].ID)
	assert.Equal(t, old.ID, stale[2].ID)

	page, err := repo.ListStale(ctx, cutoff, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, older.ID, page[0].ID)
}

func TestDeleteAssetCascadesVariations(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewVariationRepository(db)

	root := createAsset(t, db, nil)
	derived := createAsset(t, db, func(a *domain.Asset) { a.RootAssetID = &root.ID })
	require.NoError(t, repo.Create(ctx, &domain.Variation{
		OriginalAssetID: root.ID, VariationAssetID: derived.ID, VariationName: "x",
	}))

	require.NoError(t, NewAssetRepository(db).Delete(ctx, derived.ID))

	count, err := repo.CountByOriginal(ctx, root.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}
