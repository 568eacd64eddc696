package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-assets/internal/domain"
	"github.com/prn-tf/alexander-assets/internal/imaging"
	"github.com/prn-tf/alexander-assets/internal/lock"
)

// cleanupFixture creates a root with three variations: one used 20 days
// ago, one used 2 days ago and one never used.
type cleanupFixture struct {
	root               *domain.Asset
	old, recent, never *domain.Asset
	now                time.Time
}

func newCleanupFixture(t *testing.T, env *testEnv) cleanupFixture {
	t.Helper()
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

	root := env.upload(t, "cat.png", solidPNG(t, 40, 40, red))
	f := cleanupFixture{
		root:   root,
		old:    env.variation(t, root, domain.ResizeRequest{Width: 10, Height: 10}).Asset,
		recent: env.variation(t, root, domain.ResizeRequest{Width: 11, Height: 11}).Asset,
		never:  env.variation(t, root, domain.ResizeRequest{Width: 12, Height: 12}).Asset,
		now:    now,
	}

	require.NoError(t, env.assetRepo.TouchLastUsed(env.ctx, f.old.ID, now.Add(-20*24*time.Hour)))
	require.NoError(t, env.assetRepo.TouchLastUsed(env.ctx, f.recent.ID, now.Add(-2*24*time.Hour)))
	return f
}

func TestCleanupService_RunOnce(t *testing.T) {
	env := newTestEnv(t)
	f := newCleanupFixture(t, env)

	cfg := DefaultCleanupConfig()
	cfg.BatchSize = 1
	c := newCleanup(env, lock.NewMemoryLocker(), cfg)
	c.now = fixedClock(f.now)

	result := c.RunOnce(env.ctx)
	assert.Equal(t, 2, result.Deleted)
	assert.Zero(t, result.Errors)
	assert.False(t, result.Skipped)

	assertNotFound(t, env, f.old.ID)
	assertNotFound(t, env, f.never.ID)
	assert.False(t, env.blobExists(t, f.old))

	_, err := env.assets.Get(env.ctx, f.recent.ID)
	require.NoError(t, err)
	_, err = env.assets.Get(env.ctx, f.root.ID)
	require.NoError(t, err)

	count, err := env.varRepo.CountByOriginal(env.ctx, f.root.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Nothing left to do.
	result = c.RunOnce(env.ctx)
	assert.Zero(t, result.Deleted)
	assert.Zero(t, result.Errors)
}

func TestCleanupService_KeepsUploadedRootReusedByVariation(t *testing.T) {
	env := newTestEnv(t)
	src := solidPNG(t, 40, 20, red)
	req := domain.ResizeRequest{Width: 10, Height: 10}

	root := env.upload(t, "cat.png", src)

	// A user uploads exactly the bytes the 10x10 variation renders to.
	rendered, _, err := imaging.Render(imaging.New(imaging.DefaultOptions()), src, req)
	require.NoError(t, err)
	uploaded := env.upload(t, "thumb.png", rendered)
	require.True(t, uploaded.IsRoot())

	linked := env.variation(t, root, req).Asset
	require.Equal(t, uploaded.ID, linked.ID, "render deduplicated onto the upload")

	c := newCleanup(env, lock.NewMemoryLocker(), DefaultCleanupConfig())
	result := c.RunOnce(env.ctx)
	assert.Equal(t, 1, result.Deleted)
	assert.Zero(t, result.Errors)

	count, err := env.varRepo.CountByOriginal(env.ctx, root.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = env.assets.Get(env.ctx, uploaded.ID)
	require.NoError(t, err)
	assert.True(t, env.blobExists(t, uploaded))
}

func TestCleanupService_DryRun(t *testing.T) {
	env := newTestEnv(t)
	f := newCleanupFixture(t, env)

	cfg := DefaultCleanupConfig()
	cfg.BatchSize = 1
	cfg.DryRun = true
	c := newCleanup(env, lock.NewMemoryLocker(), cfg)
	c.now = fixedClock(f.now)

	result := c.RunOnce(env.ctx)
	assert.Equal(t, 2, result.Deleted)

	count, err := env.varRepo.CountByOriginal(env.ctx, f.root.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestCleanupService_SkipsWhenLocked(t *testing.T) {
	env := newTestEnv(t)
	f := newCleanupFixture(t, env)

	locker := lock.NewMemoryLocker()
	held, err := locker.Acquire(env.ctx, lock.Keys.VariationCleanup(), time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	c := newCleanup(env, locker, DefaultCleanupConfig())
	c.now = fixedClock(f.now)

	result := c.RunOnce(env.ctx)
	assert.True(t, result.Skipped)
	assert.Zero(t, result.Deleted)
}

func TestCleanupService_WaitsForLock(t *testing.T) {
	env := newTestEnv(t)
	f := newCleanupFixture(t, env)

	locker := lock.NewMemoryLocker()
	held, err := locker.Acquire(env.ctx, lock.Keys.VariationCleanup(), 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, held)

	cfg := DefaultCleanupConfig()
	cfg.LockWait = 200 * time.Millisecond
	c := newCleanup(env, locker, cfg)
	c.now = fixedClock(f.now)

	result := c.RunOnce(env.ctx)
	assert.False(t, result.Skipped)
	assert.Equal(t, 2, result.Deleted)

	// Released after the run.
	again, err := locker.Acquire(env.ctx, lock.Keys.VariationCleanup(), time.Minute)
	require.NoError(t, err)
	assert.True(t, again)
}

func TestCleanupService_StartStop(t *testing.T) {
	env := newTestEnv(t)
	cfg := DefaultCleanupConfig()
	cfg.Interval = time.Hour

	c := newCleanup(env, lock.NewNoOpLocker(), cfg)
	c.Start()
	c.Start()
	c.Stop()
	c.Stop()
}

func TestDefaultCleanupConfig(t *testing.T) {
	cfg := DefaultCleanupConfig()
	assert.Equal(t, 15*24*time.Hour, cfg.Retention)
	assert.Equal(t, 100, cfg.BatchSize)
}
