package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-assets/internal/cache/memory"
	"github.com/prn-tf/alexander-assets/internal/domain"
	"github.com/prn-tf/alexander-assets/internal/imaging"
	"github.com/prn-tf/alexander-assets/internal/lock"
	"github.com/prn-tf/alexander-assets/internal/metrics"
	"github.com/prn-tf/alexander-assets/internal/pathgen"
	"github.com/prn-tf/alexander-assets/internal/repository"
	"github.com/prn-tf/alexander-assets/internal/repository/sqlite"
	"github.com/prn-tf/alexander-assets/internal/storage"
	"github.com/prn-tf/alexander-assets/internal/storage/filesystem"
)

// testEnv wires the services against in-memory SQLite and filesystem disks.
type testEnv struct {
	ctx        context.Context
	assetRepo  repository.AssetRepository
	varRepo    repository.VariationRepository
	disks      map[string]storage.Disk
	assets     *AssetService
	variations *VariationService
	metrics    *metrics.Metrics
}

type envOption func(*envConfig)

type envConfig struct {
	wrapDefault func(storage.Disk) storage.Disk
	dedup       bool
	cached      bool
}

func withDefaultDisk(wrap func(storage.Disk) storage.Disk) envOption {
	return func(c *envConfig) { c.wrapDefault = wrap }
}

func withDeduplication() envOption {
	return func(c *envConfig) { c.dedup = true }
}

// withAssetCache puts an in-memory record cache in front of the asset repository.
func withAssetCache() envOption {
	return func(c *envConfig) { c.cached = true }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	cfg := envConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(sqlite.MemoryPath), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	t.Cleanup(func() { db.Close() })

	local, err := filesystem.New(filesystem.Config{Name: "local", Root: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)
	archive, err := filesystem.New(filesystem.Config{Name: "archive", Root: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)

	var defaultDisk storage.Disk = local
	if cfg.wrapDefault != nil {
		defaultDisk = cfg.wrapDefault(local)
	}

	manager, err := storage.NewManager("local", defaultDisk, archive)
	require.NoError(t, err)

	var counter atomic.Int64
	paths, err := pathgen.New(pathgen.GroupedID, pathgen.WithRandom(func(n int) string {
		return fmt.Sprintf("%0*d", n, counter.Add(1))
	}))
	require.NoError(t, err)

	assetRepo := sqlite.NewAssetRepository(db)
	if cfg.cached {
		mem := memory.NewCache(time.Minute)
		t.Cleanup(mem.Stop)
		assetRepo = repository.NewCachedAssetRepository(assetRepo, mem, time.Hour, zerolog.Nop())
	}

	env := &testEnv{
		ctx:       ctx,
		assetRepo: assetRepo,
		varRepo:   sqlite.NewVariationRepository(db),
		disks:     map[string]storage.Disk{"local": defaultDisk, "archive": archive},
		metrics:   metrics.New(prometheus.NewRegistry()),
	}

	images := imaging.New(imaging.DefaultOptions())
	env.assets = NewAssetService(env.assetRepo, env.varRepo, manager, paths, images, env.metrics, zerolog.Nop(), AssetConfig{
		TempDir:     t.TempDir(),
		Deduplicate: cfg.dedup,
	})
	env.variations = NewVariationService(env.assets, env.varRepo, images, env.metrics, zerolog.Nop(), DefaultVariationConfig())
	return env
}

func (e *testEnv) upload(t *testing.T, name string, data []byte) *domain.Asset {
	t.Helper()
	out, err := e.assets.Upload(e.ctx, UploadInput{Body: bytes.NewReader(data), Filename: name})
	require.NoError(t, err)
	return out.Asset
}

func (e *testEnv) variation(t *testing.T, asset *domain.Asset, req domain.ResizeRequest) *GetOrCreateOutput {
	t.Helper()
	out, err := e.variations.GetOrCreate(e.ctx, GetOrCreateInput{Asset: asset, Request: req})
	require.NoError(t, err)
	return out
}

func (e *testEnv) blobExists(t *testing.T, asset *domain.Asset) bool {
	t.Helper()
	ok, err := e.disks[asset.Disk].Exists(e.ctx, asset.Path)
	require.NoError(t, err)
	return ok
}

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	return encodePNG(t, w, h, c, png.DefaultCompression)
}

func encodePNG(t *testing.T, w, h int, c color.Color, level png.CompressionLevel) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: level}
	require.NoError(t, enc.Encode(&buf, img))
	return buf.Bytes()
}

var red = color.RGBA{R: 255, A: 255}

// failingDisk rejects every write.
type failingDisk struct {
	storage.Disk
	err error
}

func (d failingDisk) Put(context.Context, string, io.Reader, int64, storage.PutOptions) error {
	return d.err
}

func assertNotFound(t *testing.T, env *testEnv, id int64) {
	t.Helper()
	_, err := env.assets.Get(env.ctx, id)
	require.ErrorIs(t, err, domain.ErrAssetNotFound)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func newCleanup(env *testEnv, locker lock.Locker, cfg CleanupConfig) *CleanupService {
	return NewCleanupService(env.varRepo, env.variations, locker, env.metrics, zerolog.Nop(), cfg)
}

var errDiskDown = errors.New("disk down")
