package service

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-assets/internal/domain"
	"github.com/prn-tf/alexander-assets/internal/metrics"
)

func TestVariationService_CreateThenHit(t *testing.T) {
	env := newTestEnv(t)
	root := env.upload(t, "cat.png", solidPNG(t, 40, 20, red))
	req := domain.ResizeRequest{Width: 10, Height: 10}

	first := env.variation(t, root, req)
	assert.Equal(t, metrics.ResultCreated, first.Result)
	assert.Equal(t, "resized:10:10", first.Name)
	assert.NotEqual(t, root.ID, first.Asset.ID)
	require.NotNil(t, first.Asset.RootAssetID)
	assert.Equal(t, root.ID, *first.Asset.RootAssetID)
	assert.Equal(t, "cat.png", first.Asset.Name)

	width, height, ok := first.Asset.Dimensions()
	require.True(t, ok)
	assert.Equal(t, 10, width)
	assert.Equal(t, 10, height)

	second := env.variation(t, root, req)
	assert.Equal(t, metrics.ResultHit, second.Result)
	assert.Equal(t, first.Asset.ID, second.Asset.ID)

	count, err := env.varRepo.CountByOriginal(env.ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestVariationService_Passthrough(t *testing.T) {
	env := newTestEnv(t)
	picture := env.upload(t, "cat.png", solidPNG(t, 4, 4, red))
	text := env.upload(t, "a.txt", []byte("text"))
	svg := env.upload(t, "logo.svg", []byte("<svg></svg>"))

	tests := []struct {
		name  string
		asset *domain.Asset
		req   domain.ResizeRequest
	}{
		{"no size", picture, domain.ResizeRequest{}},
		{"width only", picture, domain.ResizeRequest{Width: 10}},
		{"not an image", text, domain.ResizeRequest{Width: 10, Height: 10}},
		{"svg", svg, domain.ResizeRequest{Width: 10, Height: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := env.variation(t, tt.asset, tt.req)
			assert.Equal(t, metrics.ResultPassthrough, out.Result)
			assert.Equal(t, tt.asset.ID, out.Asset.ID)
		})
	}
}

func TestVariationService_CircleProducesPNG(t *testing.T) {
	env := newTestEnv(t)
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{B: 255, A: 255}}, image.Point{}, draw.Src)
	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, img, nil))
	root := env.upload(t, "avatar.jpeg", jpg.Bytes())
	require.Equal(t, "image/jpeg", root.Mimetype)

	out := env.variation(t, root, domain.ResizeRequest{
		Width: 12, Height: 12, Shape: domain.ShapeCircle,
	})

	assert.Equal(t, "resized:12:12:circle", out.Name)
	assert.Equal(t, "image/png", out.Asset.Mimetype)
	assert.Equal(t, "avatar.png", out.Asset.Name)
}

func TestVariationService_LongNameIsHashed(t *testing.T) {
	env := newTestEnv(t)
	root := env.upload(t, "cat.png", solidPNG(t, 20, 20, red))

	out := env.variation(t, root, domain.ResizeRequest{
		Width: 10, Height: 10, Shape: domain.ShapeCircle, BorderWidth: 3, BorderColor: "#00ff00",
	})
	assert.Len(t, out.Name, domain.MaxVariationNameLength)

	stored, err := env.varRepo.GetByName(env.ctx, root.ID, out.Name)
	require.NoError(t, err)
	assert.Equal(t, out.Asset.ID, stored.VariationAssetID)
}

func TestVariationService_VariationOfVariationUsesRoot(t *testing.T) {
	env := newTestEnv(t)
	root := env.upload(t, "cat.png", solidPNG(t, 40, 40, red))

	derived := env.variation(t, root, domain.ResizeRequest{Width: 20, Height: 20}).Asset
	nested := env.variation(t, derived, domain.ResizeRequest{Width: 5, Height: 5})

	v, err := env.varRepo.GetByName(env.ctx, root.ID, "resized:5:5")
	require.NoError(t, err)
	assert.Equal(t, nested.Asset.ID, v.VariationAssetID)

	count, err := env.varRepo.CountByOriginal(env.ctx, derived.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestVariationService_Refresh(t *testing.T) {
	env := newTestEnv(t)
	root := env.upload(t, "cat.png", solidPNG(t, 40, 20, red))
	req := domain.ResizeRequest{Width: 10, Height: 10}

	old := env.variation(t, root, req).Asset

	req.Refresh = true
	fresh := env.variation(t, root, req)
	assert.Equal(t, metrics.ResultCreated, fresh.Result)
	assert.NotEqual(t, old.ID, fresh.Asset.ID)

	assertNotFound(t, env, old.ID)
	assert.False(t, env.blobExists(t, old))
}

func TestVariationService_SharedDerivedAsset(t *testing.T) {
	env := newTestEnv(t)
	// Same pixels, different encodings.
	rootA := env.upload(t, "a.png", solidPNG(t, 20, 20, red))
	rootB := env.upload(t, "b.png", encodePNG(t, 20, 20, red, png.NoCompression))
	require.NotEqual(t, rootA.Hash, rootB.Hash)
	req := domain.ResizeRequest{Width: 10, Height: 10}

	a := env.variation(t, rootA, req).Asset
	b := env.variation(t, rootB, req).Asset
	require.Equal(t, a.ID, b.ID, "identical renders share one derived asset")

	refs, err := env.varRepo.CountByVariationAsset(env.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), refs)

	va, err := env.varRepo.GetByName(env.ctx, rootA.ID, "resized:10:10")
	require.NoError(t, err)
	require.NoError(t, env.variations.DeleteVariation(env.ctx, va))

	_, err = env.assets.Get(env.ctx, a.ID)
	require.NoError(t, err, "still referenced by the second variation")

	vb, err := env.varRepo.GetByName(env.ctx, rootB.ID, "resized:10:10")
	require.NoError(t, err)
	require.NoError(t, env.variations.DeleteVariation(env.ctx, vb))

	assertNotFound(t, env, a.ID)
	assert.False(t, env.blobExists(t, a))
}

func TestVariationService_DeleteRootReparentsSharedAsset(t *testing.T) {
	env := newTestEnv(t, withAssetCache())
	rootA := env.upload(t, "a.png", solidPNG(t, 20, 20, red))
	rootB := env.upload(t, "b.png", encodePNG(t, 20, 20, red, png.NoCompression))
	req := domain.ResizeRequest{Width: 10, Height: 10}

	shared := env.variation(t, rootA, req).Asset
	require.Equal(t, shared.ID, env.variation(t, rootB, req).Asset.ID)

	// Warm the record cache with the original parent.
	cached, err := env.assets.Get(env.ctx, shared.ID)
	require.NoError(t, err)
	require.Equal(t, rootA.ID, *cached.RootAssetID)

	require.NoError(t, env.assets.Delete(env.ctx, rootA, DeleteOptions{}))

	got, err := env.assets.Get(env.ctx, shared.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RootAssetID)
	assert.Equal(t, rootB.ID, *got.RootAssetID)

	root, err := env.assets.RootOf(env.ctx, got)
	require.NoError(t, err)
	assert.Equal(t, rootB.ID, root.ID)

	// Resizing the shared asset still resolves through its new root.
	nested := env.variation(t, got, domain.ResizeRequest{Width: 5, Height: 5})
	assert.Equal(t, metrics.ResultCreated, nested.Result)

	// The last reference removes it.
	vb, err := env.varRepo.GetByName(env.ctx, rootB.ID, "resized:10:10")
	require.NoError(t, err)
	require.NoError(t, env.variations.DeleteVariation(env.ctx, vb))
	assertNotFound(t, env, shared.ID)
}

func TestVariationService_DimensionLimit(t *testing.T) {
	env := newTestEnv(t)
	root := env.upload(t, "cat.png", solidPNG(t, 40, 20, red))

	tests := []struct {
		name   string
		width  int
		height int
	}{
		{name: "huge", width: 1 << 30, height: 1 << 30},
		{name: "width over", width: 4097, height: 10},
		{name: "height over", width: 10, height: 40000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.variations.GetOrCreate(env.ctx, GetOrCreateInput{
				Asset:   root,
				Request: domain.ResizeRequest{Width: tt.width, Height: tt.height},
			})
			require.ErrorIs(t, err, domain.ErrDimensionTooLarge)
		})
	}

	count, err := env.varRepo.CountByOriginal(env.ctx, root.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	// The limit itself is allowed.
	out := env.variation(t, root, domain.ResizeRequest{Width: 4096, Height: 1})
	assert.Equal(t, metrics.ResultCreated, out.Result)
}

func TestVariationService_LinkRaceReturnsWinner(t *testing.T) {
	env := newTestEnv(t)
	root := env.upload(t, "cat.png", solidPNG(t, 40, 20, red))
	winner := env.variation(t, root, domain.ResizeRequest{Width: 10, Height: 10}).Asset

	rootID := root.ID
	loser, err := env.assets.Upload(env.ctx, UploadInput{
		Body:        bytes.NewReader([]byte("late render")),
		Filename:    "cat.png",
		RootAssetID: &rootID,
	})
	require.NoError(t, err)

	got, err := env.variations.LinkVariation(env.ctx, root, "resized:10:10", loser.Asset)
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)
}

func TestVariationService_TransformFailure(t *testing.T) {
	env := newTestEnv(t)

	// An image record whose blob is not decodable.
	broken := env.upload(t, "broken.txt", []byte("definitely not pixels"))
	broken.Type = domain.TypeImage
	broken.Mimetype = "image/png"
	require.NoError(t, env.assetRepo.Update(env.ctx, broken))

	_, err := env.variations.GetOrCreate(env.ctx, GetOrCreateInput{
		Asset:   broken,
		Request: domain.ResizeRequest{Width: 10, Height: 10},
	})
	require.ErrorIs(t, err, domain.ErrTransformFailed)

	count, err := env.varRepo.CountByOriginal(env.ctx, broken.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAssetService_DeleteRootCascadesVariations(t *testing.T) {
	env := newTestEnv(t)
	root := env.upload(t, "cat.png", solidPNG(t, 40, 20, red))
	small := env.variation(t, root, domain.ResizeRequest{Width: 10, Height: 10}).Asset
	large := env.variation(t, root, domain.ResizeRequest{Width: 20, Height: 20}).Asset

	require.NoError(t, env.assets.Delete(env.ctx, root, DeleteOptions{}))

	for _, a := range []*domain.Asset{root, small, large} {
		assertNotFound(t, env, a.ID)
		assert.False(t, env.blobExists(t, a))
	}
}
