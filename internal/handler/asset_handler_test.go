package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-assets/internal/domain"
	"github.com/prn-tf/alexander-assets/internal/imaging"
	"github.com/prn-tf/alexander-assets/internal/metrics"
	"github.com/prn-tf/alexander-assets/internal/pathgen"
	"github.com/prn-tf/alexander-assets/internal/repository/sqlite"
	"github.com/prn-tf/alexander-assets/internal/service"
	"github.com/prn-tf/alexander-assets/internal/storage"
	"github.com/prn-tf/alexander-assets/internal/storage/filesystem"
)

type testServer struct {
	handler http.Handler
	assets  *service.AssetService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(sqlite.MemoryPath), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	t.Cleanup(func() { db.Close() })

	disk, err := filesystem.New(filesystem.Config{Name: "local", Root: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)
	manager, err := storage.NewManager("local", disk)
	require.NoError(t, err)

	paths, err := pathgen.New(pathgen.GroupedID)
	require.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	images := imaging.New(imaging.DefaultOptions())
	varRepo := sqlite.NewVariationRepository(db)

	assets := service.NewAssetService(sqlite.NewAssetRepository(db), varRepo, manager, paths, images, m, zerolog.Nop(), service.AssetConfig{
		TempDir: t.TempDir(),
	})
	variations := service.NewVariationService(assets, varRepo, images, m, zerolog.Nop(), service.DefaultVariationConfig())

	router := NewRouter(RouterConfig{
		AssetHandler: NewAssetHandler(assets, variations, zerolog.Nop(), AssetHandlerConfig{BufferSize: 64}),
		Health:       db,
		Metrics:      m,
		MetricsPath:  "/metrics",
		Logger:       zerolog.Nop(),
	})

	return &testServer{handler: router.Handler(), assets: assets}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) get(path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	return s.do(req)
}

func (s *testServer) store(t *testing.T, name string, data []byte) *domain.Asset {
	t.Helper()
	out, err := s.assets.Upload(context.Background(), service.UploadInput{
		Body:     bytes.NewReader(data),
		Filename: name,
	})
	require.NoError(t, err)
	return out.Asset
}

func assetURL(asset *domain.Asset) string {
	return "/assets/" + strconv.FormatInt(asset.ID, 10)
}

func textBlob() []byte {
	return bytes.Repeat([]byte("0123456789"), 100)
}

func pngBlob(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{B: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// =============================================================================
// Streaming
// =============================================================================

func TestView_Stream(t *testing.T) {
	srv := newTestServer(t)
	data := textBlob()
	asset := srv.store(t, "notes.txt", data)

	rec := srv.get(assetURL(asset))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, data, rec.Body.Bytes())
	assert.Equal(t, "1000", rec.Header().Get("Content-Length"))
	assert.Equal(t, "0-1000", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.HasSuffix(rec.Header().Get("Cache-Control"), ", public"))
	assert.NotEmpty(t, rec.Header().Get("Expires"))
	assert.Empty(t, rec.Header().Get("Content-Range"))
}

func TestView_Range(t *testing.T) {
	srv := newTestServer(t)
	data := textBlob()
	asset := srv.store(t, "notes.txt", data)

	tests := []struct {
		header       string
		contentRange string
		body         []byte
	}{
		{"bytes=0-99", "bytes 0-99/1000", data[:100]},
		{"bytes=900-", "bytes 900-999/1000", data[900:]},
		{"bytes=-10", "bytes 990-999/1000", data[990:]},
		{"bytes=995-5000", "bytes 995-999/1000", data[995:]},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			rec := srv.get(assetURL(asset), "Range", tt.header)

			require.Equal(t, http.StatusPartialContent, rec.Code)
			assert.Equal(t, tt.contentRange, rec.Header().Get("Content-Range"))
			assert.Equal(t, strconv.Itoa(len(tt.body)), rec.Header().Get("Content-Length"))
			assert.Equal(t, tt.body, rec.Body.Bytes())
		})
	}
}

func TestView_RangeNotSatisfiable(t *testing.T) {
	srv := newTestServer(t)
	asset := srv.store(t, "notes.txt", textBlob())

	for _, header := range []string{"bytes=0-0,2-2", "bytes=2000-3000", "lines=1-2"} {
		t.Run(header, func(t *testing.T) {
			rec := srv.get(assetURL(asset), "Range", header)

			require.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
			assert.Equal(t, "bytes 0-999/1000", rec.Header().Get("Content-Range"))
			assert.Equal(t, rangeNotSatisfiableBody, rec.Body.String())
		})
	}
}

func TestView_Head(t *testing.T) {
	srv := newTestServer(t)
	text := srv.store(t, "notes.txt", textBlob())
	photo := srv.store(t, "photo.png", pngBlob(t, 40, 20))

	tests := []struct {
		name string
		path string
	}{
		{name: "stream", path: assetURL(text)},
		{name: "variation", path: assetURL(photo) + "?width=10&height=8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(httptest.NewRequest(http.MethodHead, tt.path, nil))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("Content-Length"))
			assert.NotEqual(t, "0", rec.Header().Get("Content-Length"))
			assert.Zero(t, rec.Body.Len())
		})
	}
}

func TestView_NotFound(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/assets/999", "/assets/abc", "/assets/-1"} {
		rec := srv.get(path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestView_TouchesLastUsed(t *testing.T) {
	srv := newTestServer(t)
	asset := srv.store(t, "notes.txt", textBlob())
	require.Nil(t, asset.LastUsedAt)

	rec := srv.get(assetURL(asset))
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := srv.assets.Get(context.Background(), asset.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastUsedAt)
}

// =============================================================================
// Images
// =============================================================================

func TestView_ImageVariation(t *testing.T) {
	srv := newTestServer(t)
	asset := srv.store(t, "photo.png", pngBlob(t, 40, 20))

	rec := srv.get(assetURL(asset) + "?width=10&height=8")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, strconv.Itoa(rec.Body.Len()), rec.Header().Get("Content-Length"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	cfg, err := png.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Width)
	assert.Equal(t, 8, cfg.Height)
}

func TestView_ImageDimensionLimit(t *testing.T) {
	srv := newTestServer(t)
	asset := srv.store(t, "photo.png", pngBlob(t, 40, 20))

	rec := srv.get(assetURL(asset) + "?width=40000&height=40000")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, domain.ErrDimensionTooLarge.Error())
}

func TestView_ImageWithoutResize(t *testing.T) {
	srv := newTestServer(t)
	data := pngBlob(t, 12, 12)
	asset := srv.store(t, "photo.png", data)

	rec := srv.get(assetURL(asset))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, data, rec.Body.Bytes())
}

func TestView_SVGStreams(t *testing.T) {
	srv := newTestServer(t)
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"></svg>`)
	asset := srv.store(t, "logo.svg", svg)

	rec := srv.get(assetURL(asset)+"?width=5", "Range", "bytes=0-3")

	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, svg[:4], rec.Body.Bytes())
	assert.Equal(t, domain.MimeSVG, rec.Header().Get("Content-Type"))
}

// =============================================================================
// Upload, meta and delete
// =============================================================================

func uploadRequest(t *testing.T, field, name string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/assets/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadMetaDelete(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(uploadRequest(t, formFile, "photo.png", pngBlob(t, 30, 15)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID       int64          `json:"id"`
		Name     string         `json:"name"`
		Mimetype string         `json:"mimetype"`
		Metadata map[string]any `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "photo.png", created.Name)
	assert.Equal(t, "image/png", created.Mimetype)
	assert.EqualValues(t, 30, created.Metadata["width"])

	path := fmt.Sprintf("/assets/%d", created.ID)

	rec = srv.get(path + "/meta")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"height":15`)

	rec = srv.do(httptest.NewRequest(http.MethodDelete, path, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.get(path)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpload_BadRequests(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(uploadRequest(t, "other", "a.txt", []byte("x")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(uploadRequest(t, formFile, "empty.txt", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
}

// =============================================================================
// Router
// =============================================================================

func TestRouter_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.get("/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	srv.get("/assets/1")

	rec = srv.get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alexander_http_requests_total")
}
