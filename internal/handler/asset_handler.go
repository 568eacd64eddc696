package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-assets/internal/domain"
	"github.com/prn-tf/alexander-assets/internal/service"
)

// DefaultBufferSize is the chunk size used when streaming blobs.
const DefaultBufferSize = 100 * 1024

// formFile is the multipart field holding an upload.
const formFile = "file"

// AssetHandler serves, uploads and deletes assets.
type AssetHandler struct {
	assets     *service.AssetService
	variations *service.VariationService
	logger     zerolog.Logger
	config     AssetHandlerConfig

	now func() time.Time
}

// AssetHandlerConfig contains delivery settings.
type AssetHandlerConfig struct {
	// BufferSize is the chunk size used when streaming blobs.
	BufferSize int

	// MaxUploadSize limits the request body of uploads. Zero means no limit.
	MaxUploadSize int64
}

// NewAssetHandler creates a new AssetHandler.
func NewAssetHandler(
	assets *service.AssetService,
	variations *service.VariationService,
	logger zerolog.Logger,
	config AssetHandlerConfig,
) *AssetHandler {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	return &AssetHandler{
		assets:     assets,
		variations: variations,
		logger:     logger.With().Str("handler", "asset").Logger(),
		config:     config,
		now:        time.Now,
	}
}

// RegisterRoutes registers asset routes on a chi router.
func (h *AssetHandler) RegisterRoutes(r chi.Router) {
	r.Route("/assets", func(r chi.Router) {
		r.Post("/", h.Upload)
		r.Get("/{id}", h.View)
		r.Get("/{id}/meta", h.Meta)
		r.Delete("/{id}", h.Delete)
	})
}

// =============================================================================
// Handlers
// =============================================================================

// View serves an asset. Images other than SVG go through the variation
// engine according to the query string; everything else is streamed with
// Range support.
func (h *AssetHandler) View(w http.ResponseWriter, r *http.Request) {
	asset, err := h.lookup(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.touch(r.Context(), asset)

	if asset.Resizable() {
		h.serveImage(w, r, asset)
		return
	}
	h.serveStream(w, r, asset)
}

func (h *AssetHandler) serveImage(w http.ResponseWriter, r *http.Request, asset *domain.Asset) {
	out, err := h.variations.GetOrCreate(r.Context(), service.GetOrCreateInput{
		Asset:   asset,
		Request: ParseResizeRequest(r.URL.Query(), asset),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	// Cleanup reads the derived asset's last use.
	if out.Asset.ID != asset.ID {
		h.touch(r.Context(), out.Asset)
	}

	data, err := h.assets.ReadAll(r.Context(), out.Asset)
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: %v", domain.ErrStorageFailure, err))
		return
	}

	header := w.Header()
	header.Set("Content-Type", asset.Mimetype)
	header.Set("Content-Length", strconv.Itoa(len(data)))
	setCacheHeaders(header, asset, h.now())
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		_, _ = w.Write(data)
	}
}

func (h *AssetHandler) serveStream(w http.ResponseWriter, r *http.Request, asset *domain.Asset) {
	ctx := r.Context()

	disk, err := h.assets.Disk(asset)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	size, err := disk.Size(ctx, asset.Path)
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: %v", domain.ErrStorageFailure, err))
		return
	}

	header := w.Header()
	header.Set("Content-Type", asset.Mimetype)
	header.Set("Accept-Ranges", "0-"+strconv.FormatInt(size, 10))
	setCacheHeaders(header, asset, h.now())

	window := byteRange{start: 0, end: size - 1}
	status := http.StatusOK

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		parsed, err := parseRange(rangeHeader, size)
		if err != nil {
			header.Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", size-1, size))
			writeError(w, h.logger, err)
			return
		}
		window = parsed
		status = http.StatusPartialContent
		header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", window.start, window.end, size))
	}

	length := max(window.length(), 0)
	header.Set("Content-Length", strconv.FormatInt(length, 10))

	if length == 0 || r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}

	body, err := disk.OpenRange(ctx, asset.Path, window.start, length)
	if err != nil {
		header.Del("Content-Length")
		header.Del("Content-Range")
		writeError(w, h.logger, fmt.Errorf("%w: %v", domain.ErrStorageFailure, err))
		return
	}
	defer body.Close()

	w.WriteHeader(status)
	if err := copyChunks(w, body, h.config.BufferSize); err != nil {
		h.logger.Debug().Err(err).Int64("asset_id", asset.ID).Msg("stream interrupted")
	}
}

// Meta returns the asset record and its media metadata as JSON.
func (h *AssetHandler) Meta(w http.ResponseWriter, r *http.Request) {
	asset, err := h.lookup(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, AssetResponse{
		Asset:    asset,
		Metadata: asset.Metadata(),
	})
}

// Upload stores the multipart file field "file" as a new asset.
func (h *AssetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.config.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadSize)
	}

	file, fh, err := r.FormFile(formFile)
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: missing %q file field", errBadRequest, formFile))
		return
	}
	defer file.Close()

	out, err := h.assets.Upload(r.Context(), service.UploadInput{
		Body:     file,
		Filename: fh.Filename,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	status := http.StatusCreated
	if out.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, AssetResponse{
		Asset:    out.Asset,
		Metadata: out.Asset.Metadata(),
	})
}

// Delete removes an asset, its variations and its blob.
func (h *AssetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	asset, err := h.lookup(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.assets.Delete(r.Context(), asset, service.DeleteOptions{}); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssetResponse is the JSON representation of an asset.
type AssetResponse struct {
	*domain.Asset
	Metadata map[string]any `json:"metadata"`
}

// =============================================================================
// Helpers
// =============================================================================

// lookup resolves the {id} URL parameter. Malformed ids are not found.
func (h *AssetHandler) lookup(r *http.Request) (*domain.Asset, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return nil, domain.ErrAssetNotFound
	}
	return h.assets.Get(r.Context(), id)
}

// touch records a view, logging failures.
func (h *AssetHandler) touch(ctx context.Context, asset *domain.Asset) {
	if err := h.assets.UpdateLastUsed(ctx, asset); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Warn().Err(err).Int64("asset_id", asset.ID).Msg("failed to update last used")
	}
}

// copyChunks copies src to w in reads of at most size bytes.
func copyChunks(w io.Writer, src io.Reader, size int) error {
	buf := make([]byte, size)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
