package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-assets/internal/domain"
	"github.com/prn-tf/alexander-assets/internal/imaging"
	"github.com/prn-tf/alexander-assets/internal/metrics"
	"github.com/prn-tf/alexander-assets/internal/repository"
)

// VariationService resolves and renders asset variations.
type VariationService struct {
	assets        *AssetService
	variationRepo repository.VariationRepository
	images        imaging.Engine
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	config        VariationConfig
}

// VariationConfig contains variation service configuration.
type VariationConfig struct {
	// MaxDimension caps the target width and height.
	MaxDimension int
}

// DefaultVariationConfig returns the default variation configuration.
func DefaultVariationConfig() VariationConfig {
	return VariationConfig{MaxDimension: 4096}
}

// NewVariationService creates a new VariationService. m may be nil.
func NewVariationService(
	assets *AssetService,
	variationRepo repository.VariationRepository,
	images imaging.Engine,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config VariationConfig,
) *VariationService {
	if config.MaxDimension <= 0 {
		config.MaxDimension = DefaultVariationConfig().MaxDimension
	}

	return &VariationService{
		assets:        assets,
		variationRepo: variationRepo,
		images:        images,
		metrics:       m,
		logger:        logger.With().Str("service", "variation").Logger(),
		config:        config,
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// GetOrCreateInput contains the data needed to resolve a variation.
type GetOrCreateInput struct {
	Asset   *domain.Asset
	Request domain.ResizeRequest
}

// GetOrCreateOutput contains the resolved asset.
type GetOrCreateOutput struct {
	// Asset is the derived asset, or the input asset for passthrough.
	Asset *domain.Asset

	// Name is the variation name, empty for passthrough.
	Name string

	// Result is one of metrics.ResultHit, ResultCreated or ResultPassthrough.
	Result string
}

// =============================================================================
// Service Methods
// =============================================================================

// GetOrCreate returns the variation of an asset described by the request,
// rendering and storing it on a miss. Non-resizable assets and requests
// without a size return the input asset unchanged. Variations always hang
// off the root asset. Targets above MaxDimension fail with
// domain.ErrDimensionTooLarge.
func (s *VariationService) GetOrCreate(ctx context.Context, input GetOrCreateInput) (*GetOrCreateOutput, error) {
	out, err := s.getOrCreate(ctx, input)
	if s.metrics != nil {
		if err != nil {
			s.metrics.RecordVariation(metrics.ResultError)
		} else {
			s.metrics.RecordVariation(out.Result)
		}
	}
	return out, err
}

func (s *VariationService) getOrCreate(ctx context.Context, input GetOrCreateInput) (*GetOrCreateOutput, error) {
	if !input.Asset.Resizable() || !input.Request.HasSize() {
		return &GetOrCreateOutput{Asset: input.Asset, Result: metrics.ResultPassthrough}, nil
	}

	if limit := s.config.MaxDimension; input.Request.Width > limit || input.Request.Height > limit {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d", domain.ErrDimensionTooLarge,
			input.Request.Width, input.Request.Height, limit)
	}

	req := input.Request.Normalize()
	name := req.VariationName()

	root, err := s.assets.RootOf(ctx, input.Asset)
	if err != nil {
		return nil, err
	}

	existing, err := s.variationRepo.GetByName(ctx, root.ID, name)
	switch {
	case err == nil:
		if !req.Refresh {
			derived, err := s.assets.Get(ctx, existing.VariationAssetID)
			if err == nil {
				return &GetOrCreateOutput{Asset: derived, Name: name, Result: metrics.ResultHit}, nil
			}
			if !errors.Is(err, domain.ErrAssetNotFound) {
				return nil, err
			}
		}
		if err := s.assets.RemoveVariation(ctx, existing); err != nil && !errors.Is(err, domain.ErrVariationNotFound) {
			return nil, err
		}
	case errors.Is(err, domain.ErrVariationNotFound):
	default:
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	derived, err := s.create(ctx, root, name, req)
	if err != nil {
		return nil, err
	}
	return &GetOrCreateOutput{Asset: derived, Name: name, Result: metrics.ResultCreated}, nil
}

// create renders the variation from the root's bytes, stores it with
// deduplication and links it.
func (s *VariationService) create(ctx context.Context, root *domain.Asset, name string, req domain.ResizeRequest) (*domain.Asset, error) {
	src, err := s.assets.ReadAll(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}

	start := time.Now()
	encoded, contentType, err := imaging.Render(s.images, src, req)
	if err != nil {
		s.logger.Error().Err(err).Int64("asset_id", root.ID).Str("variation", name).Msg("failed to render variation")
		if !errors.Is(err, domain.ErrTransformFailed) {
			err = fmt.Errorf("%w: %v", domain.ErrTransformFailed, err)
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RenderDuration.Observe(time.Since(start).Seconds())
	}

	dedup := true
	uploaded, err := s.assets.Upload(ctx, UploadInput{
		Body:        bytes.NewReader(encoded),
		Filename:    variationFilename(root.Name, contentType),
		UserID:      root.UserID,
		RootAssetID: &root.ID,
		Deduplicate: &dedup,
	})
	if err != nil {
		return nil, err
	}

	derived, err := s.LinkVariation(ctx, root, name, uploaded.Asset)
	if err != nil {
		if !uploaded.Duplicate {
			s.discardOrphan(ctx, uploaded.Asset)
		}
		return nil, err
	}

	// Our upload lost a race and nothing references it.
	if derived.ID != uploaded.Asset.ID && !uploaded.Duplicate {
		s.discardOrphan(ctx, uploaded.Asset)
	}

	s.logger.Debug().
		Int64("asset_id", root.ID).
		Int64("variation_asset_id", derived.ID).
		Str("variation", name).
		Bool("deduplicated", uploaded.Duplicate).
		Msg("variation created")

	return derived, nil
}

// LinkVariation records derived as the named variation of root. Empty
// attributes of derived are inherited from root. When another request
// linked the name first, the existing derived asset is returned.
func (s *VariationService) LinkVariation(ctx context.Context, root *domain.Asset, name string, derived *domain.Asset) (*domain.Asset, error) {
	if err := s.inheritAttributes(ctx, root, derived); err != nil {
		return nil, err
	}

	variation := &domain.Variation{
		OriginalAssetID:  root.ID,
		VariationAssetID: derived.ID,
		VariationName:    name,
	}

	err := s.variationRepo.Create(ctx, variation)
	if err == nil {
		return derived, nil
	}
	if !errors.Is(err, domain.ErrVariationExists) {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if s.metrics != nil {
		s.metrics.LinkRaces.Inc()
	}
	s.logger.Debug().Int64("asset_id", root.ID).Str("variation", name).Msg("variation linked concurrently, using existing")

	winner, err := s.variationRepo.GetByName(ctx, root.ID, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return s.assets.Get(ctx, winner.VariationAssetID)
}

func (s *VariationService) inheritAttributes(ctx context.Context, root, derived *domain.Asset) error {
	changed := false
	if derived.Name == "" {
		derived.Name, changed = root.Name, true
	}
	if derived.Type == "" {
		derived.Type, changed = root.Type, true
	}
	if derived.Mimetype == "" {
		derived.Mimetype, changed = root.Mimetype, true
	}
	if derived.Hash == "" {
		hash, err := s.assets.FreshHash(ctx, derived)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
		}
		derived.Hash, changed = hash, true
	}
	if !changed {
		return nil
	}
	if err := s.assets.assetRepo.Update(ctx, derived); err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return nil
}

// discardOrphan deletes a freshly stored asset that ended up unreferenced.
func (s *VariationService) discardOrphan(ctx context.Context, asset *domain.Asset) {
	refs, err := s.variationRepo.CountByVariationAsset(ctx, asset.ID)
	if err != nil || refs > 0 {
		return
	}
	if err := s.assets.Delete(ctx, asset, DeleteOptions{}); err != nil {
		s.logger.Warn().Err(err).Int64("asset_id", asset.ID).Msg("failed to discard orphan variation asset")
	}
}

// DeleteVariation deletes a variation and, when it was the last reference,
// its derived asset.
func (s *VariationService) DeleteVariation(ctx context.Context, variation *domain.Variation) error {
	return s.assets.RemoveVariation(ctx, variation)
}

// variationFilename swaps the extension of name for the encoded format.
func variationFilename(name, contentType string) string {
	ext := imaging.Extension(contentType)
	if ext == "" {
		return name
	}
	base := strings.TrimSuffix(name, path.Ext(name))
	if base == "" {
		base = "variation"
	}
	return base + "." + ext
}
