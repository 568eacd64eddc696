package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-assets/internal/domain"
	"github.com/prn-tf/alexander-assets/internal/imaging"
	"github.com/prn-tf/alexander-assets/internal/metrics"
	"github.com/prn-tf/alexander-assets/internal/pathgen"
	"github.com/prn-tf/alexander-assets/internal/pkg/crypto"
	"github.com/prn-tf/alexander-assets/internal/repository"
	"github.com/prn-tf/alexander-assets/internal/storage"
)

// AssetService handles asset storage, deduplication and lifecycle.
type AssetService struct {
	assetRepo     repository.AssetRepository
	variationRepo repository.VariationRepository
	disks         *storage.Manager
	paths         pathgen.Generator
	images        imaging.Engine
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	config        AssetConfig

	now func() time.Time
}

// AssetConfig contains asset service configuration.
type AssetConfig struct {
	// TempDir holds uploads while they are hashed. Empty uses the OS default.
	TempDir string

	// Deduplicate makes Upload return an existing byte-identical asset.
	Deduplicate bool
}

// NewAssetService creates a new AssetService. m may be nil.
func NewAssetService(
	assetRepo repository.AssetRepository,
	variationRepo repository.VariationRepository,
	disks *storage.Manager,
	paths pathgen.Generator,
	images imaging.Engine,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config AssetConfig,
) *AssetService {
	return &AssetService{
		assetRepo:     assetRepo,
		variationRepo: variationRepo,
		disks:         disks,
		paths:         paths,
		images:        images,
		metrics:       m,
		logger:        logger.With().Str("service", "asset").Logger(),
		config:        config,
		now:           time.Now,
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// UploadInput contains the data needed to store a new asset.
type UploadInput struct {
	Body io.Reader

	// Filename is the client file name. It becomes the asset name and
	// decides the stored extension.
	Filename string

	UserID      *int64
	RootAssetID *int64

	// Deduplicate overrides AssetConfig.Deduplicate when set.
	Deduplicate *bool
}

// UploadOutput contains the stored asset.
type UploadOutput struct {
	Asset *domain.Asset

	// Duplicate is true when an existing asset was returned instead.
	Duplicate bool
}

// DeleteOptions controls asset deletion.
type DeleteOptions struct {
	// KeepFile leaves the blob on its disk.
	KeepFile bool
}

// =============================================================================
// Service Methods
// =============================================================================

// Upload stores content as a new asset. The content is spooled to a temp
// file, fingerprinted, written to the default disk and probed for metadata.
// If the disk write fails the record is removed again.
func (s *AssetService) Upload(ctx context.Context, input UploadInput) (*UploadOutput, error) {
	file, err := spool(s.config.TempDir, input.Body, input.Filename)
	if err != nil {
		return nil, err
	}
	defer file.remove()

	dedup := s.config.Deduplicate
	if input.Deduplicate != nil {
		dedup = *input.Deduplicate
	}

	if dedup {
		existing, err := s.FindDuplicate(ctx, file.hash, file.size, file.open)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if s.metrics != nil {
				s.metrics.DedupHits.Inc()
			}
			s.logger.Debug().
				Int64("asset_id", existing.ID).
				Str("hash", file.hash).
				Msg("upload matched existing asset")
			return &UploadOutput{Asset: existing, Duplicate: true}, nil
		}
	}

	asset, err := s.store(ctx, file, input.UserID, input.RootAssetID)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Uploads.Inc()
	}

	s.logger.Info().
		Int64("asset_id", asset.ID).
		Str("name", asset.Name).
		Str("mimetype", asset.Mimetype).
		Int64("size", asset.Size).
		Str("disk", asset.Disk).
		Str("path", asset.Path).
		Msg("asset stored")

	return &UploadOutput{Asset: asset}, nil
}

// store creates the record, places the blob and records metadata.
func (s *AssetService) store(ctx context.Context, file *spooledFile, userID, rootID *int64) (*domain.Asset, error) {
	disk := s.disks.Default()

	asset := &domain.Asset{
		RootAssetID: rootID,
		UserID:      userID,
		Name:        file.filename,
		Mimetype:    file.mimetype,
		Type:        domain.TypeFromMimetype(file.mimetype),
		Size:        file.size,
		Disk:        disk.Name(),
		Hash:        file.hash,
	}

	if err := s.assetRepo.Create(ctx, asset); err != nil {
		s.logger.Error().Err(err).Str("name", file.filename).Msg("failed to create asset")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	var variationCount int64
	if rootID != nil {
		n, err := s.variationRepo.CountByOriginal(ctx, *rootID)
		if err != nil {
			s.rollback(ctx, asset, false)
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		variationCount = n
	}

	asset.Path = s.paths.Generate(pathgen.Subject{
		Asset:          asset,
		Filename:       file.filename,
		VariationCount: variationCount,
	})

	if err := s.putFile(ctx, disk, asset.Path, file, asset.Mimetype); err != nil {
		s.logger.Error().Err(err).Int64("asset_id", asset.ID).Str("path", asset.Path).Msg("failed to write blob")
		s.rollback(ctx, asset, false)
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}

	if asset.Resizable() {
		if r, err := file.open(); err == nil {
			s.probeDimensions(asset, r)
			_ = r.Close()
		}
	}

	if err := s.assetRepo.Update(ctx, asset); err != nil {
		s.logger.Error().Err(err).Int64("asset_id", asset.ID).Msg("failed to update asset")
		s.rollback(ctx, asset, true)
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	return asset, nil
}

func (s *AssetService) putFile(ctx context.Context, disk storage.Disk, key string, file *spooledFile, contentType string) error {
	r, err := file.open()
	if err != nil {
		return err
	}
	defer r.Close()

	return disk.Put(ctx, key, r, file.size, storage.PutOptions{ContentType: contentType})
}

// rollback removes a partially stored asset.
func (s *AssetService) rollback(ctx context.Context, asset *domain.Asset, withFile bool) {
	if withFile {
		s.deleteFile(ctx, asset)
	}
	if err := s.assetRepo.Delete(ctx, asset.ID); err != nil {
		s.logger.Warn().Err(err).Int64("asset_id", asset.ID).Msg("failed to roll back asset record")
	}
}

// FindDuplicate returns the first asset with the same fingerprint and size
// whose stored bytes equal the content returned by open. Candidates whose
// blob cannot be read are skipped.
func (s *AssetService) FindDuplicate(ctx context.Context, hash string, size int64, open func() (io.ReadCloser, error)) (*domain.Asset, error) {
	candidates, err := s.assetRepo.ListByHashAndSize(ctx, hash, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	for _, candidate := range candidates {
		equal, err := s.contentEquals(ctx, candidate, open)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Int64("asset_id", candidate.ID).
				Msg("skipping unreadable duplicate candidate")
			continue
		}
		if equal {
			return candidate, nil
		}
	}

	return nil, nil
}

func (s *AssetService) contentEquals(ctx context.Context, asset *domain.Asset, open func() (io.ReadCloser, error)) (bool, error) {
	stored, err := s.Open(ctx, asset)
	if err != nil {
		return false, err
	}
	defer stored.Close()

	local, err := open()
	if err != nil {
		return false, err
	}
	defer local.Close()

	return crypto.StreamsEqual(stored, local)
}

// Get retrieves an asset by ID.
func (s *AssetService) Get(ctx context.Context, id int64) (*domain.Asset, error) {
	asset, err := s.assetRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrAssetNotFound) {
			return nil, domain.ErrAssetNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return asset, nil
}

// RootOf returns the root of asset, or asset itself when it is a root.
func (s *AssetService) RootOf(ctx context.Context, asset *domain.Asset) (*domain.Asset, error) {
	if asset.IsRoot() {
		return asset, nil
	}
	return s.Get(ctx, *asset.RootAssetID)
}

// Delete removes an asset. A root's variations are removed first, with
// the usual reference counting on their derived assets. The blob is
// deleted on a best-effort basis before the record.
func (s *AssetService) Delete(ctx context.Context, asset *domain.Asset, opts DeleteOptions) error {
	if asset.IsRoot() {
		variations, err := s.variationRepo.ListByOriginal(ctx, asset.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		for _, v := range variations {
			if err := s.RemoveVariation(ctx, v); err != nil {
				return err
			}
			if err := s.reparent(ctx, v.VariationAssetID, asset.ID); err != nil {
				return err
			}
		}
	}

	if !opts.KeepFile {
		s.deleteFile(ctx, asset)
	}

	if err := s.assetRepo.Delete(ctx, asset.ID); err != nil {
		if errors.Is(err, domain.ErrAssetNotFound) {
			return domain.ErrAssetNotFound
		}
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if s.metrics != nil {
		s.metrics.AssetsDeleted.Inc()
	}

	s.logger.Info().Int64("asset_id", asset.ID).Msg("asset deleted")
	return nil
}

// reparent moves a derived asset of a root being deleted under another
// original that still references it. Without this the record would lose
// its root when the root row goes away.
func (s *AssetService) reparent(ctx context.Context, derivedID, rootID int64) error {
	derived, err := s.assetRepo.GetByID(ctx, derivedID)
	if err != nil {
		if errors.Is(err, domain.ErrAssetNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if derived.RootAssetID == nil || *derived.RootAssetID != rootID {
		return nil
	}

	refs, err := s.variationRepo.ListByVariationAsset(ctx, derivedID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if len(refs) == 0 {
		return nil
	}

	newRoot := refs[0].OriginalAssetID
	derived.RootAssetID = &newRoot
	if err := s.assetRepo.Update(ctx, derived); err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Debug().
		Int64("asset_id", derivedID).
		Int64("old_root_id", rootID).
		Int64("new_root_id", newRoot).
		Msg("derived asset reparented")
	return nil
}

// deleteFile removes the blob of an asset, logging failures.
func (s *AssetService) deleteFile(ctx context.Context, asset *domain.Asset) {
	disk, err := s.Disk(asset)
	if err == nil {
		_, err = disk.Delete(ctx, asset.Path)
	}
	if err != nil {
		s.logger.Warn().
			Err(err).
			Int64("asset_id", asset.ID).
			Str("disk", asset.Disk).
			Str("path", asset.Path).
			Msg("failed to delete blob")
	}
}

// RemoveVariation deletes a variation row, then deletes its derived asset
// when it is a generated asset that no other variation references.
func (s *AssetService) RemoveVariation(ctx context.Context, v *domain.Variation) error {
	if err := s.variationRepo.Delete(ctx, v.ID); err != nil {
		if errors.Is(err, domain.ErrVariationNotFound) {
			return domain.ErrVariationNotFound
		}
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	refs, err := s.variationRepo.CountByVariationAsset(ctx, v.VariationAssetID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if refs > 0 {
		return nil
	}

	if v.VariationAssetID == v.OriginalAssetID {
		return nil
	}
	originals, err := s.variationRepo.CountByOriginal(ctx, v.VariationAssetID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if originals > 0 {
		return nil
	}

	derived, err := s.assetRepo.GetByID(ctx, v.VariationAssetID)
	if err != nil {
		if errors.Is(err, domain.ErrAssetNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	// Only generated assets go. A render deduplicated onto an uploaded
	// root leaves that root alone.
	if derived.IsRoot() {
		return nil
	}

	return s.Delete(ctx, derived, DeleteOptions{})
}

// Disk returns the disk holding an asset, falling back to the default disk
// for records without one.
func (s *AssetService) Disk(asset *domain.Asset) (storage.Disk, error) {
	if asset.Disk == "" {
		return s.disks.Default(), nil
	}
	return s.disks.Disk(asset.Disk)
}

// DefaultDisk returns the disk new uploads are written to.
func (s *AssetService) DefaultDisk() storage.Disk {
	return s.disks.Default()
}

// ExistsOnDisk reports whether the blob of an asset exists.
func (s *AssetService) ExistsOnDisk(ctx context.Context, asset *domain.Asset) (bool, error) {
	disk, err := s.Disk(asset)
	if err != nil {
		return false, err
	}
	return disk.Exists(ctx, asset.Path)
}

// Open streams the blob of an asset. The caller must close it.
func (s *AssetService) Open(ctx context.Context, asset *domain.Asset) (io.ReadCloser, error) {
	disk, err := s.Disk(asset)
	if err != nil {
		return nil, err
	}
	return disk.Open(ctx, asset.Path)
}

// OpenRange streams length bytes of an asset's blob from offset.
func (s *AssetService) OpenRange(ctx context.Context, asset *domain.Asset, offset, length int64) (io.ReadCloser, error) {
	disk, err := s.Disk(asset)
	if err != nil {
		return nil, err
	}
	return disk.OpenRange(ctx, asset.Path, offset, length)
}

// ReadAll loads the whole blob of an asset.
func (s *AssetService) ReadAll(ctx context.Context, asset *domain.Asset) ([]byte, error) {
	disk, err := s.Disk(asset)
	if err != nil {
		return nil, err
	}
	return disk.Get(ctx, asset.Path)
}

// FreshHash recomputes the fingerprint of the stored blob.
func (s *AssetService) FreshHash(ctx context.Context, asset *domain.Asset) (string, error) {
	r, err := s.Open(ctx, asset)
	if err != nil {
		return "", err
	}
	defer r.Close()

	hash, _, err := crypto.ComputeStreamMD5(r)
	return hash, err
}

// UpdateLastUsed records a view of the asset. The timestamp is only written
// when it is unset or older than domain.LastUsedResolution.
func (s *AssetService) UpdateLastUsed(ctx context.Context, asset *domain.Asset) error {
	now := s.now().UTC()
	if !asset.NeedsLastUsedTouch(now) {
		return nil
	}

	if err := s.assetRepo.TouchLastUsed(ctx, asset.ID, now); err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	asset.LastUsedAt = &now
	return nil
}

// RefreshMetaData probes image dimensions from the stored blob. Probe
// failures are ignored.
func (s *AssetService) RefreshMetaData(ctx context.Context, asset *domain.Asset) error {
	if !asset.Resizable() {
		return nil
	}

	data, err := s.ReadAll(ctx, asset)
	if err != nil {
		return err
	}
	if !s.probeDimensions(asset, bytes.NewReader(data)) {
		return nil
	}

	if err := s.assetRepo.Update(ctx, asset); err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return nil
}

func (s *AssetService) probeDimensions(asset *domain.Asset, r io.Reader) bool {
	width, height, err := s.images.Probe(r)
	if err != nil {
		s.logger.Debug().Err(err).Int64("asset_id", asset.ID).Msg("could not probe image dimensions")
		return false
	}
	asset.SetDimensions(width, height)
	return true
}

// MoveToDisk copies the blob of an asset to another disk under a freshly
// generated path and points the record at it. The old blob is left in place.
func (s *AssetService) MoveToDisk(ctx context.Context, asset *domain.Asset, diskName string) error {
	target, err := s.disks.Disk(diskName)
	if err != nil {
		return err
	}
	if asset.Disk == target.Name() {
		return nil
	}

	src, err := s.Open(ctx, asset)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}
	file, err := spool(s.config.TempDir, src, asset.Name)
	_ = src.Close()
	if err != nil {
		return err
	}
	defer file.remove()

	var variationCount int64
	if !asset.IsRoot() {
		if variationCount, err = s.variationRepo.CountByOriginal(ctx, *asset.RootAssetID); err != nil {
			return fmt.Errorf("%w: %v", ErrInternalError, err)
		}
	}

	newPath := s.paths.Generate(pathgen.Subject{
		Asset:          asset,
		Filename:       asset.Name,
		VariationCount: variationCount,
	})

	if err := s.putFile(ctx, target, newPath, file, asset.Mimetype); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}

	oldDisk, oldPath := asset.Disk, asset.Path
	asset.Disk, asset.Path = target.Name(), newPath

	if err := s.assetRepo.Update(ctx, asset); err != nil {
		asset.Disk, asset.Path = oldDisk, oldPath
		if _, delErr := target.Delete(ctx, newPath); delErr != nil {
			s.logger.Warn().Err(delErr).Str("path", newPath).Msg("failed to remove copied blob")
		}
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Int64("asset_id", asset.ID).
		Str("from_disk", oldDisk).
		Str("to_disk", asset.Disk).
		Str("path", asset.Path).
		Msg("asset moved")

	return nil
}
