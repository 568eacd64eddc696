package app

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-assets/internal/config"
	"github.com/prn-tf/alexander-assets/internal/storage"
	"github.com/prn-tf/alexander-assets/internal/storage/filesystem"
	"github.com/prn-tf/alexander-assets/internal/storage/gcsstore"
	"github.com/prn-tf/alexander-assets/internal/storage/s3store"
)

// OpenDisks builds every configured disk. The returned closers release
// client connections held by object store disks.
func OpenDisks(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (*storage.Manager, []io.Closer, error) {
	var (
		disks   []storage.Disk
		closers []io.Closer
	)

	fail := func(err error) (*storage.Manager, []io.Closer, error) {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, nil, err
	}

	for _, name := range cfg.DiskNames() {
		dc := cfg.Disks[name]
		diskLogger := logger.With().Str("disk", name).Str("driver", dc.Driver).Logger()

		switch dc.Driver {
		case config.DriverFilesystem:
			d, err := filesystem.New(filesystem.Config{Name: name, Root: dc.Root}, logger)
			if err != nil {
				return fail(fmt.Errorf("disk %s: %w", name, err))
			}
			disks = append(disks, d)

		case config.DriverS3:
			d, err := s3store.New(ctx, s3store.Config{
				Name:            name,
				Bucket:          dc.Bucket,
				Prefix:          dc.Prefix,
				Region:          dc.Region,
				Endpoint:        dc.Endpoint,
				AccessKeyID:     dc.AccessKeyID,
				SecretAccessKey: dc.SecretAccessKey,
				UsePathStyle:    dc.UsePathStyle,
			}, logger)
			if err != nil {
				return fail(fmt.Errorf("disk %s: %w", name, err))
			}
			disks = append(disks, d)

		case config.DriverGCS:
			d, err := gcsstore.New(ctx, gcsstore.Config{
				Name:            name,
				Bucket:          dc.Bucket,
				Prefix:          dc.Prefix,
				CredentialsFile: dc.CredentialsFile,
				Endpoint:        dc.Endpoint,
			}, logger)
			if err != nil {
				return fail(fmt.Errorf("disk %s: %w", name, err))
			}
			disks = append(disks, d)
			closers = append(closers, d)

		default:
			return fail(fmt.Errorf("disk %s: unsupported driver %q", name, dc.Driver))
		}

		diskLogger.Info().Msg("disk ready")
	}

	manager, err := storage.NewManager(cfg.DefaultDisk, disks...)
	if err != nil {
		return fail(err)
	}
	return manager, closers, nil
}
