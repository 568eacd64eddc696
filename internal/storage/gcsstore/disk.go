// Package gcsstore implements storage.Disk on Google Cloud Storage.
package gcsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	assetstorage "github.com/prn-tf/alexander-assets/internal/storage"
)

// Config holds configuration for a GCS disk.
type Config struct {
	Name            string
	Bucket          string
	Prefix          string
	CredentialsFile string

	// Endpoint points the client at an emulator; authentication is disabled.
	Endpoint string
}

// Disk implements storage.Disk on a GCS bucket.
type Disk struct {
	name   string
	prefix string
	client *storage.Client
	bucket *storage.BucketHandle
	logger zerolog.Logger
}

var _ assetstorage.Disk = (*Disk)(nil)

// New creates a GCS client and returns a Disk.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Disk, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs disk %q: bucket is required", cfg.Name)
	}

	opts := ClientOptions(cfg)
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return &Disk{
		name:   cfg.Name,
		prefix: strings.Trim(cfg.Prefix, "/"),
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		logger: logger.With().Str("disk", cfg.Name).Str("driver", "gcs").Logger(),
	}, nil
}

// ClientOptions maps cfg onto client options.
func ClientOptions(cfg Config) []option.ClientOption {
	opts := []option.ClientOption{}
	switch {
	case cfg.Endpoint != "":
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile), option.WithScopes(storage.ScopeReadWrite))
	default:
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}
	return opts
}

// Close releases the underlying client.
func (d *Disk) Close() error {
	return d.client.Close()
}

// Name implements storage.Disk.
func (d *Disk) Name() string { return d.name }

// Exists implements storage.Disk.
func (d *Disk) Exists(ctx context.Context, key string) (bool, error) {
	_, err := d.Size(ctx, key)
	if assetstorage.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// Get implements storage.Disk.
func (d *Disk) Get(ctx context.Context, key string) ([]byte, error) {
	rc, err := d.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Put implements storage.Disk.
func (d *Disk) Put(ctx context.Context, key string, reader io.Reader, size int64, opts assetstorage.PutOptions) error {
	w := d.bucket.Object(d.objectKey(key)).NewWriter(ctx)
	if opts.ContentType != "" {
		w.ContentType = opts.ContentType
	}
	if _, err := io.Copy(w, reader); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	d.logger.Debug().Str("key", key).Int64("size", size).Msg("blob stored")
	return nil
}

// Delete implements storage.Disk.
func (d *Disk) Delete(ctx context.Context, key string) (bool, error) {
	err := d.bucket.Object(d.objectKey(key)).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("gcs delete: %w", err)
	}
	return true, nil
}

// Open implements storage.Disk.
func (d *Disk) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := d.bucket.Object(d.objectKey(key)).NewReader(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	return r, nil
}

// OpenRange implements storage.Disk.
func (d *Disk) OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	r, err := d.bucket.Object(d.objectKey(key)).NewRangeReader(ctx, offset, length)
	if err != nil {
		return nil, mapErr(err)
	}
	return r, nil
}

// Size implements storage.Disk.
func (d *Disk) Size(ctx context.Context, key string) (int64, error) {
	attrs, err := d.bucket.Object(d.objectKey(key)).Attrs(ctx)
	if err != nil {
		return 0, mapErr(err)
	}
	return attrs.Size, nil
}

func (d *Disk) objectKey(key string) string {
	return ObjectKey(d.prefix, key)
}

// ObjectKey joins prefix and key into a bucket object name.
func ObjectKey(prefix, key string) string {
	key = strings.TrimPrefix(key, "/")
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}

func mapErr(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return assetstorage.ErrBlobNotFound
	}
	return fmt.Errorf("gcs: %w", err)
}
