// Package s3store implements storage.Disk on an S3-compatible object store.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-assets/internal/storage"
)

// Config holds configuration for an S3 disk.
type Config struct {
	Name            string
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// API is the subset of the S3 client used by Disk.
type API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var _ API = (*s3.Client)(nil)

// Disk implements storage.Disk on a bucket.
type Disk struct {
	name   string
	bucket string
	prefix string
	client API
	logger zerolog.Logger
}

var _ storage.Disk = (*Disk)(nil)

// New builds an S3 client from cfg and returns a Disk.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Disk, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 disk %q: bucket is required", cfg.Name)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewWithClient(cfg, client, logger), nil
}

// NewWithClient returns a Disk using an existing client.
func NewWithClient(cfg Config, client API, logger zerolog.Logger) *Disk {
	return &Disk{
		name:   cfg.Name,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		client: client,
		logger: logger.With().Str("disk", cfg.Name).Str("driver", "s3").Logger(),
	}
}

// Name implements storage.Disk.
func (d *Disk) Name() string { return d.name }

// Exists implements storage.Disk.
func (d *Disk) Exists(ctx context.Context, key string) (bool, error) {
	_, err := d.head(ctx, key)
	if storage.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
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
// Readers that are not seekable are buffered so the request can be signed.
func (d *Disk) Put(ctx context.Context, key string, reader io.Reader, size int64, opts storage.PutOptions) error {
	body, ok := reader.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(reader)
		if err != nil {
			return fmt.Errorf("buffer upload: %w", err)
		}
		body = bytes.NewReader(data)
		size = int64(len(data))
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(key)),
		Body:   body,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}

	if _, err := d.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	d.logger.Debug().Str("key", key).Int64("size", size).Msg("blob stored")
	return nil
}

// Delete implements storage.Disk.
// S3 deletes are idempotent, so existence is checked first.
func (d *Disk) Delete(ctx context.Context, key string) (bool, error) {
	exists, err := d.Exists(ctx, key)
	if err != nil || !exists {
		return false, err
	}
	_, err = d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(key)),
	})
	if err != nil {
		return false, fmt.Errorf("delete object: %w", err)
	}
	return true, nil
}

// Open implements storage.Disk.
func (d *Disk) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return d.get(ctx, key, nil)
}

// OpenRange implements storage.Disk.
func (d *Disk) OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	if length <= 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	rng := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	return d.get(ctx, key, aws.String(rng))
}

// Size implements storage.Disk.
func (d *Disk) Size(ctx context.Context, key string) (int64, error) {
	out, err := d.head(ctx, key)
	if err != nil {
		return 0, err
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (d *Disk) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	out, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(key)),
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (d *Disk) get(ctx context.Context, key string, rng *string) (io.ReadCloser, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(key)),
		Range:  rng,
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return out.Body, nil
}

func (d *Disk) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if d.prefix == "" {
		return key
	}
	return path.Join(d.prefix, key)
}

func mapErr(err error) error {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return storage.ErrBlobNotFound
	}
	return fmt.Errorf("s3: %w", err)
}
