// Package storage defines the named-disk abstraction for asset blobs.
// A disk is addressed by slash-separated keys relative to its root; the
// asset record stores the disk name and the key.
package storage

import (
	"context"
	"io"
)

// Disk defines the interface for a named blob store.
// Implementations include the local filesystem, S3-compatible object stores
// and Google Cloud Storage.
type Disk interface {
	// Name returns the configured disk name stored on asset records.
	Name() string

	// Exists checks whether a blob exists at key.
	//
	// Returns:
	//   - bool: true if the blob exists
	//   - err: Error if the check fails
	Exists(ctx context.Context, key string) (bool, error)

	// Get reads the whole blob into memory.
	//
	// Returns:
	//   - []byte: blob content
	//   - err: ErrBlobNotFound if the blob doesn't exist, or other error
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores content from a reader at key, replacing any existing blob.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - key: Destination key
	//   - reader: Source of the content to store
	//   - size: Content size in bytes, or -1 if unknown
	//   - opts: Optional metadata
	Put(ctx context.Context, key string, reader io.Reader, size int64, opts PutOptions) error

	// Delete removes the blob at key.
	//
	// Returns:
	//   - bool: false if there was nothing to delete
	//   - err: Error if deletion fails
	Delete(ctx context.Context, key string) (bool, error)

	// Open returns a stream of the whole blob. The caller must close it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// OpenRange returns a stream of length bytes starting at offset.
	// The caller must close it.
	OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)

	// Size returns the blob size in bytes.
	//
	// Returns:
	//   - int64: Size in bytes
	//   - err: ErrBlobNotFound if the blob doesn't exist
	Size(ctx context.Context, key string) (int64, error)
}

// PutOptions carries optional object metadata for Put.
type PutOptions struct {
	// ContentType is recorded by object stores that support it.
	ContentType string
}
