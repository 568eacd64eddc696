package storage

import (
	"errors"

	"github.com/prn-tf/alexander-assets/internal/domain"
)

// ErrBlobNotFound is returned by disks when a key has no blob.
var ErrBlobNotFound = domain.ErrBlobNotFound

// ErrInvalidKey is returned for keys that escape the disk root.
var ErrInvalidKey = errors.New("invalid storage key")

// IsNotFound reports whether err means the blob is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBlobNotFound)
}
