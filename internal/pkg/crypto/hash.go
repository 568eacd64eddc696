// Package crypto provides hashing, comparison and random-name utilities for Alexander Assets.
package crypto

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// HashReader wraps an io.Reader and computes the MD5 fingerprint while reading.
type HashReader struct {
	reader io.Reader
	md5    hash.Hash
	size   int64
}

// NewHashReader creates a new HashReader.
func NewHashReader(r io.Reader) *HashReader {
	return &HashReader{
		reader: r,
		md5:    md5.New(),
	}
}

// Read implements io.Reader and updates the hash computation.
func (h *HashReader) Read(p []byte) (n int, err error) {
	n, err = h.reader.Read(p)
	if n > 0 {
		h.md5.Write(p[:n])
		h.size += int64(n)
	}
	return n, err
}

// MD5 returns the hex-encoded MD5 hash.
// Should only be called after reading is complete.
func (h *HashReader) MD5() string {
	return hex.EncodeToString(h.md5.Sum(nil))
}

// Size returns the total number of bytes read.
func (h *HashReader) Size() int64 {
	return h.size
}

// ComputeMD5 returns the hex MD5 of a byte slice.
func ComputeMD5(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// ComputeStreamMD5 computes the MD5 hash of a reader's content.
func ComputeStreamMD5(r io.Reader) (string, int64, error) {
	h := md5.New()
	size, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("failed to compute MD5: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}
