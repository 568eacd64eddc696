// Package filesystem implements storage.Disk on the local filesystem.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-assets/internal/storage"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Config holds configuration for a filesystem disk.
type Config struct {
	// Name is the disk name stored on asset records.
	Name string

	// Root is the directory blobs are stored under.
	Root string
}

// Disk implements storage.Disk on a local directory.
type Disk struct {
	name   string
	root   string
	logger zerolog.Logger
}

var _ storage.Disk = (*Disk)(nil)

// New creates the root directory if needed and returns a Disk.
func New(cfg Config, logger zerolog.Logger) (*Disk, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("filesystem disk %q: root is required", cfg.Name)
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve disk root: %w", err)
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("create disk root %q: %w", root, err)
	}

	return &Disk{
		name:   cfg.Name,
		root:   root,
		logger: logger.With().Str("disk", cfg.Name).Str("driver", "filesystem").Logger(),
	}, nil
}

// Name implements storage.Disk.
func (d *Disk) Name() string { return d.name }

// Root returns the absolute root directory.
func (d *Disk) Root() string { return d.root }

// Exists implements storage.Disk.
func (d *Disk) Exists(ctx context.Context, key string) (bool, error) {
	p, err := d.resolve(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

// Get implements storage.Disk.
func (d *Disk) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := d.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, mapErr(err)
	}
	return data, nil
}

// Put implements storage.Disk. Content is written to a temp file in the
// destination directory and renamed into place.
func (d *Disk) Put(ctx context.Context, key string, reader io.Reader, size int64, _ storage.PutOptions) error {
	p, err := d.resolve(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	written, werr := io.Copy(tmp, reader)
	cerr := tmp.Close()
	if werr != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("write blob: %w", werr)
	}
	if cerr != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("flush blob: %w", cerr)
	}
	if size >= 0 && written != size {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("size mismatch: expected %d, wrote %d", size, written)
	}
	if err := os.Chmod(tmpPath, filePerm); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("chmod blob: %w", err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("rename blob: %w", err)
	}

	d.logger.Debug().Str("key", key).Int64("size", written).Msg("blob stored")
	return nil
}

// Delete implements storage.Disk.
func (d *Disk) Delete(ctx context.Context, key string) (bool, error) {
	p, err := d.resolve(key)
	if err != nil {
		return false, err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Open implements storage.Disk.
func (d *Disk) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := d.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, mapErr(err)
	}
	return f, nil
}

// OpenRange implements storage.Disk.
func (d *Disk) OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	p, err := d.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, mapErr(err)
	}
	return &sectionReadCloser{
		Reader: io.NewSectionReader(f, offset, length),
		file:   f,
	}, nil
}

// Size implements storage.Disk.
func (d *Disk) Size(ctx context.Context, key string) (int64, error) {
	p, err := d.resolve(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return 0, mapErr(err)
	}
	return info.Size(), nil
}

// resolve maps a key to an absolute path, rejecting keys that escape root.
func (d *Disk) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if clean == string(filepath.Separator) {
		return "", storage.ErrInvalidKey
	}
	p := filepath.Join(d.root, clean)
	if !strings.HasPrefix(p, d.root+string(filepath.Separator)) {
		return "", storage.ErrInvalidKey
	}
	return p, nil
}

func mapErr(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return storage.ErrBlobNotFound
	}
	return err
}

type sectionReadCloser struct {
	io.Reader
	file *os.File
}

func (s *sectionReadCloser) Close() error {
	return s.file.Close()
}
