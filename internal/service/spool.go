package service

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/prn-tf/alexander-assets/internal/domain"
	"github.com/prn-tf/alexander-assets/internal/pkg/crypto"
)

// extensionMimetypes overrides content sniffing for extensions it gets wrong.
var extensionMimetypes = map[string]string{
	"css":   "text/css",
	"html":  "text/html",
	"xhtml": "text/html",
	"htm":   "text/html",
	"mp3":   "audio/mpeg",
	"svg":   domain.MimeSVG,
}

// spooledFile is upload content copied to a local temp file together with
// its fingerprint.
type spooledFile struct {
	path     string
	filename string
	hash     string
	size     int64
	mimetype string
}

// spool copies r into a new file under dir while computing its MD5.
func spool(dir string, r io.Reader, filename string) (*spooledFile, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	tmpPath := filepath.Join(dir, "asset-"+uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	hr := crypto.NewHashReader(r)
	_, copyErr := io.Copy(f, hr)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		if copyErr != nil {
			return nil, fmt.Errorf("failed to spool upload: %w", copyErr)
		}
		return nil, fmt.Errorf("failed to spool upload: %w", closeErr)
	}

	sf := &spooledFile{
		path:     tmpPath,
		filename: filename,
		hash:     hr.MD5(),
		size:     hr.Size(),
	}
	if sf.size == 0 {
		sf.remove()
		return nil, domain.ErrEmptyUpload
	}

	sf.mimetype, err = detectMimetype(tmpPath, filename)
	if err != nil {
		sf.remove()
		return nil, err
	}
	return sf, nil
}

func (f *spooledFile) open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

func (f *spooledFile) remove() {
	_ = os.Remove(f.path)
}

// detectMimetype returns the mimetype of a local file without parameters.
// A handful of extensions are trusted over the content.
func detectMimetype(filePath, filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if mt, ok := extensionMimetypes[ext]; ok {
		return mt, nil
	}

	mt, err := mimetype.DetectFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to detect mimetype: %w", err)
	}
	base, _, _ := strings.Cut(mt.String(), ";")
	return strings.TrimSpace(base), nil
}
