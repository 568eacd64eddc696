// Package pathgen computes storage paths for asset blobs.
package pathgen

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/prn-tf/alexander-assets/internal/domain"
	"github.com/prn-tf/alexander-assets/internal/pkg/crypto"
)

// Strategy names accepted in configuration.
const (
	ClientFilename      = "client_filename"
	GroupedID           = "grouped_id"
	GroupedRandomPrefix = "grouped_random_prefix"
)

// DefaultUploadFolder is the folder the grouped strategies place blobs under.
const DefaultUploadFolder = "assets"

// randomNameLength is the length of the random file name component.
const randomNameLength = 8

// Subject carries everything a strategy needs to place a blob.
type Subject struct {
	// Asset must already have an ID.
	Asset *domain.Asset

	// Filename is the client-supplied file name, used for the extension.
	Filename string

	// VariationCount is the number of variations the root asset currently has.
	VariationCount int64
}

// Generator computes the blob path of an asset.
type Generator interface {
	// Name returns the configured strategy name.
	Name() string

	// Generate returns a slash-separated path relative to the disk root.
	Generate(s Subject) string
}

// Option configures a generator.
type Option func(*options)

type options struct {
	folder string
	random func(int) string
}

// WithUploadFolder overrides DefaultUploadFolder.
func WithUploadFolder(folder string) Option {
	return func(o *options) {
		o.folder = strings.Trim(folder, "/")
	}
}

// WithRandom replaces the random name source.
func WithRandom(fn func(int) string) Option {
	return func(o *options) {
		o.random = fn
	}
}

// New returns the generator for a strategy name.
func New(strategy string, opts ...Option) (Generator, error) {
	o := options{
		folder: DefaultUploadFolder,
		random: crypto.MustRandomName,
	}
	for _, opt := range opts {
		opt(&o)
	}

	switch strategy {
	case ClientFilename:
		return clientFilename{}, nil
	case GroupedID:
		return groupedID{opts: o}, nil
	case GroupedRandomPrefix:
		return groupedRandomPrefix{opts: o}, nil
	default:
		return nil, domain.NewDomainError(domain.ErrInvalidPathGenerator, "unknown strategy", strategy)
	}
}

// Valid reports whether strategy names a known generator.
func Valid(strategy string) bool {
	switch strategy {
	case ClientFilename, GroupedID, GroupedRandomPrefix:
		return true
	}
	return false
}

// =============================================================================
// Strategies
// =============================================================================

// clientFilename produces "{id:6}-{escaped name}.{ext}".
type clientFilename struct{}

func (clientFilename) Name() string { return ClientFilename }

func (clientFilename) Generate(s Subject) string {
	ext := extension(s.Filename)
	base := strings.TrimSuffix(path.Base(s.Filename), path.Ext(s.Filename))

	name := fmt.Sprintf("%06d-%s", s.Asset.ID, EscapeFilename(base))
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// groupedID places blobs in "{folder}/{FolderFromID(root)}/". Roots get a
// random name; variations are prefixed with "v{count}-".
type groupedID struct {
	opts options
}

func (groupedID) Name() string { return GroupedID }

func (g groupedID) Generate(s Subject) string {
	return path.Join(g.opts.folder, FolderFromID(s.Asset.RootID()), filename(s, g.opts.random))
}

// groupedRandomPrefix places blobs in "{folder}/{md5(id)[7:11]}/{id}/".
type groupedRandomPrefix struct {
	opts options
}

func (groupedRandomPrefix) Name() string { return GroupedRandomPrefix }

func (g groupedRandomPrefix) Generate(s Subject) string {
	id := s.Asset.RootID()
	return path.Join(g.opts.folder, RandomPrefixFolder(id), filename(s, g.opts.random))
}

// =============================================================================
// Helpers
// =============================================================================

// FolderFromID splits an id into a three level folder path: the id is
// zero-padded to 9 digits and split 3/3/3, with any digits beyond nine kept
// on the first segment. 1 -> 000/000/001, 1000100100100 -> 1000100/100/100.
func FolderFromID(id int64) string {
	s := strconv.FormatInt(id, 10)
	if len(s) < 9 {
		s = strings.Repeat("0", 9-len(s)) + s
	}
	n := len(s)
	return s[:n-6] + "/" + s[n-6:n-3] + "/" + s[n-3:]
}

// RandomPrefixFolder returns "{md5(id)[7:11]}/{id}".
func RandomPrefixFolder(id int64) string {
	s := strconv.FormatInt(id, 10)
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[7:11] + "/" + s
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// EscapeFilename replaces runs of unsafe characters with a dash.
func EscapeFilename(name string) string {
	escaped := strings.Trim(unsafeFilenameChars.ReplaceAllString(name, "-"), "-.")
	if escaped == "" {
		return "file"
	}
	return escaped
}

func filename(s Subject, random func(int) string) string {
	name := random(randomNameLength)
	if !s.Asset.IsRoot() {
		name = fmt.Sprintf("v%d-%s", s.VariationCount, name)
	}
	if ext := extension(s.Filename); ext != "" {
		name += "." + ext
	}
	return name
}

func extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
}
