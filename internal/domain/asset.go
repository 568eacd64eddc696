package domain

import (
	"path"
	"strings"
	"time"
)

// LastUsedResolution is the minimum age of LastUsedAt before it is rewritten.
const LastUsedResolution = 24 * time.Hour

// Asset types derived from the first segment of the mimetype.
const (
	TypeImage = "image"
	TypeAudio = "audio"
	TypeVideo = "video"
)

// MimeSVG is excluded from resizing and delivered as a byte stream.
const MimeSVG = "image/svg+xml"

// Asset is a stored binary file and its metadata.
// An asset with a RootAssetID is derived from another asset (a variation).
type Asset struct {
	ID int64 `json:"id"`

	// RootAssetID references the asset this one was derived from. Nil for roots.
	RootAssetID *int64 `json:"root_asset_id,omitempty"`

	// UserID is an opaque owner reference; not interpreted here.
	UserID *int64 `json:"user_id,omitempty"`

	// Name is the original client filename.
	Name string `json:"name"`

	Mimetype string `json:"mimetype"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`

	// Disk is the name of the storage disk holding the blob.
	Disk string `json:"disk"`

	// Path is the blob location within Disk.
	Path string `json:"path"`

	// Hash is the hex MD5 fingerprint of the content.
	Hash string `json:"hash"`

	Width     *int     `json:"width,omitempty"`
	Height    *int     `json:"height,omitempty"`
	Framerate *float64 `json:"framerate,omitempty"`
	Duration  *float64 `json:"duration,omitempty"`

	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TypeFromMimetype returns the major type of a mimetype ("image/png" -> "image").
func TypeFromMimetype(mimetype string) string {
	major, _, _ := strings.Cut(mimetype, "/")
	return major
}

// IsRoot reports whether the asset was uploaded directly rather than derived.
func (a *Asset) IsRoot() bool {
	return a.RootAssetID == nil
}

// RootID returns the id of the root asset (the asset itself for roots).
func (a *Asset) RootID() int64 {
	if a.RootAssetID != nil {
		return *a.RootAssetID
	}
	return a.ID
}

func (a *Asset) IsImage() bool { return a.Type == TypeImage }
func (a *Asset) IsAudio() bool { return a.Type == TypeAudio }
func (a *Asset) IsVideo() bool { return a.Type == TypeVideo }
func (a *Asset) IsSVG() bool   { return a.Mimetype == MimeSVG }

// Resizable reports whether the variation engine can process this asset.
func (a *Asset) Resizable() bool {
	return a.IsImage() && !a.IsSVG()
}

// Extension returns the lowercase extension of Name without the dot.
func (a *Asset) Extension() string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(a.Name), "."))
}

// Dimensions returns the stored width and height, if both are known.
func (a *Asset) Dimensions() (width, height int, ok bool) {
	if a.Width == nil || a.Height == nil || *a.Width <= 0 || *a.Height <= 0 {
		return 0, 0, false
	}
	return *a.Width, *a.Height, true
}

// SetDimensions records probed width and height.
func (a *Asset) SetDimensions(width, height int) {
	a.Width = &width
	a.Height = &height
}

// NeedsLastUsedTouch reports whether LastUsedAt is unset or older than
// LastUsedResolution relative to now.
func (a *Asset) NeedsLastUsedTouch(now time.Time) bool {
	if a.LastUsedAt == nil {
		return true
	}
	return now.Sub(*a.LastUsedAt) > LastUsedResolution
}

// Metadata returns the media attributes that are set and apply to the
// asset type.
func (a *Asset) Metadata() map[string]any {
	meta := make(map[string]any)
	if a.Width != nil {
		meta["width"] = *a.Width
	}
	if a.Height != nil {
		meta["height"] = *a.Height
	}
	if a.IsVideo() && a.Framerate != nil {
		meta["framerate"] = *a.Framerate
	}
	if (a.IsAudio() || a.IsVideo()) && a.Duration != nil {
		meta["duration"] = *a.Duration
	}
	return meta
}
