package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAsset_NeedsLastUsedTouch(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name     string
		lastUsed *time.Time
		want     bool
	}{
		{name: "never used", lastUsed: nil, want: true},
		{name: "used an hour ago", lastUsed: at(time.Hour), want: false},
		{name: "used exactly a day ago", lastUsed: at(24 * time.Hour), want: false},
		{name: "used two days ago", lastUsed: at(48 * time.Hour), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Asset{LastUsedAt: tt.lastUsed}
			assert.Equal(t, tt.want, a.NeedsLastUsedTouch(now))
		})
	}
}

func TestAsset_TypePredicates(t *testing.T) {
	png := &Asset{Mimetype: "image/png", Type: TypeFromMimetype("image/png"), Name: "Photo.PNG"}
	svg := &Asset{Mimetype: MimeSVG, Type: TypeFromMimetype(MimeSVG)}
	mp3 := &Asset{Mimetype: "audio/mpeg", Type: TypeFromMimetype("audio/mpeg")}

	assert.True(t, png.IsImage())
	assert.True(t, png.Resizable())
	assert.Equal(t, "png", png.Extension())

	assert.True(t, svg.IsImage())
	assert.False(t, svg.Resizable())

	assert.True(t, mp3.IsAudio())
	assert.False(t, mp3.IsVideo())
	assert.False(t, mp3.Resizable())

	mp4 := &Asset{Mimetype: "video/mp4", Type: TypeFromMimetype("video/mp4")}
	assert.True(t, mp4.IsVideo())
	assert.False(t, mp4.IsImage())
}

func TestAsset_RootID(t *testing.T) {
	root := &Asset{ID: 7}
	assert.True(t, root.IsRoot())
	assert.Equal(t, int64(7), root.RootID())

	rootID := int64(7)
	derived := &Asset{ID: 9, RootAssetID: &rootID}
	assert.False(t, derived.IsRoot())
	assert.Equal(t, int64(7), derived.RootID())
}

func TestAsset_Dimensions(t *testing.T) {
	a := &Asset{}
	_, _, ok := a.Dimensions()
	assert.False(t, ok)

	a.SetDimensions(300, 200)
	w, h, ok := a.Dimensions()
	assert.True(t, ok)
	assert.Equal(t, 300, w)
	assert.Equal(t, 200, h)
	assert.Equal(t, map[string]any{"width": 300, "height": 200}, a.Metadata())
}

func TestAsset_Metadata(t *testing.T) {
	fps, secs := 30.0, 12.5
	width, height := 640, 480

	tests := []struct {
		name  string
		asset *Asset
		want  map[string]any
	}{
		{
			name:  "video",
			asset: &Asset{Type: TypeVideo, Width: &width, Height: &height, Framerate: &fps, Duration: &secs},
			want:  map[string]any{"width": 640, "height": 480, "framerate": 30.0, "duration": 12.5},
		},
		{
			name:  "audio drops framerate",
			asset: &Asset{Type: TypeAudio, Framerate: &fps, Duration: &secs},
			want:  map[string]any{"duration": 12.5},
		},
		{
			name:  "image keeps dimensions only",
			asset: &Asset{Type: TypeImage, Width: &width, Height: &height, Duration: &secs},
			want:  map[string]any{"width": 640, "height": 480},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.asset.Metadata())
		})
	}
}
