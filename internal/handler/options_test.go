package handler

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/prn-tf/alexander-assets/internal/domain"
)

func TestParseResizeRequest_Size(t *testing.T) {
	withDims := &domain.Asset{}
	withDims.SetDimensions(200, 100)
	noDims := &domain.Asset{}

	tests := []struct {
		name   string
		query  string
		asset  *domain.Asset
		width  int
		height int
	}{
		{"shape circle with size", "shape=circle&size=50", withDims, 50, 50},
		{"shape square with size", "shape=square&size=64&width=10&height=20", withDims, 64, 64},
		{"shape without size falls through", "shape=circle&width=10&height=20", withDims, 10, 20},
		{"zero size falls through", "shape=square&size=0&square=30", withDims, 30, 30},
		{"unknown shape ignores size", "shape=star&size=50", withDims, 0, 0},
		{"square param", "square=30", withDims, 30, 30},
		{"circle param", "circle=40", withDims, 40, 40},
		{"square wins over width and height", "square=30&width=10&height=20", withDims, 30, 30},
		{"width and height", "width=10&height=20", withDims, 10, 20},
		{"width only", "width=50", withDims, 50, 25},
		{"width only rounds up", "width=33", withDims, 33, 17},
		{"height only", "height=30", withDims, 60, 30},
		{"width only without dimensions", "width=50", noDims, 0, 0},
		{"nothing", "", withDims, 0, 0},
		{"garbage square", "square=abc", withDims, 0, 0},
		{"trailing garbage", "width=12px&height=8px", withDims, 12, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			assert.NoError(t, err)

			req := ParseResizeRequest(q, tt.asset)
			assert.Equal(t, tt.width, req.Width)
			assert.Equal(t, tt.height, req.Height)
		})
	}
}

func TestParseResizeRequest_Options(t *testing.T) {
	asset := &domain.Asset{}

	req := ParseResizeRequest(url.Values{
		ParamShape:       {"circle"},
		ParamSize:        {"40"},
		ParamBorderWidth: {"3"},
		ParamBorderColor: {"ff0000"},
	}, asset)
	assert.Equal(t, domain.ShapeCircle, req.Shape)
	assert.Equal(t, 3, req.BorderWidth)
	assert.Equal(t, "#ff0000", req.BorderColor)
	assert.False(t, req.Refresh)

	req = ParseResizeRequest(url.Values{ParamBorderColor: {"#00ff00"}}, asset)
	assert.Equal(t, "#00ff00", req.BorderColor)

	tests := []struct {
		query   string
		refresh bool
	}{
		{"cache=0", true},
		{"cache=", true},
		{"cache=1", false},
		{"", false},
	}
	for _, tt := range tests {
		q, _ := url.ParseQuery(tt.query)
		assert.Equal(t, tt.refresh, ParseResizeRequest(q, asset).Refresh, tt.query)
	}
}

func TestIntval(t *testing.T) {
	tests := map[string]int{
		"":      0,
		"12":    12,
		"12px":  12,
		" 7":    7,
		"-3":    -3,
		"+4":    4,
		"abc":   0,
		"1.5":   1,
		"00010": 10,
	}
	for in, want := range tests {
		assert.Equal(t, want, intval(in), in)
	}
}
