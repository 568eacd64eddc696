package handler

import (
	"net/url"
	"strings"

	"github.com/prn-tf/alexander-assets/internal/domain"
)

// Query parameters accepted by the asset view endpoint.
const (
	ParamShape       = "shape"
	ParamSquare      = "square"
	ParamCircle      = "circle"
	ParamSize        = "size"
	ParamWidth       = "width"
	ParamHeight      = "height"
	ParamBorderWidth = "borderWidth"
	ParamBorderColor = "borderColor"
	ParamCache       = "cache"
)

// ParseResizeRequest builds the resize request for an image view from the
// query string. The target size is picked by the first matching rule:
//
//  1. shape=square|circle with size: size x size
//  2. square: square x square
//  3. circle: circle x circle
//  4. width and height
//  5. width or height alone: the other side follows the asset's aspect
//     ratio, rounded up; nothing when the asset has no dimensions
//  6. otherwise no resize
func ParseResizeRequest(q url.Values, asset *domain.Asset) domain.ResizeRequest {
	req := domain.ResizeRequest{
		Shape:       q.Get(ParamShape),
		BorderWidth: intval(q.Get(ParamBorderWidth)),
		BorderColor: q.Get(ParamBorderColor),
	}
	req.Width, req.Height = targetSize(q, asset)

	if req.BorderColor != "" && !strings.HasPrefix(req.BorderColor, "#") {
		req.BorderColor = "#" + req.BorderColor
	}

	if q.Has(ParamCache) && intval(q.Get(ParamCache)) == 0 {
		req.Refresh = true
	}

	return req
}

func targetSize(q url.Values, asset *domain.Asset) (int, int) {
	switch shape := q.Get(ParamShape); shape {
	case domain.ShapeSquare, domain.ShapeCircle:
		if size := q.Get(ParamSize); truthy(size) {
			return intval(size), intval(size)
		}
	}

	if v := q.Get(ParamSquare); truthy(v) {
		return intval(v), intval(v)
	}
	if v := q.Get(ParamCircle); truthy(v) {
		return intval(v), intval(v)
	}

	width, height := q.Get(ParamWidth), q.Get(ParamHeight)
	switch {
	case truthy(width) && truthy(height):
		return intval(width), intval(height)
	case truthy(width) || truthy(height):
		w, h, ok := asset.Dimensions()
		if !ok {
			return 0, 0
		}
		if truthy(width) {
			t := intval(width)
			return t, ceilScale(t, h, w)
		}
		t := intval(height)
		return ceilScale(t, w, h), t
	}

	return 0, 0
}

// ceilScale returns ceil(target * other / side) for positive target.
func ceilScale(target, other, side int) int {
	if target <= 0 {
		return 0
	}
	return (target*other + side - 1) / side
}

// truthy reports whether a query value counts as set: not empty and not "0".
func truthy(v string) bool {
	return v != "" && v != "0"
}

// intval parses the leading integer of s, ignoring leading whitespace and
// trailing garbage. Anything unparsable is 0.
func intval(s string) int {
	s = strings.TrimLeft(s, " \t\n\r\v\f")

	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}

	n := 0
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
		if n > 1<<30 {
			n = 1 << 30
			break
		}
	}
	if neg {
		return -n
	}
	return n
}
