package domain

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/prn-tf/alexander-assets/internal/pkg/crypto"
)

// Shapes understood by the variation engine.
const (
	ShapeSquare = "square"
	ShapeCircle = "circle"
)

// MaxVariationNameLength is the storage limit for variation names.
// Longer names are replaced by their MD5 hex digest.
const MaxVariationNameLength = 32

// DefaultBorderColor is used when a border is requested with a missing or
// malformed color.
const DefaultBorderColor = "#000"

var borderColorPattern = regexp.MustCompile(`(?i)^#[a-f0-9]{6}$`)

// ResizeRequest describes a requested image variation.
type ResizeRequest struct {
	Width       int
	Height      int
	Shape       string
	BorderWidth int
	BorderColor string

	// Refresh discards an existing variation and renders it again.
	Refresh bool
}

// HasSize reports whether both target dimensions are positive.
func (r ResizeRequest) HasSize() bool {
	return r.Width > 0 && r.Height > 0
}

// HasBorder reports whether a border is drawn (circle shape only).
func (r ResizeRequest) HasBorder() bool {
	return r.Shape == ShapeCircle && r.BorderWidth > 0
}

// Normalize applies the border rules: a width below 1 drops the border
// entirely, and an invalid color falls back to DefaultBorderColor.
func (r ResizeRequest) Normalize() ResizeRequest {
	if r.BorderWidth < 1 {
		r.BorderWidth = 0
		r.BorderColor = ""
		return r
	}
	if !borderColorPattern.MatchString(r.BorderColor) {
		r.BorderColor = DefaultBorderColor
	}
	return r
}

// VariationName derives the deterministic variation name of a normalized
// request, e.g. "resized:100:100:circle:bw-4:bc-#ff0000".
func (r ResizeRequest) VariationName() string {
	var b strings.Builder
	b.WriteString("resized:")
	b.WriteString(strconv.Itoa(r.Width))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(r.Height))
	if r.Shape != "" {
		b.WriteByte(':')
		b.WriteString(r.Shape)
	}
	if r.BorderWidth > 0 {
		b.WriteString(":bw-")
		b.WriteString(strconv.Itoa(r.BorderWidth))
	}
	if r.BorderColor != "" {
		b.WriteString(":bc-")
		b.WriteString(r.BorderColor)
	}

	name := b.String()
	if len(name) > MaxVariationNameLength {
		return crypto.ComputeMD5([]byte(name))
	}
	return name
}
