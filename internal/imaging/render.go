package imaging

import (
	"github.com/prn-tf/alexander-assets/internal/domain"
)

// Render runs the variation pipeline on src: fit to the requested size,
// then for the circle shape mask and optionally draw a border, then encode.
// req must be normalized.
func Render(e Engine, src []byte, req domain.ResizeRequest) ([]byte, string, error) {
	img, err := e.Decode(src)
	if err != nil {
		return nil, "", err
	}

	img = e.FitResize(img, req.Width, req.Height)

	if req.Shape == domain.ShapeCircle {
		img = e.ApplyCircularMask(img)

		if req.HasBorder() {
			img, err = e.DrawBorder(img, req.BorderWidth, req.BorderColor)
			if err != nil {
				return nil, "", err
			}
		}
	}

	return e.Encode(img)
}
