// Package imaging decodes, resizes, masks and encodes raster images for
// asset variations.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"

	"github.com/fogleman/gg"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/prn-tf/alexander-assets/internal/domain"
)

// Formats produced by Encode.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatGIF  = "gif"
	FormatBMP  = "bmp"
	FormatTIFF = "tiff"
)

// maskInset is subtracted from the mask diameter so the edge stays inside the canvas.
const maskInset = 3

// Image is a decoded image handle together with the format it will be
// encoded to.
type Image struct {
	img    image.Image
	Format string
}

// Width returns the pixel width.
func (i *Image) Width() int { return i.img.Bounds().Dx() }

// Height returns the pixel height.
func (i *Image) Height() int { return i.img.Bounds().Dy() }

// Engine is the image transformation collaborator used by the variation service.
type Engine interface {
	Decode(data []byte) (*Image, error)
	FitResize(img *Image, width, height int) *Image
	ApplyCircularMask(img *Image) *Image
	DrawBorder(img *Image, borderWidth int, color string) (*Image, error)
	Encode(img *Image) ([]byte, string, error)
	Probe(r io.Reader) (width, height int, err error)
}

// Options configures the default engine.
type Options struct {
	// JPEGQuality is used when encoding JPEG output.
	JPEGQuality int
}

// DefaultOptions returns the default engine options.
func DefaultOptions() Options {
	return Options{JPEGQuality: 90}
}

type engine struct {
	opts Options
}

var _ Engine = (*engine)(nil)

// New returns an Engine backed by x/image and gg.
func New(opts Options) Engine {
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultOptions().JPEGQuality
	}
	return &engine{opts: opts}
}

// Decode implements Engine.
func (e *engine) Decode(data []byte) (*Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrTransformFailed, err)
	}
	return &Image{img: img, Format: format}, nil
}

// FitResize implements Engine. The source is center-cropped to the target
// aspect ratio and scaled to exactly width x height.
func (e *engine) FitResize(img *Image, width, height int) *Image {
	src := img.img.Bounds()
	crop := fitCrop(src, width, height)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img.img, crop, draw.Src, nil)

	return &Image{img: dst, Format: img.Format}
}

// ApplyCircularMask implements Engine. Pixels outside a centered circle
// become transparent and the output format is forced to PNG.
func (e *engine) ApplyCircularMask(img *Image) *Image {
	w, h := img.Width(), img.Height()

	dc := gg.NewContext(w, h)
	dc.DrawCircle(float64(w)/2, float64(h)/2, maskRadius(w, h))
	dc.Clip()
	dc.DrawImage(img.img, 0, 0)

	return &Image{img: dc.Image(), Format: FormatPNG}
}

// DrawBorder implements Engine. A ring of borderWidth pixels is stroked
// just inside the circular mask edge.
func (e *engine) DrawBorder(img *Image, borderWidth int, color string) (*Image, error) {
	if borderWidth < 1 {
		return img, nil
	}
	w, h := img.Width(), img.Height()

	radius := maskRadius(w, h) - float64(borderWidth)/2
	if radius <= 0 {
		radius = maskRadius(w, h) / 2
	}

	dc := gg.NewContextForImage(img.img)
	dc.SetHexColor(color)
	dc.SetLineWidth(float64(borderWidth))
	dc.DrawCircle(float64(w)/2, float64(h)/2, radius)
	dc.Stroke()

	return &Image{img: dc.Image(), Format: img.Format}, nil
}

// Encode implements Engine. Formats without an encoder fall back to PNG.
func (e *engine) Encode(img *Image) ([]byte, string, error) {
	var buf bytes.Buffer
	var err error

	format := img.Format
	switch format {
	case FormatJPEG:
		err = jpeg.Encode(&buf, img.img, &jpeg.Options{Quality: e.opts.JPEGQuality})
	case FormatGIF:
		err = gif.Encode(&buf, img.img, nil)
	case FormatBMP:
		err = bmp.Encode(&buf, img.img)
	case FormatTIFF:
		err = tiff.Encode(&buf, img.img, nil)
	default:
		format = FormatPNG
		err = png.Encode(&buf, img.img)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: encode %s: %v", domain.ErrTransformFailed, format, err)
	}
	return buf.Bytes(), ContentType(format), nil
}

// Probe implements Engine.
func (e *engine) Probe(r io.Reader) (int, int, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// ContentType returns the mimetype of an encoder format.
func ContentType(format string) string {
	switch format {
	case FormatJPEG:
		return "image/jpeg"
	case FormatGIF:
		return "image/gif"
	case FormatBMP:
		return "image/bmp"
	case FormatTIFF:
		return "image/tiff"
	default:
		return "image/png"
	}
}

// Extension returns the file extension for an encoded content type.
func Extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return "jpg"
	case "image/gif":
		return "gif"
	case "image/bmp":
		return "bmp"
	case "image/tiff":
		return "tiff"
	case "image/png":
		return "png"
	default:
		return ""
	}
}

// fitCrop returns the largest centered rectangle of src with the aspect
// ratio width:height.
func fitCrop(src image.Rectangle, width, height int) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()

	cw, ch := sw, sh
	if sw*height > sh*width {
		cw = int(math.Round(float64(sh) * float64(width) / float64(height)))
	} else {
		ch = int(math.Round(float64(sw) * float64(height) / float64(width)))
	}
	cw = max(cw, 1)
	ch = max(ch, 1)

	x0 := src.Min.X + (sw-cw)/2
	y0 := src.Min.Y + (sh-ch)/2
	return image.Rect(x0, y0, x0+cw, y0+ch)
}

func maskRadius(w, h int) float64 {
	side := min(w, h)
	if side > maskInset {
		side -= maskInset
	}
	return float64(side) / 2
}
