// Package imaging prepares uploaded images for the model backends.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"github.com/apex/log"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 90

// MaxPixels bounds the decoded size of an upload. Compressed formats can
// declare dimensions far beyond what the upload cap suggests.
const MaxPixels = 50_000_000

// ErrUndecodable is returned for uploads that are not a supported image.
var ErrUndecodable = errors.New("uploaded file is not a readable image")

// Image is a normalized upload ready to hand to a backend.
type Image struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
}

// Normalize decodes data, applies its EXIF orientation and shrinks it so
// neither side exceeds maxDim. JPEG and PNG uploads that need no change are
// passed through byte for byte. Lossless sources are re-encoded as PNG,
// everything else as JPEG.
func Normalize(data []byte, maxDim int) (Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return Image{}, fmt.Errorf("%w: %dx%d exceeds the %d pixel limit",
			ErrUndecodable, cfg.Width, cfg.Height, MaxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	orientation := 1
	if format == "jpeg" {
		orientation = Orientation(data)
	}

	bounds := img.Bounds()
	if orientation == 1 && fits(bounds, maxDim) && (format == "jpeg" || format == "png") {
		return Image{
			Data:     data,
			MimeType: "image/" + format,
			Width:    bounds.Dx(),
			Height:   bounds.Dy(),
		}, nil
	}

	if orientation != 1 {
		img = ApplyOrientation(img, orientation)
		log.Debugf("Applied EXIF orientation %d", orientation)
	}
	img = scaleToFit(img, maxDim)

	var buf bytes.Buffer
	mimeType := "image/jpeg"
	if isLossless(format) {
		mimeType = "image/png"
		err = png.Encode(&buf, img)
	} else {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality})
	}
	if err != nil {
		return Image{}, fmt.Errorf("failed to encode normalized image: %w", err)
	}

	out := img.Bounds()
	log.Debugf("Image normalized: %s %dx%d, %d bytes -> %s %dx%d, %d bytes",
		format, bounds.Dx(), bounds.Dy(), len(data), mimeType, out.Dx(), out.Dy(), buf.Len())

	return Image{
		Data:     buf.Bytes(),
		MimeType: mimeType,
		Width:    out.Dx(),
		Height:   out.Dy(),
	}, nil
}

// Orientation reads the EXIF orientation tag, defaulting to 1.
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// ApplyOrientation returns img transformed so that it displays upright for
// the given EXIF orientation value.
func ApplyOrientation(img image.Image, orientation int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.RGBA
	var at func(x, y int) (int, int)
	switch orientation {
	case 2:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		at = func(x, y int) (int, int) { return w - 1 - x, y }
	case 3:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		at = func(x, y int) (int, int) { return w - 1 - x, h - 1 - y }
	case 4:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		at = func(x, y int) (int, int) { return x, h - 1 - y }
	case 5:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		at = func(x, y int) (int, int) { return y, x }
	case 6:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		at = func(x, y int) (int, int) { return h - 1 - y, x }
	case 7:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		at = func(x, y int) (int, int) { return h - 1 - y, w - 1 - x }
	case 8:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		at = func(x, y int) (int, int) { return y, w - 1 - x }
	default:
		return img
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := at(x, y)
			dst.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

func fits(b image.Rectangle, maxDim int) bool {
	return b.Dx() <= maxDim && b.Dy() <= maxDim
}

func scaleToFit(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	if fits(b, maxDim) {
		return img
	}

	scale := float64(maxDim) / float64(b.Dx())
	if s := float64(maxDim) / float64(b.Dy()); s < scale {
		scale = s
	}
	w := clamp(int(float64(b.Dx())*scale+0.5), 1, maxDim)
	h := clamp(int(float64(b.Dy())*scale+0.5), 1, maxDim)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func isLossless(format string) bool {
	switch format {
	case "png", "gif", "bmp", "tiff":
		return true
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
