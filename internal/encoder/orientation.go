package encoder

import (
	"fmt"
	"image"
)

// Orientation is a clockwise rotation applied before compression.
type Orientation int

const (
	Rotate0   Orientation = 0
	Rotate90  Orientation = 90
	Rotate180 Orientation = 180
	Rotate270 Orientation = 270
)

// ParseOrientation converts degrees into an Orientation. flipped adds a half turn.
func ParseOrientation(degrees int, flipped bool) (Orientation, error) {
	if flipped {
		degrees += 180
	}
	degrees = ((degrees % 360) + 360) % 360
	switch Orientation(degrees) {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return Orientation(degrees), nil
	}
	return 0, fmt.Errorf("rotation must be a multiple of 90, got %d", degrees)
}

// Rotate returns src rotated clockwise by o. Rotate0 returns src itself;
// every other orientation allocates a new image and leaves src untouched.
func Rotate(src *image.RGBA, o Orientation) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.RGBA
	var at func(x, y int) (int, int)
	switch o {
	case Rotate90:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		at = func(x, y int) (int, int) { return h - 1 - y, x }
	case Rotate180:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		at = func(x, y int) (int, int) { return w - 1 - x, h - 1 - y }
	case Rotate270:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		at = func(x, y int) (int, int) { return y, w - 1 - x }
	default:
		return src
	}

	for y := 0; y < h; y++ {
		srow := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < w; x++ {
			dx, dy := at(x, y)
			copy(dst.Pix[dy*dst.Stride+dx*4:dy*dst.Stride+dx*4+4], srow[x*4:x*4+4])
		}
	}
	return dst
}
