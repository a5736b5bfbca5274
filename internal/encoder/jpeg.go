package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"

	"github.com/junsooki/AirRover/internal/capture"
)

// JPEGEncoder encodes frames as JPEG after applying a fixed orientation.
// It holds no mutable state and is safe for concurrent use.
type JPEGEncoder struct {
	quality     int
	orientation Orientation
}

// NewJPEGEncoder creates a JPEG encoder with the given quality (1-100).
func NewJPEGEncoder(quality int, orientation Orientation) *JPEGEncoder {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	return &JPEGEncoder{quality: quality, orientation: orientation}
}

func (e *JPEGEncoder) Encode(raw *capture.Frame) (*Frame, error) {
	if err := checkGeometry(raw); err != nil {
		return nil, &EncodeError{Op: "geometry", Err: err}
	}

	img := Rotate(raw.Image, e.orientation)

	var buf bytes.Buffer
	buf.Grow(img.Bounds().Dx() * img.Bounds().Dy() / 4)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, &EncodeError{Op: "jpeg", Err: err}
	}
	return &Frame{
		Data:      buf.Bytes(),
		Width:     img.Bounds().Dx(),
		Height:    img.Bounds().Dy(),
		Timestamp: raw.Timestamp,
	}, nil
}

func checkGeometry(raw *capture.Frame) error {
	if raw == nil || raw.Image == nil {
		return errors.New("no image data")
	}
	b := raw.Image.Bounds()
	if b.Empty() {
		return errors.New("empty image")
	}
	if b.Dx() != raw.Width || b.Dy() != raw.Height {
		return fmt.Errorf("bounds %dx%d do not match frame %dx%d", b.Dx(), b.Dy(), raw.Width, raw.Height)
	}
	if raw.Image.Stride < b.Dx()*4 || len(raw.Image.Pix) < raw.Image.Stride*(b.Dy()-1)+b.Dx()*4 {
		return errors.New("pixel buffer too short")
	}
	return nil
}
