package encoder

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junsooki/AirRover/internal/capture"
)

func newRaw(w, h int) *capture.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 7, A: 255})
		}
	}
	return &capture.Frame{Image: img, Width: w, Height: h, Timestamp: time.Unix(1700000000, 0)}
}

func TestJPEGEncoder_Encode(t *testing.T) {
	enc := NewJPEGEncoder(80, Rotate0)
	raw := newRaw(32, 16)

	out, err := enc.Encode(raw)
	require.NoError(t, err)
	assert.Equal(t, 32, out.Width)
	assert.Equal(t, 16, out.Height)
	assert.Equal(t, raw.Timestamp, out.Timestamp)

	img, err := jpeg.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 16), img.Bounds())
}

func TestJPEGEncoder_Rotated(t *testing.T) {
	enc := NewJPEGEncoder(80, Rotate90)

	out, err := enc.Encode(newRaw(32, 16))
	require.NoError(t, err)
	assert.Equal(t, 16, out.Width)
	assert.Equal(t, 32, out.Height)
}

func TestJPEGEncoder_BadGeometry(t *testing.T) {
	enc := NewJPEGEncoder(80, Rotate180)

	tests := []struct {
		name string
		raw  *capture.Frame
	}{
		{"nil frame", nil},
		{"nil image", &capture.Frame{Width: 4, Height: 4}},
		{"size mismatch", &capture.Frame{Image: image.NewRGBA(image.Rect(0, 0, 4, 4)), Width: 8, Height: 4}},
		{"empty", &capture.Frame{Image: image.NewRGBA(image.Rect(0, 0, 0, 0))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.Encode(tt.raw)
			var encErr *EncodeError
			require.True(t, errors.As(err, &encErr))
			assert.Equal(t, "geometry", encErr.Op)
		})
	}
}

func TestNewJPEGEncoder_ClampsQuality(t *testing.T) {
	assert.Equal(t, 1, NewJPEGEncoder(-5, Rotate0).quality)
	assert.Equal(t, 100, NewJPEGEncoder(250, Rotate0).quality)
}
