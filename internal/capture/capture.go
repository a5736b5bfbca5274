package capture

import (
	"context"
	"errors"
	"image"
	"time"
)

// ErrCameraClosed is returned by RequestFrame after Close.
var ErrCameraClosed = errors.New("camera closed")

// Frame represents a raw captured camera frame.
//
// A Frame is owned by the capture loop until it is handed to the stream
// processor, and must not be used after Release.
type Frame struct {
	Image     *image.RGBA
	Width     int
	Height    int
	Timestamp time.Time

	release func(*Frame)
}

// NewFrame wraps img as a raw frame. release, if non-nil, is called once
// when the consumer is done with the pixels.
func NewFrame(img *image.RGBA, ts time.Time, release func(*Frame)) *Frame {
	b := img.Bounds()
	return &Frame{
		Image:     img,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Timestamp: ts,
		release:   release,
	}
}

// Release returns the frame's pixel buffer to its camera for reuse.
func (f *Frame) Release() {
	if f == nil || f.release == nil {
		return
	}
	r := f.release
	f.release = nil
	r(f)
}

// Camera produces raw frames one at a time.
type Camera interface {
	// RequestFrame blocks until the next raw frame is available.
	RequestFrame(ctx context.Context) (*Frame, error)
	Close() error
}

// MaxReadTimeout caps one blocking camera read, which in turn bounds how
// long the capture loop can take to notice shutdown.
const MaxReadTimeout = time.Second

// ReadTimeout is the per-read deadline for a camera running at fps: two
// frame periods, never more than MaxReadTimeout.
func ReadTimeout(fps int) time.Duration {
	if fps <= 0 {
		return MaxReadTimeout
	}
	d := 2 * time.Second / time.Duration(fps)
	if d > MaxReadTimeout {
		return MaxReadTimeout
	}
	return d
}
