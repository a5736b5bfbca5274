//go:build gocv

package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// OpenCV's CAP_PROP_OPEN_TIMEOUT_MSEC and CAP_PROP_READ_TIMEOUT_MSEC.
// Backends without timeout support ignore them.
const (
	videoCaptureOpenTimeoutMsec gocv.VideoCaptureProperties = 53
	videoCaptureReadTimeoutMsec gocv.VideoCaptureProperties = 54
)

// GocvCamera reads frames from a V4L2/USB camera through OpenCV.
type GocvCamera struct {
	mu     sync.Mutex
	webcam *gocv.VideoCapture
	mat    gocv.Mat
	rgba   gocv.Mat
	width  int
	height int
	closed bool
}

// NewGocvCamera opens the camera at deviceID and requests the given geometry and rate.
func NewGocvCamera(deviceID, width, height, fps int) (Camera, error) {
	webcam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("open video capture %d: %w", deviceID, err)
	}
	webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	webcam.Set(gocv.VideoCaptureFPS, float64(fps))
	timeout := float64(ReadTimeout(fps).Milliseconds())
	webcam.Set(videoCaptureOpenTimeoutMsec, timeout)
	webcam.Set(videoCaptureReadTimeoutMsec, timeout)

	return &GocvCamera{
		webcam: webcam,
		mat:    gocv.NewMat(),
		rgba:   gocv.NewMat(),
		width:  width,
		height: height,
	}, nil
}

func (c *GocvCamera) RequestFrame(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCameraClosed
	}
	if ok := c.webcam.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, fmt.Errorf("camera read failed")
	}
	if c.mat.Cols() != c.width || c.mat.Rows() != c.height {
		gocv.Resize(c.mat, &c.mat, image.Point{X: c.width, Y: c.height}, 0, 0, gocv.InterpolationDefault)
	}
	gocv.CvtColor(c.mat, &c.rgba, gocv.ColorBGRToRGBA)

	img, err := c.rgba.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	rgba, ok := img.(*image.RGBA)
	if !ok {
		return nil, fmt.Errorf("unexpected image type %T", img)
	}
	return NewFrame(rgba, time.Now(), nil), nil
}

func (c *GocvCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.mat.Close()
	c.rgba.Close()
	return c.webcam.Close()
}
