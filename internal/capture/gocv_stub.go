//go:build !gocv

package capture

import "errors"

// NewGocvCamera is unavailable unless the binary is built with -tags gocv.
func NewGocvCamera(deviceID, width, height, fps int) (Camera, error) {
	return nil, errors.New("gocv camera support not compiled in (build with -tags gocv)")
}
