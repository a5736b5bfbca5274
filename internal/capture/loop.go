package capture

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/junsooki/AirRover/internal/metrics"
)

// retryDelay is how long the loop backs off after a failed frame request.
const retryDelay = 100 * time.Millisecond

// Processor is the consumer half of the capture pipeline.
type Processor interface {
	// Frames is the hand-off channel. It has capacity 1.
	Frames() chan<- *Frame
	// Drained receives one value per frame once that frame has been consumed.
	Drained() <-chan struct{}
	// Terminate stops the processor and waits for it to exit.
	Terminate()
}

// Loop requests frames from a Camera and hands them to a Processor,
// keeping at most one frame in flight.
type Loop struct {
	camera Camera
	proc   Processor
	logger *zap.Logger
	done   chan struct{}
}

// NewLoop creates a capture loop feeding proc from camera.
func NewLoop(camera Camera, proc Processor, logger *zap.Logger) *Loop {
	return &Loop{
		camera: camera,
		proc:   proc,
		logger: logger.Named("capture"),
		done:   make(chan struct{}),
	}
}

// Run drives the camera until ctx is cancelled or the camera is closed.
// Before returning it terminates the processor and waits for it, so no
// encode work is in flight once Run has returned.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	defer func() {
		l.logger.Info("terminating camera processing")
		l.proc.Terminate()
		l.logger.Info("processing terminated")
	}()

	l.logger.Info("capture loop started")
	in := l.proc.Frames()
	drained := l.proc.Drained()

	for ctx.Err() == nil {
		frame, err := l.camera.RequestFrame(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrCameraClosed) {
				return
			}
			metrics.CaptureFailures.Inc()
			l.logger.Warn("frame request failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			continue
		}
		metrics.FramesCaptured.Inc()

		select {
		case in <- frame:
		case <-ctx.Done():
			frame.Release()
			return
		}

		select {
		case <-drained:
		case <-ctx.Done():
			return
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
