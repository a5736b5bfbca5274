// Package control implements the remote operations shared by every
// transport: frame snapshots, drive commands, photos and status reports.
package control

import (
	"go.uber.org/zap"

	"github.com/junsooki/AirRover/internal/drive"
	"github.com/junsooki/AirRover/internal/encoder"
	"github.com/junsooki/AirRover/internal/metrics"
)

// PhotoFailedText is reported whenever a photo cannot be saved.
const PhotoFailedText = "Failed to take photo!"

// FrameSource provides the latest encoded frame.
type FrameSource interface {
	Snapshot() (*encoder.Frame, bool)
}

// Board is the motor capability the dispatcher needs.
type Board interface {
	SetDriveOutputs(left, right float64)
	SetSteering(position float64)
	DriveOutputs() (left, right float64)
	Steering() float64
}

// Pulser receives liveness pulses.
type Pulser interface {
	Pulse()
}

// PhotoSaver persists a frame and returns where it went.
type PhotoSaver interface {
	Save(frame *encoder.Frame) (string, error)
}

// PhotoResult is the outcome of a photo request.
type PhotoResult struct {
	Saved   bool   `json:"saved"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Dispatcher executes remote requests against the rover.
type Dispatcher struct {
	frames   FrameSource
	board    Board
	photos   PhotoSaver
	watchdog Pulser
	maxPower float64
	logger   *zap.Logger
}

// NewDispatcher wires the dispatcher. maxPower scales mapped drive outputs.
func NewDispatcher(frames FrameSource, board Board, photos PhotoSaver, watchdog Pulser, maxPower float64, logger *zap.Logger) *Dispatcher {
	if maxPower <= 0 || maxPower > 1 {
		maxPower = 1
	}
	return &Dispatcher{
		frames:   frames,
		board:    board,
		photos:   photos,
		watchdog: watchdog,
		maxPower: maxPower,
		logger:   logger.Named("control"),
	}
}

// Pulse tells the watchdog a request arrived. Transports call it before
// parsing, so malformed requests still count as activity.
func (d *Dispatcher) Pulse() {
	d.watchdog.Pulse()
}

// Frame returns the latest encoded frame, if any.
func (d *Dispatcher) Frame() (*encoder.Frame, bool) {
	return d.frames.Snapshot()
}

// Drive clamps cmd, maps it to motor outputs, applies them and reports the
// resulting status.
func (d *Dispatcher) Drive(cmd drive.Command, source string) drive.Status {
	out := cmd.Clamped().Map()

	d.board.SetDriveOutputs(out.Left*d.maxPower, out.Right*d.maxPower)
	d.board.SetSteering(out.Servo)
	metrics.DriveCommands.WithLabelValues(source).Inc()

	d.logger.Debug("drive",
		zap.String("source", source),
		zap.Float64("speed", cmd.Speed),
		zap.Float64("steering", cmd.Steering),
	)
	return d.Status()
}

// Photo saves the current frame. Failures are reported in the result, never
// returned as errors.
func (d *Dispatcher) Photo() PhotoResult {
	frame, _ := d.frames.Snapshot()
	path, err := d.photos.Save(frame)
	if err != nil {
		metrics.Photos.WithLabelValues("failed").Inc()
		d.logger.Warn("photo failed", zap.Error(err))
		return PhotoResult{Message: PhotoFailedText}
	}
	metrics.Photos.WithLabelValues("saved").Inc()
	return PhotoResult{Saved: true, Path: path, Message: "Photo saved to " + path}
}

// Status reads the board back and reports percentages of the power limit.
func (d *Dispatcher) Status() drive.Status {
	left, right := d.board.DriveOutputs()
	return drive.NewStatus(left, right, d.board.Steering(), d.maxPower)
}
