// Package rover assembles the service: camera pipeline, latest-frame
// buffer, watchdog, motor board and network front end, and owns the
// startup and shutdown order.
package rover

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/junsooki/AirRover/internal/capture"
	"github.com/junsooki/AirRover/internal/config"
	"github.com/junsooki/AirRover/internal/control"
	"github.com/junsooki/AirRover/internal/encoder"
	"github.com/junsooki/AirRover/internal/framebuf"
	"github.com/junsooki/AirRover/internal/motor"
	"github.com/junsooki/AirRover/internal/peer"
	"github.com/junsooki/AirRover/internal/photo"
	"github.com/junsooki/AirRover/internal/server"
	"github.com/junsooki/AirRover/internal/stream"
	"github.com/junsooki/AirRover/internal/watchdog"
)

const shutdownTimeout = 5 * time.Second

// Deps are the hardware collaborators. Encoder may be nil to use JPEG with
// the configured quality and orientation.
type Deps struct {
	Camera  capture.Camera
	Board   motor.Motor
	Encoder encoder.Encoder
}

// Service is the running rover. It holds every shared component; nothing
// is reached through package globals.
type Service struct {
	cfg    *config.Config
	logger *zap.Logger

	camera     capture.Camera
	board      motor.Motor
	frames     *framebuf.Buffer
	processor  *stream.Processor
	loop       *capture.Loop
	watchdog   *watchdog.Watchdog
	dispatcher *control.Dispatcher
	viewers    *peer.Host
	http       *server.HTTPServer

	ready chan struct{}
	addr  net.Addr
}

// New opens the configured camera and motor board and builds the service.
// If either cannot be opened, anything already opened is made safe and
// released.
func New(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	board, err := openBoard(cfg, logger)
	if err != nil {
		return nil, err
	}

	camera, err := openCamera(cfg)
	if err != nil {
		motor.Reset(board)
		_ = board.Close()
		return nil, err
	}

	s, err := NewService(cfg, Deps{Camera: camera, Board: board}, logger)
	if err != nil {
		motor.Reset(board)
		_ = camera.Close()
		_ = board.Close()
		return nil, err
	}
	return s, nil
}

func openBoard(cfg *config.Config, logger *zap.Logger) (motor.Motor, error) {
	switch cfg.Motor {
	case "mqtt":
		b, err := motor.NewMQTTBoard(motor.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open motor board: %w", err)
		}
		return b, nil
	default:
		return motor.NewSimBoard(logger), nil
	}
}

func openCamera(cfg *config.Config) (capture.Camera, error) {
	var (
		camera capture.Camera
		err    error
	)
	switch cfg.Camera {
	case "gocv":
		camera, err = capture.NewGocvCamera(cfg.CameraDevice, cfg.ImageWidth, cfg.ImageHeight, cfg.FrameRate)
	default:
		camera, err = capture.NewSimCamera(cfg.ImageWidth, cfg.ImageHeight, cfg.FrameRate)
	}
	if err != nil {
		return nil, fmt.Errorf("open camera: %w", err)
	}
	return camera, nil
}

// NewService wires the service around already-opened collaborators.
func NewService(cfg *config.Config, deps Deps, logger *zap.Logger) (*Service, error) {
	enc := deps.Encoder
	if enc == nil {
		orientation, err := encoder.ParseOrientation(cfg.CameraRotation, cfg.FlipCamera)
		if err != nil {
			return nil, err
		}
		enc = encoder.NewJPEGEncoder(cfg.JPEGQuality, orientation)
	}

	s := &Service{
		cfg:    cfg,
		logger: logger,
		camera: deps.Camera,
		board:  deps.Board,
		frames: framebuf.New(),
		ready:  make(chan struct{}),
	}
	s.processor = stream.NewProcessor(enc, s.frames, logger)
	s.loop = capture.NewLoop(s.camera, s.processor, logger)
	s.watchdog = watchdog.New(s.board, cfg.WatchdogTimeout, cfg.BlinkInterval, logger)
	s.dispatcher = control.NewDispatcher(s.frames, s.board, photo.NewStore(cfg.PhotoDir, logger),
		s.watchdog, cfg.MaxPower(), logger)

	var viewers server.OfferHandler
	if cfg.WebRTC.Enabled {
		s.viewers = peer.NewHost(s.dispatcher, cfg.WebRTC.ICEServers, cfg.DisplayRate, logger)
		viewers = s.viewers
	}

	httpServer, err := server.NewHTTPServer(server.Options{
		Addr:         cfg.Addr(),
		ImageWidth:   cfg.ImageWidth,
		ImageHeight:  cfg.ImageHeight,
		DisplayRate:  cfg.DisplayRate,
		MaximumWidth: cfg.MaximumWidth,
	}, s.dispatcher, s.watchdog, viewers, logger)
	if err != nil {
		return nil, err
	}
	s.http = httpServer
	return s, nil
}

// Ready is closed once the listener is bound.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the bound listen address. Valid after Ready is closed.
func (s *Service) Addr() net.Addr {
	return s.addr
}

// Run starts every component and blocks until ctx is cancelled or the
// server fails, then shuts down in order: stop accepting requests, stop
// capture (which drains the processor), stop the watchdog, stop the motors,
// release the hardware.
func (s *Service) Run(ctx context.Context) error {
	motor.Reset(s.board)

	ln, err := s.http.Listen()
	if err != nil {
		s.logger.Error("cannot bind listen address", zap.String("addr", s.cfg.Addr()), zap.Error(err))
		s.release()
		return fmt.Errorf("listen: %w", err)
	}
	s.addr = ln.Addr()

	s.processor.Start()
	captureCtx, stopCapture := context.WithCancel(context.Background())
	defer stopCapture()
	go s.loop.Run(captureCtx)

	s.watchdog.Start(context.Background())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.http.Serve(ln)
	}()
	close(s.ready)
	s.logger.Info("rover ready", zap.Stringer("addr", s.addr))

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if err != nil {
			s.logger.Error("http server failed", zap.Error(err))
		}
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := s.http.Shutdown(shutdownCtx); shutdownErr != nil {
		s.logger.Warn("http shutdown", zap.Error(shutdownErr))
	}
	if s.viewers != nil {
		s.viewers.Close()
	}

	stopCapture()
	<-s.loop.Done()

	s.watchdog.Stop()
	s.release()
	s.logger.Info("shutdown complete")
	return err
}

// release leaves the motors stopped with the LED off and closes the
// hardware handles.
func (s *Service) release() {
	s.board.Stop()
	s.board.SetIndicatorLed(false)
	if err := s.camera.Close(); err != nil {
		s.logger.Warn("close camera", zap.Error(err))
	}
	if err := s.board.Close(); err != nil {
		s.logger.Warn("close motor board", zap.Error(err))
	}
}
