// Package server exposes the rover over HTTP: the browser control pages,
// frame snapshots, drive and photo requests, a websocket control channel
// and the WebRTC viewer endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/junsooki/AirRover/internal/control"
	"github.com/junsooki/AirRover/internal/drive"
	"github.com/junsooki/AirRover/internal/encoder"
	"github.com/junsooki/AirRover/internal/watchdog"
)

// Rover is the set of remote operations the server exposes.
type Rover interface {
	Pulse()
	Frame() (*encoder.Frame, bool)
	Drive(cmd drive.Command, source string) drive.Status
	Photo() control.PhotoResult
	Status() drive.Status
}

// StateReporter reports the watchdog state for health checks.
type StateReporter interface {
	State() watchdog.State
}

// OfferHandler answers WebRTC offers.
type OfferHandler interface {
	HandleOffer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)
}

// Options configures the page layout and push rates.
type Options struct {
	Addr         string
	ImageWidth   int
	ImageHeight  int
	DisplayRate  int
	MaximumWidth int
}

// HTTPServer serves the rover's network interface.
type HTTPServer struct {
	server   *http.Server
	rover    Rover
	health   StateReporter
	viewers  OfferHandler
	opts     Options
	pages    *pages
	sessions *sessions
	logger   *zap.Logger
}

// NewHTTPServer builds the router. viewers may be nil to disable WebRTC.
func NewHTTPServer(opts Options, rover Rover, health StateReporter, viewers OfferHandler, logger *zap.Logger) (*HTTPServer, error) {
	if opts.DisplayRate <= 0 {
		opts.DisplayRate = 10
	}
	p, err := newPages(opts)
	if err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	router.SkipClean(true)

	s := &HTTPServer{
		rover:   rover,
		health:  health,
		viewers: viewers,
		opts:    opts,
		pages:   p,
		logger:  logger.Named("http"),
	}
	s.sessions = newSessions(s)
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.pulseMiddleware(router),
		ReadHeaderTimeout: 5 * time.Second,
	}

	router.Use(s.metricsMiddleware)
	router.Use(s.loggingMiddleware)

	router.PathPrefix("/cam.jpg").HandlerFunc(s.snapshot).Methods("GET")
	router.PathPrefix("/set/").HandlerFunc(s.setDrive).Methods("GET")
	router.PathPrefix("/photo").HandlerFunc(s.photo).Methods("GET")
	router.HandleFunc("/status", s.status).Methods("GET")
	router.HandleFunc("/healthz", s.healthCheck).Methods("GET")
	router.HandleFunc("/", s.index).Methods("GET")
	router.HandleFunc("/stream", s.stream).Methods("GET")
	router.HandleFunc("/ws", s.sessions.serve).Methods("GET")
	if viewers != nil {
		router.HandleFunc("/webrtc/offer", s.webrtcOffer).Methods("POST")
	}
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Unmatched paths and wrong methods are echoed back like any other
	// unknown request; both bypass router.Use, so wrap them here.
	echo := s.metricsMiddleware(s.loggingMiddleware(http.HandlerFunc(s.echoPath)))
	router.NotFoundHandler = echo
	router.MethodNotAllowedHandler = echo

	return s, nil
}

// Handler returns the root handler, for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Listen binds the listen address. Bind failures surface here, before any
// goroutine is started.
func (s *HTTPServer) Listen() (net.Listener, error) {
	return net.Listen("tcp", s.server.Addr)
}

// Serve accepts connections on ln until Shutdown.
func (s *HTTPServer) Serve(ln net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for handlers to finish. It
// then closes websocket sessions and waits for their goroutines, so no
// drive command is still running when it returns.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	err := s.server.Shutdown(ctx)
	s.sessions.closeAll()
	if waitErr := s.sessions.wait(ctx); waitErr != nil {
		return errors.Join(err, fmt.Errorf("websocket sessions: %w", waitErr))
	}
	return err
}
