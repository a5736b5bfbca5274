package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// Capture pipeline
	FramesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rover_frames_captured_total",
		Help: "Raw frames delivered by the camera",
	})

	CaptureFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rover_capture_failures_total",
		Help: "Failed raw frame requests",
	})

	FramesEncoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rover_frames_encoded_total",
		Help: "Frames encoded and published to the latest-frame buffer",
	})

	EncodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rover_encode_failures_total",
		Help: "Frames dropped because encoding failed",
	})

	EncodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rover_encode_duration_seconds",
		Help:    "Time spent encoding one frame",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	FrameBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rover_frame_bytes",
		Help: "Size of the most recently published frame",
	})

	// Watchdog
	WatchdogState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rover_watchdog_state",
		Help: "Watchdog state (0 waiting, 1 connected, 2 timed out)",
	})

	WatchdogTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rover_watchdog_timeouts_total",
		Help: "Failsafe stops issued after a lost connection",
	})

	// Control
	DriveCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rover_drive_commands_total",
		Help: "Drive commands applied to the motors",
	}, []string{"source"})

	Photos = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rover_photos_total",
		Help: "Photo capture attempts",
	}, []string{"result"})

	WSSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rover_ws_sessions",
		Help: "Open websocket control sessions",
	})

	WebRTCViewers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rover_webrtc_viewers",
		Help: "Connected WebRTC viewers",
	})
)
