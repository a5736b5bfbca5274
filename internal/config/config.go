package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration.
type Config struct {
	ListenHost string `yaml:"listen_host"`
	Port       int    `yaml:"port"`

	ImageWidth     int    `yaml:"image_width"`
	ImageHeight    int    `yaml:"image_height"`
	FrameRate      int    `yaml:"frame_rate"`
	DisplayRate    int    `yaml:"display_rate"`
	FlipCamera     bool   `yaml:"flip_camera"`
	CameraRotation int    `yaml:"camera_rotation"`
	JPEGQuality    int    `yaml:"jpeg_quality"`
	Camera         string `yaml:"camera"`
	CameraDevice   int    `yaml:"camera_device"`

	PhotoDir     string `yaml:"photo_dir"`
	MaximumWidth int    `yaml:"maximum_width"`

	WatchdogTimeout time.Duration `yaml:"watchdog_timeout"`
	BlinkInterval   time.Duration `yaml:"blink_interval"`

	VoltageIn  float64 `yaml:"voltage_in"`
	VoltageOut float64 `yaml:"voltage_out"`
	Motor      string  `yaml:"motor"`
	MQTT       MQTT    `yaml:"mqtt"`

	WebRTC WebRTC `yaml:"webrtc"`

	LogLevel string `yaml:"log_level"`
}

// MQTT locates the motor bridge broker.
type MQTT struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// WebRTC configures the browser viewer endpoint.
type WebRTC struct {
	Enabled    bool     `yaml:"enabled"`
	ICEServers []string `yaml:"ice_servers"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenHost:      "0.0.0.0",
		Port:            80,
		ImageWidth:      240,
		ImageHeight:     192,
		FrameRate:       10,
		DisplayRate:     10,
		JPEGQuality:     80,
		Camera:          "sim",
		PhotoDir:        "/home/pi",
		MaximumWidth:    1000,
		WatchdogTimeout: 1500 * time.Millisecond,
		BlinkInterval:   time.Second,
		VoltageIn:       1.2 * 8,
		VoltageOut:      6.0,
		Motor:           "sim",
		MQTT: MQTT{
			Broker: "tcp://localhost:1883",
			Topic:  "rover",
		},
		WebRTC: WebRTC{
			Enabled:    true,
			ICEServers: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"},
		},
		LogLevel: "info",
	}
}

// ParseRoverFlags parses flags for the rover binary. A -config file, if
// given, is applied over the defaults first; flags set explicitly on the
// command line win over the file.
func ParseRoverFlags(args []string) (*Config, error) {
	cfg := Default()
	fs := flag.NewFlagSet("rover", flag.ContinueOnError)

	var path string
	fs.StringVar(&path, "config", "", "YAML config file")

	// Bind flags to a scratch copy so file values are not clobbered by
	// flag defaults; copy across only the flags that were set.
	set := Default()
	fs.StringVar(&set.ListenHost, "host", set.ListenHost, "Listen address")
	fs.IntVar(&set.Port, "port", set.Port, "Listen port")
	fs.IntVar(&set.ImageWidth, "width", set.ImageWidth, "Captured image width in pixels")
	fs.IntVar(&set.ImageHeight, "height", set.ImageHeight, "Captured image height in pixels")
	fs.IntVar(&set.FrameRate, "fps", set.FrameRate, "Camera frames per second")
	fs.IntVar(&set.DisplayRate, "display-rate", set.DisplayRate, "Viewer refreshes per second")
	fs.StringVar(&set.PhotoDir, "photos", set.PhotoDir, "Directory to save photos to")
	fs.BoolVar(&set.FlipCamera, "flip", set.FlipCamera, "Rotate the camera image by 180 degrees")
	fs.IntVar(&set.JPEGQuality, "quality", set.JPEGQuality, "JPEG quality (1-100)")
	fs.DurationVar(&set.WatchdogTimeout, "watchdog", set.WatchdogTimeout, "Silence before the motors are stopped")
	fs.StringVar(&set.Camera, "camera", set.Camera, "Camera driver (sim, gocv)")
	fs.StringVar(&set.Motor, "motor", set.Motor, "Motor driver (sim, mqtt)")
	fs.StringVar(&set.MQTT.Broker, "mqtt", set.MQTT.Broker, "MQTT broker URL for the motor bridge")
	fs.BoolVar(&set.WebRTC.Enabled, "webrtc", set.WebRTC.Enabled, "Enable the WebRTC viewer endpoint")
	fs.StringVar(&set.LogLevel, "log-level", set.LogLevel, "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.ListenHost = set.ListenHost
		case "port":
			cfg.Port = set.Port
		case "width":
			cfg.ImageWidth = set.ImageWidth
		case "height":
			cfg.ImageHeight = set.ImageHeight
		case "fps":
			cfg.FrameRate = set.FrameRate
		case "display-rate":
			cfg.DisplayRate = set.DisplayRate
		case "photos":
			cfg.PhotoDir = set.PhotoDir
		case "flip":
			cfg.FlipCamera = set.FlipCamera
		case "quality":
			cfg.JPEGQuality = set.JPEGQuality
		case "watchdog":
			cfg.WatchdogTimeout = set.WatchdogTimeout
		case "camera":
			cfg.Camera = set.Camera
		case "motor":
			cfg.Motor = set.Motor
		case "mqtt":
			cfg.MQTT.Broker = set.MQTT.Broker
		case "webrtc":
			cfg.WebRTC.Enabled = set.WebRTC.Enabled
		case "log-level":
			cfg.LogLevel = set.LogLevel
		}
	})

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "rover-" + uuid.NewString()[:8]
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("port must be 1-65535, got %d", c.Port)
	case c.ImageWidth <= 0 || c.ImageHeight <= 0:
		return fmt.Errorf("invalid image size %dx%d", c.ImageWidth, c.ImageHeight)
	case c.FrameRate <= 0:
		return fmt.Errorf("frame rate must be positive, got %d", c.FrameRate)
	case c.DisplayRate <= 0:
		return fmt.Errorf("display rate must be positive, got %d", c.DisplayRate)
	case c.JPEGQuality < 1 || c.JPEGQuality > 100:
		return fmt.Errorf("jpeg quality must be 1-100, got %d", c.JPEGQuality)
	case c.CameraRotation%90 != 0:
		return fmt.Errorf("camera rotation must be a multiple of 90, got %d", c.CameraRotation)
	case c.WatchdogTimeout <= 0:
		return fmt.Errorf("watchdog timeout must be positive, got %s", c.WatchdogTimeout)
	case c.BlinkInterval <= 0:
		return fmt.Errorf("blink interval must be positive, got %s", c.BlinkInterval)
	case c.VoltageIn <= 0 || c.VoltageOut <= 0:
		return fmt.Errorf("voltages must be positive")
	}
	switch c.Camera {
	case "sim", "gocv":
	default:
		return fmt.Errorf("unknown camera driver %q", c.Camera)
	}
	switch c.Motor {
	case "sim", "mqtt":
	default:
		return fmt.Errorf("unknown motor driver %q", c.Motor)
	}
	return nil
}

// MaxPower is the fraction of battery voltage the motors may receive.
func (c *Config) MaxPower() float64 {
	if c.VoltageOut > c.VoltageIn {
		return 1.0
	}
	return c.VoltageOut / c.VoltageIn
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.Port)
}

// ControllerConfig holds configuration for the rover-ctl binary.
type ControllerConfig struct {
	URL      string
	Speed    float64
	Steering float64
	Interval time.Duration
	Duration time.Duration
	Photo    bool
	WebRTC   bool
	LogLevel string
}

// ParseControllerFlags parses flags for the rover-ctl binary.
func ParseControllerFlags(args []string) (*ControllerConfig, error) {
	cfg := &ControllerConfig{}
	fs := flag.NewFlagSet("rover-ctl", flag.ContinueOnError)
	fs.StringVar(&cfg.URL, "url", "ws://localhost:80/ws", "Rover websocket URL")
	fs.Float64Var(&cfg.Speed, "speed", 0, "Speed (-1 to 1)")
	fs.Float64Var(&cfg.Steering, "steering", 0, "Steering (-1 to 1, positive is right)")
	fs.DurationVar(&cfg.Interval, "interval", 500*time.Millisecond, "Time between drive commands")
	fs.DurationVar(&cfg.Duration, "duration", 5*time.Second, "How long to drive before stopping")
	fs.BoolVar(&cfg.Photo, "photo", false, "Take a photo before driving")
	fs.BoolVar(&cfg.WebRTC, "webrtc", false, "Drive and receive frames over WebRTC data channels")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", cfg.Interval)
	}
	return cfg, nil
}
