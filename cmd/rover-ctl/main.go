package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/junsooki/AirRover/internal/config"
	"github.com/junsooki/AirRover/internal/control"
	"github.com/junsooki/AirRover/internal/decoder"
	"github.com/junsooki/AirRover/internal/drive"
	"github.com/junsooki/AirRover/internal/logger"
	"github.com/junsooki/AirRover/internal/peer"
	"github.com/junsooki/AirRover/internal/signaling"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.ParseControllerFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	log, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 2
	}
	defer log.Sync()

	log.Info("AirRover controller starting",
		zap.String("url", cfg.URL),
		zap.Float64("speed", cfg.Speed),
		zap.Float64("steering", cfg.Steering),
		zap.Bool("webrtc", cfg.WebRTC),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tally := decoder.NewTally(decoder.NewJPEGDecoder())
	answers := make(chan json.RawMessage, 1)

	sig := signaling.NewClient(cfg.URL, signaling.Handler{
		OnRegistered: func(id string) {
			log.Info("Registered with rover", zap.String("session", id))
		},
		OnStatus: func(status drive.Status) {
			log.Info("status", zap.Stringer("status", status))
		},
		OnPhoto: func(result control.PhotoResult) {
			log.Info("photo", zap.String("result", result.Message))
		},
		OnFrame: tally.Add,
		OnAnswer: func(payload json.RawMessage) {
			select {
			case answers <- payload:
			default:
			}
		},
		OnError: func(msg string) {
			log.Warn("rover error", zap.String("message", msg))
		},
	}, log)

	if err := sig.Connect(ctx); err != nil {
		log.Error("control connect", zap.Error(err))
		return 1
	}
	defer sig.Close()

	send := func(cmd drive.Command) error { return sig.SendDrive(cmd) }

	if cfg.WebRTC {
		ctrl, err := connectWebRTC(ctx, sig, answers, log)
		if err != nil {
			log.Error("webrtc", zap.Error(err))
			return 1
		}
		defer ctrl.Close()
		ctrl.Frames().OnFrame(tally.Add)
		send = ctrl.Drive
	} else if err := sig.Subscribe(); err != nil {
		log.Warn("subscribe", zap.Error(err))
	}

	if cfg.Photo {
		if err := sig.RequestPhoto(); err != nil {
			log.Warn("photo request", zap.Error(err))
		}
	}

	cmd := drive.Command{Speed: cfg.Speed, Steering: cfg.Steering}
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	deadline := time.After(cfg.Duration)

loop:
	for {
		if err := send(cmd); err != nil {
			log.Warn("send drive", zap.Error(err))
		}
		select {
		case <-ticker.C:
		case <-deadline:
			break loop
		case <-ctx.Done():
			break loop
		case <-sig.Done():
			log.Warn("rover closed the connection")
			break loop
		}
	}

	// Leave the rover stopped rather than waiting for its watchdog.
	if err := send(drive.Command{}); err != nil {
		log.Warn("send stop", zap.Error(err))
	}
	_ = sig.RequestStatus()
	time.Sleep(200 * time.Millisecond)

	sum := tally.Summary()
	log.Info("done",
		zap.Int("frames", sum.Frames),
		zap.Int("bad_frames", sum.Failed),
		zap.String("frame_size", fmt.Sprintf("%dx%d", sum.Width, sum.Height)),
		zap.String("received", humanize.Bytes(sum.Bytes)),
	)
	return 0
}

// connectWebRTC offers a viewer session over the control channel and waits
// for the drive data channel to open.
func connectWebRTC(ctx context.Context, sig *signaling.Client, answers <-chan json.RawMessage, log *zap.Logger) (*peer.Controller, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	ctrl, err := peer.NewController(nil, log)
	if err != nil {
		return nil, err
	}

	offer, err := ctrl.Offer(ctx)
	if err != nil {
		ctrl.Close()
		return nil, err
	}
	if err := sig.SendOffer(offer); err != nil {
		ctrl.Close()
		return nil, err
	}

	select {
	case answer := <-answers:
		if err := ctrl.HandleAnswer(answer); err != nil {
			ctrl.Close()
			return nil, fmt.Errorf("handle answer: %w", err)
		}
	case <-ctx.Done():
		ctrl.Close()
		return nil, fmt.Errorf("waiting for answer: %w", ctx.Err())
	}

	if err := ctrl.WaitOpen(ctx); err != nil {
		ctrl.Close()
		return nil, fmt.Errorf("waiting for data channel: %w", err)
	}
	return ctrl, nil
}
