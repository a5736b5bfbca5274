package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/junsooki/AirRover/internal/config"
	"github.com/junsooki/AirRover/internal/logger"
	"github.com/junsooki/AirRover/internal/rover"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run starts the rover and returns the process exit code. Deferred calls,
// including the logger flush, complete before main exits.
func run(args []string) int {
	cfg, err := config.ParseRoverFlags(args)
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

	log.Info("AirRover starting",
		zap.String("addr", cfg.Addr()),
		zap.Int("width", cfg.ImageWidth),
		zap.Int("height", cfg.ImageHeight),
		zap.Int("fps", cfg.FrameRate),
		zap.Bool("flip", cfg.FlipCamera),
		zap.Duration("watchdog", cfg.WatchdogTimeout),
		zap.String("camera", cfg.Camera),
		zap.String("motor", cfg.Motor),
		zap.Float64("max_power", cfg.MaxPower()),
	)

	svc, err := rover.New(cfg, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return 1
	}

	// Wait for interrupt.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		log.Error("rover stopped", zap.Error(err))
		return 1
	}
	return 0
}
