package motor

import (
	"sync"

	"go.uber.org/zap"
)

// SimBoard is an in-memory board used when no hardware is attached.
type SimBoard struct {
	mu       sync.Mutex
	left     float64
	right    float64
	steering float64
	led      bool
	logger   *zap.Logger
}

// NewSimBoard creates a simulated board.
func NewSimBoard(logger *zap.Logger) *SimBoard {
	return &SimBoard{logger: logger.Named("motor")}
}

func (b *SimBoard) SetDriveOutputs(left, right float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.left, b.right = left, right
	b.logger.Debug("drive", zap.Float64("left", left), zap.Float64("right", right))
}

func (b *SimBoard) SetSteering(position float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.steering = position
	b.logger.Debug("steering", zap.Float64("position", position))
}

func (b *SimBoard) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.left, b.right = 0, 0
	b.logger.Debug("motors off")
}

func (b *SimBoard) SetIndicatorLed(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.led = on
}

func (b *SimBoard) IndicatorLed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.led
}

func (b *SimBoard) DriveOutputs() (left, right float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.left, b.right
}

func (b *SimBoard) Steering() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.steering
}

func (b *SimBoard) Close() error {
	return nil
}
