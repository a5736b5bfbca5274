// Package watchdog stops the motors when remote requests stop arriving.
//
// LED behaviour:
//
//	blinking - waiting for a connection
//	on       - connected
//	off      - timed out, stopped or not running
package watchdog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/junsooki/AirRover/internal/metrics"
)

// State is the watchdog's view of the remote connection.
type State int32

const (
	WaitingForConnection State = iota
	Connected
	TimedOut
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case TimedOut:
		return "timed-out"
	default:
		return "waiting-for-connection"
	}
}

// Failsafe is the part of the motor board the watchdog drives.
type Failsafe interface {
	SetIndicatorLed(on bool)
	Stop()
}

// Watchdog is a three-state machine fed by Pulse. Once Connected, a gap of
// more than Timeout between pulses stops the motors.
type Watchdog struct {
	board   Failsafe
	timeout time.Duration
	blink   time.Duration
	logger  *zap.Logger

	pulse chan struct{}
	state atomic.Int32
	led   bool // owned by the run goroutine

	started  atomic.Bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a watchdog. timeout is the longest allowed silence while
// connected; blink is the LED toggle period while waiting.
func New(board Failsafe, timeout, blink time.Duration, logger *zap.Logger) *Watchdog {
	return &Watchdog{
		board:   board,
		timeout: timeout,
		blink:   blink,
		logger:  logger.Named("watchdog"),
		pulse:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Pulse records that a request was received. It never blocks; concurrent
// pulses collapse into a single observation.
func (w *Watchdog) Pulse() {
	select {
	case w.pulse <- struct{}{}:
	default:
	}
}

// State returns the current state.
func (w *Watchdog) State() State {
	return State(w.state.Load())
}

// Start runs the state machine until ctx is cancelled or Stop is called.
func (w *Watchdog) Start(ctx context.Context) {
	if w.started.Swap(true) {
		return
	}
	go w.run(ctx)
}

// Stop terminates the state machine and waits for it to exit.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	if w.started.Load() {
		<-w.done
	}
}

func (w *Watchdog) run(ctx context.Context) {
	defer close(w.done)

	w.setState(WaitingForConnection)
	timer := time.NewTimer(w.blink)
	defer timer.Stop()

	for {
		wait := w.blink
		if w.State() == Connected {
			wait = w.timeout
		}
		resetTimer(timer, wait)

		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-w.pulse:
			w.onPulse()
		case <-timer.C:
			w.onTimer()
		}
	}
}

func (w *Watchdog) onPulse() {
	if w.State() != Connected {
		w.logger.Info("reconnected")
		w.setState(Connected)
	}
	w.setLed(true)
}

func (w *Watchdog) onTimer() {
	switch w.State() {
	case Connected:
		w.logger.Warn("timed out, stopping motors", zap.Duration("timeout", w.timeout))
		w.setLed(false)
		w.board.Stop()
		metrics.WatchdogTimeouts.Inc()
		w.setState(TimedOut)
	case TimedOut:
		// LED stays dark for one interval after a timeout, then searching resumes.
		w.setState(WaitingForConnection)
		w.setLed(true)
	default:
		w.setLed(!w.led)
	}
}

func (w *Watchdog) setLed(on bool) {
	if w.led == on {
		return
	}
	w.led = on
	w.board.SetIndicatorLed(on)
}

func (w *Watchdog) setState(s State) {
	w.state.Store(int32(s))
	metrics.WatchdogState.Set(float64(s))
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
