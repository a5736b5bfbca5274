// Package stream implements the consumer half of the capture pipeline: it
// encodes raw frames and publishes them to the latest-frame buffer.
package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/junsooki/AirRover/internal/capture"
	"github.com/junsooki/AirRover/internal/encoder"
	"github.com/junsooki/AirRover/internal/metrics"
)

// State is the processor's current activity.
type State int32

const (
	WaitingForFrame State = iota
	Processing
)

func (s State) String() string {
	if s == Processing {
		return "processing"
	}
	return "waiting-for-frame"
}

// Publisher receives each successfully encoded frame.
type Publisher interface {
	Publish(frame *encoder.Frame)
}

// Processor encodes one raw frame at a time and signals the producer when
// it is ready for the next.
type Processor struct {
	enc    encoder.Encoder
	pub    Publisher
	logger *zap.Logger

	in        chan *capture.Frame
	drained   chan struct{}
	terminate chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	state atomic.Int32
	seq   uint64
}

// NewProcessor creates a processor that encodes with enc and publishes to pub.
func NewProcessor(enc encoder.Encoder, pub Publisher, logger *zap.Logger) *Processor {
	return &Processor{
		enc:       enc,
		pub:       pub,
		logger:    logger.Named("stream"),
		in:        make(chan *capture.Frame, 1),
		drained:   make(chan struct{}, 1),
		terminate: make(chan struct{}),
	}
}

// Start launches the processing goroutine.
func (p *Processor) Start() {
	p.wg.Add(1)
	go p.run()
}

// Frames implements capture.Processor.
func (p *Processor) Frames() chan<- *capture.Frame {
	return p.in
}

// Drained implements capture.Processor.
func (p *Processor) Drained() <-chan struct{} {
	return p.drained
}

// Terminate stops the processor and waits for it to exit. A frame already
// being encoded is finished; a frame still queued is released unencoded.
func (p *Processor) Terminate() {
	p.stopOnce.Do(func() {
		close(p.terminate)
	})
	p.wg.Wait()

	select {
	case f := <-p.in:
		f.Release()
	default:
	}
}

// State reports whether the processor is idle or encoding.
func (p *Processor) State() State {
	return State(p.state.Load())
}

func (p *Processor) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.terminate:
			return
		case raw := <-p.in:
			select {
			case <-p.terminate:
				raw.Release()
				return
			default:
			}

			p.state.Store(int32(Processing))
			p.process(raw)
			p.state.Store(int32(WaitingForFrame))

			// Capacity 1 and a single frame in flight: this never blocks.
			p.drained <- struct{}{}
		}
	}
}

func (p *Processor) process(raw *capture.Frame) {
	defer raw.Release()

	start := time.Now()
	frame, err := p.enc.Encode(raw)
	if err != nil {
		metrics.EncodeFailures.Inc()
		p.logger.Warn("dropping frame", zap.Error(err))
		return
	}
	metrics.EncodeDuration.Observe(time.Since(start).Seconds())

	p.seq++
	frame.Seq = p.seq
	p.pub.Publish(frame)

	metrics.FramesEncoded.Inc()
	metrics.FrameBytes.Set(float64(len(frame.Data)))
}
