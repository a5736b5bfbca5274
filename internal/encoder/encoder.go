package encoder

import (
	"fmt"
	"time"

	"github.com/junsooki/AirRover/internal/capture"
)

// Frame is an encoded, orientation-corrected frame. It is immutable once
// returned by an Encoder.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Timestamp time.Time
	// Seq is assigned by the stream processor when the frame is published.
	Seq uint64
}

// Encoder encodes a raw frame into a compressed frame.
type Encoder interface {
	Encode(raw *capture.Frame) (*Frame, error)
}

// EncodeError reports a frame that could not be encoded.
type EncodeError struct {
	Op  string
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Op, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
