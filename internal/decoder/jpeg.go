package decoder

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"
)

// JPEGDecoder reads JPEG headers without decoding pixels.
type JPEGDecoder struct{}

func NewJPEGDecoder() *JPEGDecoder {
	return &JPEGDecoder{}
}

func (d *JPEGDecoder) Decode(data []byte) (image.Config, error) {
	return jpeg.DecodeConfig(bytes.NewReader(data))
}

// Tally counts received frames. It is safe for concurrent use.
type Tally struct {
	dec Decoder

	mu            sync.Mutex
	frames        int
	failed        int
	bytes         uint64
	width, height int
}

// NewTally creates a tally that checks each frame with dec.
func NewTally(dec Decoder) *Tally {
	return &Tally{dec: dec}
}

// Add records one received frame.
func (t *Tally) Add(data []byte) {
	cfg, err := t.dec.Decode(data)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.bytes += uint64(len(data))
	if err != nil {
		t.failed++
		return
	}
	t.frames++
	t.width, t.height = cfg.Width, cfg.Height
}

// Summary is a point-in-time copy of a Tally.
type Summary struct {
	Frames int
	Failed int
	Bytes  uint64
	Width  int
	Height int
}

// Summary returns the counts so far.
func (t *Tally) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summary{
		Frames: t.frames,
		Failed: t.failed,
		Bytes:  t.bytes,
		Width:  t.width,
		Height: t.height,
	}
}
