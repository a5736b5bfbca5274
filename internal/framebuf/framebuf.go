// Package framebuf holds the most recently encoded camera frame.
package framebuf

import (
	"sync"

	"github.com/junsooki/AirRover/internal/encoder"
)

// Buffer is a single-slot store for the latest encoded frame.
//
// Publish and Snapshot only swap or copy a pointer while holding the lock,
// so readers are never delayed by encoding or network I/O. Frames are
// treated as immutable once published.
type Buffer struct {
	mu    sync.Mutex
	frame *encoder.Frame
}

// New creates an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// Publish replaces the stored frame unconditionally.
func (b *Buffer) Publish(frame *encoder.Frame) {
	b.mu.Lock()
	b.frame = frame
	b.mu.Unlock()
}

// Snapshot returns the frame present at call time, or false if nothing has
// been published yet. It never waits for a new frame.
func (b *Buffer) Snapshot() (*encoder.Frame, bool) {
	b.mu.Lock()
	f := b.frame
	b.mu.Unlock()
	return f, f != nil
}
