package capture

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSimCamera_RequestFrame(t *testing.T) {
	cam, err := NewSimCamera(24, 16, 50)
	require.NoError(t, err)
	defer cam.Close()

	f, err := cam.RequestFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 24, f.Width)
	assert.Equal(t, 16, f.Height)
	assert.Equal(t, image.Rect(0, 0, 24, 16), f.Image.Bounds())

	f.Release()
	assert.Nil(t, f.Image)
	f.Release()
}

func TestSimCamera_Close(t *testing.T) {
	cam, err := NewSimCamera(8, 8, 1)
	require.NoError(t, err)
	require.NoError(t, cam.Close())
	require.NoError(t, cam.Close())

	_, err = cam.RequestFrame(context.Background())
	assert.ErrorIs(t, err, ErrCameraClosed)
}

func TestNewSimCamera_Invalid(t *testing.T) {
	_, err := NewSimCamera(8, 8, 0)
	assert.Error(t, err)
	_, err = NewSimCamera(0, 8, 10)
	assert.Error(t, err)
}

// flakyCamera fails every other request and closes itself after limit frames.
type flakyCamera struct {
	calls atomic.Int32
	limit int32
}

func (c *flakyCamera) RequestFrame(ctx context.Context) (*Frame, error) {
	n := c.calls.Add(1)
	if n > c.limit {
		return nil, ErrCameraClosed
	}
	if n%2 == 0 {
		return nil, errors.New("sensor timeout")
	}
	return NewFrame(image.NewRGBA(image.Rect(0, 0, 1, 1)), time.Now(), nil), nil
}

func (c *flakyCamera) Close() error { return nil }

// echoProcessor acknowledges every frame immediately.
type echoProcessor struct {
	in         chan *Frame
	drained    chan struct{}
	received   atomic.Int32
	terminated atomic.Bool
}

func newEchoProcessor() *echoProcessor {
	p := &echoProcessor{in: make(chan *Frame, 1), drained: make(chan struct{}, 1)}
	go func() {
		for f := range p.in {
			p.received.Add(1)
			f.Release()
			p.drained <- struct{}{}
		}
	}()
	return p
}

func (p *echoProcessor) Frames() chan<- *Frame    { return p.in }
func (p *echoProcessor) Drained() <-chan struct{} { return p.drained }
func (p *echoProcessor) Terminate()               { p.terminated.Store(true) }

func TestLoop_SkipsFailedRequestsAndStopsOnClose(t *testing.T) {
	cam := &flakyCamera{limit: 6}
	proc := newEchoProcessor()
	loop := NewLoop(cam, proc, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	loop.Run(ctx)

	select {
	case <-loop.Done():
	default:
		t.Fatal("Done not closed after Run returned")
	}
	assert.Equal(t, int32(3), proc.received.Load())
	assert.True(t, proc.terminated.Load())
}

func TestReadTimeout(t *testing.T) {
	tests := []struct {
		fps  int
		want time.Duration
	}{
		{fps: 30, want: 2 * time.Second / 30},
		{fps: 20, want: 100 * time.Millisecond},
		{fps: 2, want: MaxReadTimeout},
		{fps: 1, want: MaxReadTimeout},
		{fps: 0, want: MaxReadTimeout},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReadTimeout(tt.fps), "fps=%d", tt.fps)
	}
}
