package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"
)

// SimCamera renders a moving test pattern at a fixed frame rate.
type SimCamera struct {
	width  int
	height int
	ticker *time.Ticker
	pool   sync.Pool

	mu     sync.Mutex
	n      int
	closed chan struct{}
	once   sync.Once
}

// NewSimCamera creates a simulated camera producing width x height frames at fps.
func NewSimCamera(width, height, fps int) (*SimCamera, error) {
	if fps <= 0 || fps > 90 {
		return nil, fmt.Errorf("fps must be 1-90, got %d", fps)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid resolution %dx%d", width, height)
	}
	c := &SimCamera{
		width:  width,
		height: height,
		ticker: time.NewTicker(time.Second / time.Duration(fps)),
		closed: make(chan struct{}),
	}
	c.pool.New = func() any {
		return image.NewRGBA(image.Rect(0, 0, width, height))
	}
	return c, nil
}

func (c *SimCamera) RequestFrame(ctx context.Context) (*Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, ErrCameraClosed
	case <-c.ticker.C:
	}

	c.mu.Lock()
	n := c.n
	c.n++
	c.mu.Unlock()

	img := c.pool.Get().(*image.RGBA)
	c.render(img, n)
	return NewFrame(img, time.Now(), c.recycle), nil
}

func (c *SimCamera) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.ticker.Stop()
	})
	return nil
}

func (c *SimCamera) recycle(f *Frame) {
	if f.Image != nil {
		c.pool.Put(f.Image)
		f.Image = nil
	}
}

// render draws a diagonal gradient with a vertical bar sweeping left to right.
func (c *SimCamera) render(img *image.RGBA, n int) {
	bar := (n * 4) % c.width
	for y := 0; y < c.height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+c.width*4]
		for x := 0; x < c.width; x++ {
			i := x * 4
			if x >= bar && x < bar+8 {
				row[i], row[i+1], row[i+2] = 255, 255, 255
			} else {
				row[i] = uint8(x * 255 / c.width)
				row[i+1] = uint8(y * 255 / c.height)
				row[i+2] = uint8(n)
			}
			row[i+3] = 255
		}
	}
}
