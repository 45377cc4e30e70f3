package diffractometer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"sync"
	"time"
)

const (
	simFrameWidth  = 640
	simFrameHeight = 480
)

var (
	_ Diffractometer = (*Simulator)(nil)
	_ Camera         = (*SimulatedCamera)(nil)
)

// SimulatedCamera renders a synthetic sample view at a fixed rate. The
// sample spot is drawn at an offset driven by the simulator's sampx/sampy
// and omega, so moves and centring are visible in the feed.
type SimulatedCamera struct {
	rig      *Simulator
	interval time.Duration
	quality  int

	mu      sync.Mutex
	handler FrameHandler
	stop    chan struct{}
	done    chan struct{}
	offline bool
}

// NewSimulatedCamera returns a camera rendering rig at frameRate frames per
// second with the given JPEG quality.
func NewSimulatedCamera(rig *Simulator, frameRate, quality int) *SimulatedCamera {
	if frameRate <= 0 {
		frameRate = 10
	}
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	return &SimulatedCamera{
		rig:      rig,
		interval: time.Second / time.Duration(frameRate),
		quality:  quality,
	}
}

// SetOffline makes Init and Snapshot fail with ErrHardwareUnavailable.
func (c *SimulatedCamera) SetOffline(offline bool) {
	c.mu.Lock()
	c.offline = offline
	c.mu.Unlock()
}

// SetFrameHandler implements Camera.
func (c *SimulatedCamera) SetFrameHandler(h FrameHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Init implements Camera. Calling Init on a running camera is a no-op.
func (c *SimulatedCamera) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrHardwareUnavailable, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offline {
		return fmt.Errorf("%w: camera offline", ErrHardwareUnavailable)
	}
	if c.stop != nil {
		return nil
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(c.stop, c.done)
	return nil
}

// Stop implements Camera. It waits for the capture loop to exit.
func (c *SimulatedCamera) Stop(_ context.Context) error {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

// Running reports whether the capture loop is active.
func (c *SimulatedCamera) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

// Snapshot implements Camera.
func (c *SimulatedCamera) Snapshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHardwareUnavailable, err)
	}
	c.mu.Lock()
	offline := c.offline
	c.mu.Unlock()
	if offline {
		return nil, fmt.Errorf("%w: camera offline", ErrHardwareUnavailable)
	}
	return c.render()
}

func (c *SimulatedCamera) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			data, err := c.render()
			if err != nil {
				continue
			}
			c.mu.Lock()
			h := c.handler
			c.mu.Unlock()
			if h != nil {
				h(data, simFrameWidth, simFrameHeight)
			}
		}
	}
}

func (c *SimulatedCamera) render() ([]byte, error) {
	img := image.NewGray(image.Rect(0, 0, simFrameWidth, simFrameHeight))

	light := 0.35
	if c.rig != nil {
		light += 0.5 * math.Min(c.rig.Light(), 1)
	}
	bg := uint8(255 * light)
	for i := range img.Pix {
		img.Pix[i] = bg
	}

	cx, cy := float64(simFrameWidth)/2, float64(simFrameHeight)/2
	sx, sy := cx, cy
	if c.rig != nil {
		// Off-axis offset projects onto the image as the sample rotates.
		omega := c.rig.Motor("omega") * math.Pi / 180
		sx += c.rig.Motor("sampx") * simPixelsPerUnit * math.Cos(omega)
		sy += c.rig.Motor("sampy") * simPixelsPerUnit
	}
	drawDisc(img, sx, sy, 24, color.Gray{Y: 30})

	for x := 0; x < simFrameWidth; x++ {
		img.SetGray(x, int(cy), color.Gray{Y: 255})
	}
	for y := 0; y < simFrameHeight; y++ {
		img.SetGray(int(cx), y, color.Gray{Y: 255})
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return buf.Bytes(), nil
}

func drawDisc(img *image.Gray, cx, cy, r float64, col color.Gray) {
	b := img.Bounds()
	for y := int(cy - r); y <= int(cy+r); y++ {
		for x := int(cx - r); x <= int(cx+r); x++ {
			if !image.Pt(x, y).In(b) {
				continue
			}
			dx, dy := float64(x)-cx, float64(y)-cy
			if dx*dx+dy*dy <= r*r {
				img.SetGray(x, y, col)
			}
		}
	}
}
