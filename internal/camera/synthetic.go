package camera

import (
	"context"
	"image"
	"image/color"
	"sync"
)

// SyntheticDriver generates procedural test-pattern frames. Each grab moves a
// vertical bar across a gradient so consecutive frames differ.
type SyntheticDriver struct {
	width  int
	height int

	mu      sync.Mutex
	claimed bool
	seq     uint64
}

func NewSyntheticDriver(width, height int) *SyntheticDriver {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	return &SyntheticDriver{width: width, height: height}
}

func (d *SyntheticDriver) Name() string { return "synthetic" }

func (d *SyntheticDriver) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.claimed {
		return &ConflictError{Device: d.Name()}
	}
	d.claimed = true
	return nil
}

func (d *SyntheticDriver) Grab(ctx context.Context) (RawFrame, error) {
	d.mu.Lock()
	if !d.claimed {
		d.mu.Unlock()
		return RawFrame{}, &CaptureError{Stage: "grab", Err: errNotOpen}
	}
	seq := d.seq
	d.seq++
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return RawFrame{}, &CaptureError{Stage: "grab", Err: err}
	}

	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	bar := int(seq*8) % d.width
	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			c := color.RGBA{
				R: uint8(x * 255 / d.width),
				G: uint8(y * 255 / d.height),
				B: uint8(seq),
				A: 255,
			}
			if x >= bar && x < bar+12 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return RawFrame{Image: img}, nil
}

func (d *SyntheticDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.claimed = false
	return nil
}
