package camera

import (
	"bytes"
	"context"
	"image/jpeg"
	"sync"
)

// StaticDriver serves one fixed JPEG payload on every grab. The payload is
// handed through the capture pipeline byte for byte, which makes the driver
// the reference device for capture fidelity checks.
type StaticDriver struct {
	name    string
	payload []byte

	mu      sync.Mutex
	claimed bool
}

func NewStaticDriver(name string, payload []byte) *StaticDriver {
	if name == "" {
		name = "static"
	}
	return &StaticDriver{name: name, payload: payload}
}

func (d *StaticDriver) Name() string { return d.name }

func (d *StaticDriver) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.claimed {
		return &ConflictError{Device: d.name}
	}
	if _, err := jpeg.DecodeConfig(bytes.NewReader(d.payload)); err != nil {
		return &HardwareError{Reason: "static payload is not a JPEG"}
	}
	d.claimed = true
	return nil
}

func (d *StaticDriver) Grab(ctx context.Context) (RawFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.claimed {
		return RawFrame{}, &CaptureError{Stage: "grab", Err: errNotOpen}
	}
	if err := ctx.Err(); err != nil {
		return RawFrame{}, &CaptureError{Stage: "grab", Err: err}
	}
	return RawFrame{Encoded: d.payload}, nil
}

func (d *StaticDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.claimed = false
	return nil
}
