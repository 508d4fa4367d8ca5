package camera

import (
	"context"
	"errors"
	"image"
)

var errNotOpen = errors.New("driver not open")

// RawFrame is one grabbed frame before the capture pipeline runs. Drivers
// that deliver decoded pixels set Image; drivers that deliver ready JPEG
// bytes set Encoded, which the pipeline passes through untouched.
type RawFrame struct {
	Image   image.Image
	Encoded []byte
}

// Driver is the platform boundary to a capture device. Open claims the
// device, Grab fetches one frame, Close releases the claim. Implementations
// must reject a second Open with *ConflictError while claimed.
type Driver interface {
	Name() string
	Open(ctx context.Context) error
	Grab(ctx context.Context) (RawFrame, error)
	Close() error
}
