package camera

import "fmt"

// PermissionError means access to the device was denied.
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("camera permission denied: %s", e.Reason)
}

// HardwareError means no usable capture device was found.
type HardwareError struct {
	Reason string
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("camera hardware: %s", e.Reason)
}

// ConflictError means the device is already claimed, by another process or by
// a second open on the same driver.
type ConflictError struct {
	Device string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("camera device busy: %s", e.Device)
}

// CaptureError wraps a failure while grabbing or encoding a frame.
type CaptureError struct {
	Stage string
	Err   error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Stage, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }
