package models

import (
	"time"
)

// Status is the closed set of driver-state classifications. Unknown is the
// explicit fallback for inconclusive input (no face visible) and for failed
// inference calls; a Status is never empty.
type Status string

const (
	StatusSafe            Status = "safe"
	StatusDrowsy          Status = "drowsy"
	StatusDistracted      Status = "distracted"
	StatusSafetyViolation Status = "safety-violation"
	StatusUnknown         Status = "unknown"
)

// Statuses returns all valid classifications in a stable order.
func Statuses() []Status {
	return []Status{StatusSafe, StatusDrowsy, StatusDistracted, StatusSafetyViolation, StatusUnknown}
}

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusSafe, StatusDrowsy, StatusDistracted, StatusSafetyViolation, StatusUnknown:
		return true
	}
	return false
}

// Alertable reports whether s is a category that can trigger driver alerts.
// Safe never alerts and unknown escalates through its own watchdog path.
func (s Status) Alertable() bool {
	switch s {
	case StatusDrowsy, StatusDistracted, StatusSafetyViolation:
		return true
	}
	return false
}

// ParseStatus maps a wire value onto the closed set, falling back to unknown
// for anything unrecognized.
func ParseStatus(v string) Status {
	s := Status(v)
	if s.Valid() {
		return s
	}
	return StatusUnknown
}

// Model identifies one of the inference models the collaborator serves.
type Model string

const (
	ModelYOLO       Model = "yolo"
	ModelFasterRCNN Model = "faster_rcnn"
	ModelVGG16      Model = "vgg16"

	DefaultModel = ModelYOLO
)

// Models returns the closed model set.
func Models() []Model {
	return []Model{ModelYOLO, ModelFasterRCNN, ModelVGG16}
}

// Valid reports whether m names a known model.
func (m Model) Valid() bool {
	switch m {
	case ModelYOLO, ModelFasterRCNN, ModelVGG16:
		return true
	}
	return false
}

// BoundingBox locates a detected face within the analyzed frame, in pixels.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DetectionFrame is one captured sample: an encoded JPEG payload plus capture
// metadata. Frames are immutable once built and are discarded after the
// corresponding result is produced.
type DetectionFrame struct {
	ID         string
	CapturedAt time.Time
	Payload    []byte
	Width      int
	Height     int
	Size       int
}

// DetectionResult is the outcome of a single inference call.
type DetectionResult struct {
	ID             string
	Timestamp      time.Time
	Status         Status
	Confidence     float64
	ModelUsed      Model
	InferenceTime  time.Duration
	Bbox           *BoundingBox
	AlertTriggered bool
	SessionID      string

	// IsSynthetic marks results generated locally when the inference
	// collaborator was unreachable, so consumers can tell degraded data
	// from real inference output.
	IsSynthetic bool
}

// Validate checks the result invariants: a valid closed-set status and a
// confidence inside [0,1].
func (r *DetectionResult) Validate() error {
	if !r.Status.Valid() {
		return &ValidationError{Field: "status", Message: "not a recognized classification: " + string(r.Status)}
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return &ValidationError{Field: "confidence", Message: "must be within [0,1]"}
	}
	return nil
}

// ValidationError describes a malformed request or result payload.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Message
}

// AlertConfidenceThreshold is the confidence above which an alertable
// classification sets the AlertTriggered flag on a result.
const AlertConfidenceThreshold = 0.7

// DeriveAlertTriggered computes the alert flag for a classification.
func DeriveAlertTriggered(status Status, confidence float64) bool {
	return status.Alertable() && confidence > AlertConfidenceThreshold
}
