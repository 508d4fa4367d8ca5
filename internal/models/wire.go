package models

import (
	"math"
	"time"
)

// Wire shapes for the detection API. Field names follow the collaborator
// contract; note that isDrowsy historically carried a boolean and now carries
// the full status string, a quirk kept for client compatibility.

// DetectRequest is the body of POST /api/detect.
type DetectRequest struct {
	Image     string `json:"image"`
	Model     Model  `json:"model,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// BatchDetectRequest is the body of POST /api/detect/batch.
type BatchDetectRequest struct {
	Images    []string `json:"images"`
	Model     Model    `json:"model,omitempty"`
	SessionID string   `json:"sessionId,omitempty"`
}

// MaxBatchImages bounds one batch request.
const MaxBatchImages = 10

// DetectResponse is a single detection on the wire.
type DetectResponse struct {
	ID             string       `json:"id"`
	Timestamp      string       `json:"timestamp"`
	IsDrowsy       string       `json:"isDrowsy"`
	Confidence     float64      `json:"confidence"`
	ModelUsed      Model        `json:"modelUsed"`
	InferenceTime  float64      `json:"inferenceTime"`
	Bbox           *BoundingBox `json:"bbox,omitempty"`
	AlertTriggered bool         `json:"alertTriggered"`
	SessionID      string       `json:"sessionId,omitempty"`
	Status         string       `json:"status"`
	Message        string       `json:"message,omitempty"`
	Index          int          `json:"index,omitempty"`
}

// BatchSummary aggregates one batch response.
type BatchSummary struct {
	TotalDetections   int     `json:"totalDetections"`
	DrowsyDetections  int     `json:"drowsyDetections"`
	AlertRate         float64 `json:"alertRate"`
	AverageConfidence float64 `json:"averageConfidence"`
}

// BatchDetectResponse wraps per-image results with summary statistics.
type BatchDetectResponse struct {
	Status             string           `json:"status"`
	Results            []DetectResponse `json:"results"`
	Summary            BatchSummary     `json:"summary"`
	TotalInferenceTime float64          `json:"totalInferenceTime"`
	ModelUsed          Model            `json:"modelUsed"`
	Timestamp          string           `json:"timestamp"`
	SessionID          string           `json:"sessionId,omitempty"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status       string   `json:"status"`
	Timestamp    string   `json:"timestamp"`
	ModelsLoaded []string `json:"modelsLoaded"`
	Server       string   `json:"server,omitempty"`
	Mode         string   `json:"mode,omitempty"`
	Version      string   `json:"version,omitempty"`
}

// ModelInfo describes one entry of GET /api/models.
type ModelInfo struct {
	Name        Model   `json:"name"`
	DisplayName string  `json:"displayName"`
	Description string  `json:"description"`
	Accuracy    float64 `json:"accuracy"`
	Speed       string  `json:"speed"`
	MemoryUsage string  `json:"memoryUsage"`
	IsAvailable bool    `json:"isAvailable"`
}

// ModelsResponse is the body of GET /api/models.
type ModelsResponse struct {
	Status      string      `json:"status"`
	Models      []ModelInfo `json:"models"`
	TotalModels int         `json:"totalModels"`
	Timestamp   string      `json:"timestamp"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	ErrorCode string `json:"errorCode,omitempty"`
}

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// wireTimeLayouts lists accepted timestamp formats, RFC 3339 first and the
// zone-less isoformat the original Python collaborator emitted second.
var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
}

// ParseWireTime parses a collaborator timestamp, returning the zero time when
// no layout matches.
func ParseWireTime(v string) time.Time {
	for _, layout := range wireTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// FormatWireTime renders a timestamp the way the detection API emits it.
func FormatWireTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Round3 rounds to three decimals, the precision the detection API uses for
// confidence and inference-time fields.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// ToResult converts a wire detection into the domain result. The fallback
// time reference is used when the wire timestamp is missing or unparseable.
func (d *DetectResponse) ToResult(now time.Time) DetectionResult {
	ts := ParseWireTime(d.Timestamp)
	if ts.IsZero() {
		ts = now
	}
	return DetectionResult{
		ID:             d.ID,
		Timestamp:      ts,
		Status:         ParseStatus(d.IsDrowsy),
		Confidence:     d.Confidence,
		ModelUsed:      d.ModelUsed,
		InferenceTime:  time.Duration(d.InferenceTime * float64(time.Second)),
		Bbox:           d.Bbox,
		AlertTriggered: d.AlertTriggered,
		SessionID:      d.SessionID,
	}
}

// ToWire converts a domain result into the response shape.
func (r *DetectionResult) ToWire() DetectResponse {
	return DetectResponse{
		ID:             r.ID,
		Timestamp:      FormatWireTime(r.Timestamp),
		IsDrowsy:       string(r.Status),
		Confidence:     Round3(r.Confidence),
		ModelUsed:      r.ModelUsed,
		InferenceTime:  Round3(r.InferenceTime.Seconds()),
		Bbox:           r.Bbox,
		AlertTriggered: r.AlertTriggered,
		SessionID:      r.SessionID,
		Status:         OutcomeSuccess,
	}
}
