package monitor

import (
	"sync/atomic"
	"time"

	"github.com/roadcare/vigil/internal/models"
)

// Stats carries the capture-loop counters. All methods are safe for
// concurrent use.
type Stats struct {
	framesCaptured   atomic.Int64
	results          [5]atomic.Int64
	syntheticResults atomic.Int64
	captureErrors    atomic.Int64
	detectErrors     atomic.Int64
	ticksSkippedBusy atomic.Int64
	alertsPlayed     atomic.Int64
	totalInferenceMS atomic.Int64
	lastResultUnix   atomic.Int64
}

func NewStats() *Stats {
	return &Stats{}
}

func statusIndex(s models.Status) int {
	switch s {
	case models.StatusSafe:
		return 0
	case models.StatusDrowsy:
		return 1
	case models.StatusDistracted:
		return 2
	case models.StatusSafetyViolation:
		return 3
	default:
		return 4
	}
}

func (s *Stats) RecordFrame() {
	s.framesCaptured.Add(1)
}

func (s *Stats) RecordResult(r models.DetectionResult) {
	s.results[statusIndex(r.Status)].Add(1)
	if r.IsSynthetic {
		s.syntheticResults.Add(1)
	}
	s.totalInferenceMS.Add(r.InferenceTime.Milliseconds())
	s.lastResultUnix.Store(time.Now().Unix())
}

func (s *Stats) RecordCaptureError() {
	s.captureErrors.Add(1)
}

func (s *Stats) RecordDetectError() {
	s.detectErrors.Add(1)
}

func (s *Stats) RecordSkippedTick() {
	s.ticksSkippedBusy.Add(1)
}

func (s *Stats) RecordAlert() {
	s.alertsPlayed.Add(1)
}

// Snapshot is the JSON view of the counters.
type Snapshot struct {
	FramesCaptured   int64            `json:"framesCaptured"`
	Results          map[string]int64 `json:"results"`
	TotalResults     int64            `json:"totalResults"`
	SyntheticResults int64            `json:"syntheticResults"`
	CaptureErrors    int64            `json:"captureErrors"`
	DetectErrors     int64            `json:"detectErrors"`
	TicksSkippedBusy int64            `json:"ticksSkippedBusy"`
	AlertsPlayed     int64            `json:"alertsPlayed"`
	AvgInferenceMS   float64          `json:"avgInferenceMs"`
	LastResultUnix   int64            `json:"lastResultUnix,omitempty"`
}

func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		FramesCaptured:   s.framesCaptured.Load(),
		Results:          make(map[string]int64, len(models.Statuses())),
		SyntheticResults: s.syntheticResults.Load(),
		CaptureErrors:    s.captureErrors.Load(),
		DetectErrors:     s.detectErrors.Load(),
		TicksSkippedBusy: s.ticksSkippedBusy.Load(),
		AlertsPlayed:     s.alertsPlayed.Load(),
		LastResultUnix:   s.lastResultUnix.Load(),
	}
	for _, status := range models.Statuses() {
		n := s.results[statusIndex(status)].Load()
		snap.Results[string(status)] = n
		snap.TotalResults += n
	}
	if snap.TotalResults > 0 {
		snap.AvgInferenceMS = float64(s.totalInferenceMS.Load()) / float64(snap.TotalResults)
	}
	return snap
}
