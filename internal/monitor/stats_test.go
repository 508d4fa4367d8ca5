package monitor

import (
	"testing"
	"time"

	"github.com/roadcare/vigil/internal/models"
)

func TestStatsSnapshotAggregates(t *testing.T) {
	s := NewStats()

	s.RecordFrame()
	s.RecordFrame()
	s.RecordFrame()
	s.RecordResult(models.DetectionResult{Status: models.StatusSafe, InferenceTime: 100 * time.Millisecond})
	s.RecordResult(models.DetectionResult{Status: models.StatusDrowsy, InferenceTime: 200 * time.Millisecond})
	s.RecordResult(models.DetectionResult{Status: models.StatusDrowsy, InferenceTime: 300 * time.Millisecond, IsSynthetic: true})
	s.RecordCaptureError()
	s.RecordDetectError()
	s.RecordSkippedTick()
	s.RecordAlert()

	snap := s.Snapshot()
	if snap.FramesCaptured != 3 {
		t.Errorf("frames = %d", snap.FramesCaptured)
	}
	if snap.TotalResults != 3 {
		t.Errorf("total results = %d", snap.TotalResults)
	}
	if snap.Results["safe"] != 1 || snap.Results["drowsy"] != 2 {
		t.Errorf("results = %v", snap.Results)
	}
	if snap.SyntheticResults != 1 {
		t.Errorf("synthetic = %d", snap.SyntheticResults)
	}
	if snap.CaptureErrors != 1 || snap.DetectErrors != 1 || snap.TicksSkippedBusy != 1 || snap.AlertsPlayed != 1 {
		t.Errorf("counters = %+v", snap)
	}
	if snap.AvgInferenceMS != 200 {
		t.Errorf("avg inference = %g, want 200", snap.AvgInferenceMS)
	}
	if snap.LastResultUnix == 0 {
		t.Error("last result timestamp not recorded")
	}
}

func TestStatsEmptySnapshot(t *testing.T) {
	snap := NewStats().Snapshot()
	if snap.TotalResults != 0 || snap.AvgInferenceMS != 0 {
		t.Errorf("empty snapshot = %+v", snap)
	}
	for _, status := range models.Statuses() {
		if _, ok := snap.Results[string(status)]; !ok {
			t.Errorf("status %s missing from snapshot", status)
		}
	}
}

func TestStatsUnknownStatusBucketsAsUnknown(t *testing.T) {
	s := NewStats()
	s.RecordResult(models.DetectionResult{Status: models.Status("garbled")})
	if got := s.Snapshot().Results["unknown"]; got != 1 {
		t.Errorf("unknown bucket = %d", got)
	}
}
