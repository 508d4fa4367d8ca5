package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseWireTime(t *testing.T) {
	rfc := "2026-08-23T10:15:30.25Z"
	if got := ParseWireTime(rfc); got.IsZero() {
		t.Fatalf("RFC 3339 timestamp not parsed: %q", rfc)
	}

	// The Python collaborator emits zone-less isoformat timestamps.
	iso := "2026-08-23T10:15:30.123456"
	got := ParseWireTime(iso)
	if got.IsZero() {
		t.Fatalf("isoformat timestamp not parsed: %q", iso)
	}
	if got.Nanosecond() != 123456000 {
		t.Errorf("isoformat fraction = %d ns, want 123456000", got.Nanosecond())
	}

	if got := ParseWireTime("yesterday"); !got.IsZero() {
		t.Errorf("junk timestamp parsed as %v", got)
	}
}

func TestRound3(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0.87654, 0.877},
		{0.1, 0.1},
		{0.0004, 0.0},
		{1.0, 1.0},
	}
	for _, c := range cases {
		if got := Round3(c.in); got != c.want {
			t.Errorf("Round3(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestResultToWire(t *testing.T) {
	ts := time.Date(2026, 8, 23, 9, 30, 0, 0, time.UTC)
	r := DetectionResult{
		ID:             "yolo_1787477400000",
		Timestamp:      ts,
		Status:         StatusDrowsy,
		Confidence:     0.87654,
		ModelUsed:      ModelYOLO,
		InferenceTime:  154 * time.Millisecond,
		Bbox:           &BoundingBox{X: 120, Y: 80, Width: 200, Height: 180},
		AlertTriggered: true,
		SessionID:      "session_1787477400",
	}
	w := r.ToWire()

	if w.IsDrowsy != "drowsy" {
		t.Errorf("isDrowsy = %q, want status string", w.IsDrowsy)
	}
	if w.Confidence != 0.877 {
		t.Errorf("confidence = %v, want rounded 0.877", w.Confidence)
	}
	if w.InferenceTime != 0.154 {
		t.Errorf("inferenceTime = %v, want 0.154", w.InferenceTime)
	}
	if w.Status != OutcomeSuccess {
		t.Errorf("status = %q, want %q", w.Status, OutcomeSuccess)
	}

	raw, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"isDrowsy":"drowsy"`) {
		t.Errorf("wire JSON missing status-bearing isDrowsy field: %s", raw)
	}
	if strings.Contains(string(raw), `"bbox":null`) {
		t.Errorf("nil bbox must be omitted: %s", raw)
	}
}

func TestWireToResult(t *testing.T) {
	w := DetectResponse{
		ID:             "vgg16_1787477400000",
		Timestamp:      "2026-08-23T09:30:00.500000",
		IsDrowsy:       "safety-violation",
		Confidence:     0.91,
		ModelUsed:      ModelVGG16,
		InferenceTime:  0.42,
		AlertTriggered: true,
		SessionID:      "session_1787477400",
	}
	r := w.ToResult(time.Now())

	if r.Status != StatusSafetyViolation {
		t.Errorf("status = %q, want safety-violation", r.Status)
	}
	if r.InferenceTime != 420*time.Millisecond {
		t.Errorf("inference time = %v, want 420ms", r.InferenceTime)
	}
	if r.Timestamp.Nanosecond() != 500000000 {
		t.Errorf("timestamp fraction lost: %v", r.Timestamp)
	}

	// Unparseable timestamps fall back to the supplied reference.
	w.Timestamp = "not-a-time"
	ref := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	if got := w.ToResult(ref); !got.Timestamp.Equal(ref) {
		t.Errorf("fallback timestamp = %v, want %v", got.Timestamp, ref)
	}

	// Unrecognized statuses degrade to unknown rather than failing.
	w.IsDrowsy = "???"
	if got := w.ToResult(ref); got.Status != StatusUnknown {
		t.Errorf("status = %q, want unknown", got.Status)
	}
}

func TestWireRoundTrip(t *testing.T) {
	ts := time.Date(2026, 8, 23, 9, 30, 0, 250000000, time.UTC)
	orig := DetectionResult{
		ID:             "faster_rcnn_1787477400250",
		Timestamp:      ts,
		Status:         StatusDistracted,
		Confidence:     0.75,
		ModelUsed:      ModelFasterRCNN,
		InferenceTime:  300 * time.Millisecond,
		AlertTriggered: true,
	}

	raw, err := json.Marshal(orig.ToWire())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded DetectResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	back := decoded.ToResult(time.Now())

	if back.Status != orig.Status || back.Confidence != orig.Confidence ||
		back.ModelUsed != orig.ModelUsed || back.InferenceTime != orig.InferenceTime ||
		back.AlertTriggered != orig.AlertTriggered || back.ID != orig.ID {
		t.Errorf("round trip changed result: %+v vs %+v", back, orig)
	}
	if !back.Timestamp.Equal(orig.Timestamp) {
		t.Errorf("round trip changed timestamp: %v vs %v", back.Timestamp, orig.Timestamp)
	}
}
