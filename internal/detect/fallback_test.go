package detect

import (
	"strings"
	"testing"

	"github.com/roadcare/vigil/internal/models"
)

func TestFallbackConfidenceWithinRanges(t *testing.T) {
	f := NewFallback(42)
	seen := map[models.Status]int{}

	for i := 0; i < 2000; i++ {
		r := f.Result(models.ModelYOLO, "", 640, 480)
		seen[r.Status]++

		bounds, ok := fallbackRanges[r.Status]
		if !ok {
			t.Fatalf("draw %d: status %q outside closed set", i, r.Status)
		}
		if r.Confidence < bounds[0] || r.Confidence > bounds[1] {
			t.Fatalf("draw %d: confidence %v outside [%v,%v] for %s",
				i, r.Confidence, bounds[0], bounds[1], r.Status)
		}
	}

	for _, s := range models.Statuses() {
		if seen[s] == 0 {
			t.Errorf("status %s never drawn in 2000 samples", s)
		}
	}
	if seen[models.StatusSafe] <= seen[models.StatusDrowsy] {
		t.Errorf("safe (%d) should dominate drowsy (%d)", seen[models.StatusSafe], seen[models.StatusDrowsy])
	}
}

func TestFallbackBbox(t *testing.T) {
	f := NewFallback(7)
	for i := 0; i < 1000; i++ {
		r := f.Result(models.ModelVGG16, "", 640, 480)
		if r.Status.Alertable() {
			if r.Bbox == nil {
				t.Fatal("alertable result missing bbox")
			}
			if r.Bbox.X+r.Bbox.Width > 640 || r.Bbox.Y+r.Bbox.Height > 480 {
				t.Fatalf("bbox %+v exceeds 640x480 frame", r.Bbox)
			}
			if r.Bbox.Width <= 0 || r.Bbox.Height <= 0 {
				t.Fatalf("degenerate bbox %+v", r.Bbox)
			}
		} else if r.Bbox != nil {
			t.Fatalf("%s result carries bbox", r.Status)
		}
	}
}

func TestFallbackDeterministicUnderSeed(t *testing.T) {
	a := NewFallback(99)
	b := NewFallback(99)
	for i := 0; i < 50; i++ {
		ra := a.Result(models.ModelYOLO, "s", 0, 0)
		rb := b.Result(models.ModelYOLO, "s", 0, 0)
		if ra.Status != rb.Status || ra.Confidence != rb.Confidence {
			t.Fatalf("draw %d diverged: %s/%v vs %s/%v",
				i, ra.Status, ra.Confidence, rb.Status, rb.Confidence)
		}
	}
}

func TestFallbackResultShape(t *testing.T) {
	f := NewFallback(3)
	r := f.Result(models.ModelFasterRCNN, "session_5", 640, 480)

	if !r.IsSynthetic {
		t.Error("synthetic flag unset")
	}
	if !strings.HasPrefix(r.ID, "faster_rcnn_") {
		t.Errorf("id = %q, want model-prefixed", r.ID)
	}
	if r.SessionID != "session_5" {
		t.Errorf("session = %q", r.SessionID)
	}
	want := models.DeriveAlertTriggered(r.Status, r.Confidence)
	if r.AlertTriggered != want {
		t.Errorf("alertTriggered = %v, want %v for %s@%v", r.AlertTriggered, want, r.Status, r.Confidence)
	}
	if r.InferenceTime <= 0 {
		t.Error("inference time not synthesized")
	}
}
