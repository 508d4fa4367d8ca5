package alert

import (
	"bytes"
	"testing"
	"time"

	"github.com/roadcare/vigil/internal/models"
)

func TestRenderClipProducesWAV(t *testing.T) {
	clip, err := renderClip(models.StatusDrowsy, KindContinuous, 1.0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(clip.WAV, []byte("RIFF")) || !bytes.Contains(clip.WAV[:16], []byte("WAVE")) {
		t.Errorf("output is not a WAV container: % x", clip.WAV[:16])
	}

	// Three 250ms segments.
	want := 750 * time.Millisecond
	if clip.Duration != want {
		t.Errorf("duration = %v, want %v", clip.Duration, want)
	}
}

func TestPatternsDistinctPerCategory(t *testing.T) {
	rendered := map[models.Status][]byte{}
	for category := range tonePatterns {
		clip, err := renderClip(category, KindContinuous, 1.0)
		if err != nil {
			t.Fatalf("render %s: %v", category, err)
		}
		rendered[category] = clip.WAV
	}

	categories := []models.Status{
		models.StatusDrowsy,
		models.StatusUnknown,
		models.StatusDistracted,
		models.StatusSafetyViolation,
	}
	for i, a := range categories {
		for _, b := range categories[i+1:] {
			if bytes.Equal(rendered[a], rendered[b]) {
				t.Errorf("categories %s and %s render identical tones", a, b)
			}
		}
	}
}

func TestOnceToneSofterThanContinuous(t *testing.T) {
	loud, err := renderClip(models.StatusDistracted, KindContinuous, 1.0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	soft, err := renderClip(models.StatusDistracted, KindOnce, onceGain)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if bytes.Equal(loud.WAV, soft.WAV) {
		t.Error("softer gain did not change the rendered tone")
	}
	if soft.Duration != loud.Duration {
		t.Errorf("gain changed duration: %v vs %v", soft.Duration, loud.Duration)
	}
}

func TestNoPatternForSafe(t *testing.T) {
	if _, err := renderClip(models.StatusSafe, KindOnce, 1.0); err == nil {
		t.Error("safe must not have an alert tone")
	}
}

func TestMemWriterSeek(t *testing.T) {
	var m memWriter
	m.Write([]byte("abcdef"))
	if _, err := m.Seek(2, 0); err != nil {
		t.Fatalf("seek: %v", err)
	}
	m.Write([]byte("XY"))
	if string(m.buf) != "abXYef" {
		t.Errorf("buffer = %q, want abXYef", m.buf)
	}
	if _, err := m.Seek(-1, 0); err == nil {
		t.Error("negative seek accepted")
	}
}
