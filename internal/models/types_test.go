package models

import (
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	cases := []struct {
		in   string
		want Status
	}{
		{"safe", StatusSafe},
		{"drowsy", StatusDrowsy},
		{"distracted", StatusDistracted},
		{"safety-violation", StatusSafetyViolation},
		{"unknown", StatusUnknown},
		{"", StatusUnknown},
		{"garbage", StatusUnknown},
		{"DROWSY", StatusUnknown},
	}
	for _, c := range cases {
		if got := ParseStatus(c.in); got != c.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestStatusAlertable(t *testing.T) {
	alertable := map[Status]bool{
		StatusSafe:            false,
		StatusDrowsy:          true,
		StatusDistracted:      true,
		StatusSafetyViolation: true,
		StatusUnknown:         false,
	}
	for s, want := range alertable {
		if got := s.Alertable(); got != want {
			t.Errorf("%s.Alertable() = %v, want %v", s, got, want)
		}
	}
}

func TestDeriveAlertTriggered(t *testing.T) {
	cases := []struct {
		status     Status
		confidence float64
		want       bool
	}{
		{StatusDrowsy, 0.9, true},
		{StatusDrowsy, 0.7, false},
		{StatusDrowsy, 0.71, true},
		{StatusSafe, 0.99, false},
		{StatusUnknown, 0.99, false},
		{StatusDistracted, 0.75, true},
		{StatusSafetyViolation, 0.69, false},
	}
	for _, c := range cases {
		if got := DeriveAlertTriggered(c.status, c.confidence); got != c.want {
			t.Errorf("DeriveAlertTriggered(%s, %.2f) = %v, want %v", c.status, c.confidence, got, c.want)
		}
	}
}

func TestModelValid(t *testing.T) {
	for _, m := range Models() {
		if !m.Valid() {
			t.Errorf("model %s should be valid", m)
		}
	}
	if Model("resnet").Valid() {
		t.Error("unlisted model should not be valid")
	}
	if DefaultModel != ModelYOLO {
		t.Errorf("default model = %s, want %s", DefaultModel, ModelYOLO)
	}
}

func TestResultValidate(t *testing.T) {
	ok := DetectionResult{
		ID:         "yolo_1700000000000",
		Timestamp:  time.Now(),
		Status:     StatusSafe,
		Confidence: 0.93,
		ModelUsed:  ModelYOLO,
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid result rejected: %v", err)
	}

	bad := ok
	bad.Confidence = 1.2
	if err := bad.Validate(); err == nil {
		t.Error("confidence above 1 should be rejected")
	}

	bad = ok
	bad.Status = Status("sleepy")
	if err := bad.Validate(); err == nil {
		t.Error("unknown status string should be rejected")
	}
}
