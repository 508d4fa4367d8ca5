package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vigild.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultAgentIsValid(t *testing.T) {
	cfg := DefaultAgent()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
	if cfg.Monitor.Interval() != 2*time.Second {
		t.Fatalf("default interval = %v", cfg.Monitor.Interval())
	}
	if cfg.ShutdownTimeout() != 5*time.Second {
		t.Fatalf("default shutdown timeout = %v", cfg.ShutdownTimeout())
	}
}

func TestLoadAgentOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
instance_id: cab-17
camera:
  driver: snapshot
  snapshot_url: http://cam.local/shot.jpg
  width: 800
  height: 600
detection:
  base_url: http://inference:5000
  model: faster_rcnn
monitor:
  interval_ms: 1500
  auto_start: true
mqtt:
  broker: tcp://broker:1883
`)
	cfg, err := LoadAgent(path)
	if err != nil {
		t.Fatalf("LoadAgent: %v", err)
	}
	if cfg.InstanceID != "cab-17" {
		t.Errorf("instance = %q", cfg.InstanceID)
	}
	if cfg.Camera.Driver != "snapshot" || cfg.Camera.Width != 800 {
		t.Errorf("camera = %+v", cfg.Camera)
	}
	if cfg.Detection.Model != "faster_rcnn" {
		t.Errorf("model = %q", cfg.Detection.Model)
	}
	if cfg.Monitor.IntervalMS != 1500 || !cfg.Monitor.AutoStart {
		t.Errorf("monitor = %+v", cfg.Monitor)
	}
	// untouched sections keep their defaults
	if cfg.Camera.JPEGQuality != 80 || cfg.Camera.CaptureTimeoutS != 5 {
		t.Errorf("camera defaults lost: %+v", cfg.Camera)
	}
	if cfg.Control.Addr != ":8090" {
		t.Errorf("control addr = %q", cfg.Control.Addr)
	}
	// broker presence derives the events topic
	if cfg.MQTT.Topics.Events != "vigil/events/cab-17" {
		t.Errorf("events topic = %q", cfg.MQTT.Topics.Events)
	}
	if cfg.MQTT.QoS["alert"] != 1 {
		t.Errorf("alert qos = %d", cfg.MQTT.QoS["alert"])
	}
}

func TestValidateBounds(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Agent)
		wantErr string
	}{
		{"interval too low", func(c *Agent) { c.Monitor.IntervalMS = 500 }, "interval_ms"},
		{"interval too high", func(c *Agent) { c.Monitor.IntervalMS = 20000 }, "interval_ms"},
		{"unknown model", func(c *Agent) { c.Detection.Model = "resnet" }, "detection.model"},
		{"confidence too low", func(c *Agent) { c.Detection.ConfidenceThreshold = 0.05 }, "confidence_threshold"},
		{"confidence too high", func(c *Agent) { c.Detection.ConfidenceThreshold = 0.99 }, "confidence_threshold"},
		{"quality out of range", func(c *Agent) { c.Camera.JPEGQuality = 120 }, "jpeg_quality"},
		{"capture timeout out of range", func(c *Agent) { c.Camera.CaptureTimeoutS = 30 }, "capture_timeout_s"},
		{"unknown driver", func(c *Agent) { c.Camera.Driver = "v4l2" }, "camera.driver"},
		{"snapshot without url", func(c *Agent) { c.Camera.Driver = "snapshot" }, "snapshot_url"},
		{"static without path", func(c *Agent) { c.Camera.Driver = "static" }, "image_path"},
		{"bad instance id", func(c *Agent) { c.InstanceID = "Cab 17" }, "instance_id"},
		{"file output without path", func(c *Agent) { c.Alert.Output = "file" }, "file_path"},
		{"unknown alert output", func(c *Agent) { c.Alert.Output = "dac" }, "alert.output"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultAgent()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadAgentRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "instance_id: [this is not\n  a scalar")
	if _, err := LoadAgent(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadAgentMissingFile(t *testing.T) {
	if _, err := LoadAgent(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}

func TestServerFromEnv(t *testing.T) {
	t.Setenv("API_HOST", "127.0.0.1")
	t.Setenv("API_PORT", "5150")
	t.Setenv("STORE", "postgres")
	t.Setenv("DB_PASSWORD", "hunter2")
	t.Setenv("DB_NAME", "vigil_test")

	cfg := LoadServer()
	if cfg.Addr() != "127.0.0.1:5150" {
		t.Errorf("addr = %q", cfg.Addr())
	}
	if cfg.Store != "postgres" {
		t.Errorf("store = %q", cfg.Store)
	}
	if !strings.Contains(cfg.DSN(), "password=hunter2") {
		t.Errorf("dsn lost password: %q", cfg.DSN())
	}
	if strings.Contains(cfg.DSNForLog(), "hunter2") {
		t.Errorf("log dsn leaks password: %q", cfg.DSNForLog())
	}
	if cfg.MaxBatchImages != 10 {
		t.Errorf("batch default = %d", cfg.MaxBatchImages)
	}
}

func TestServerUnknownStoreFallsBack(t *testing.T) {
	t.Setenv("STORE", "redis")
	cfg := LoadServer()
	if cfg.Store != "memory" {
		t.Errorf("store = %q, want memory fallback", cfg.Store)
	}
}
