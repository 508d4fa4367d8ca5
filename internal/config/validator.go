package config

import (
	"fmt"
	"regexp"

	"github.com/roadcare/vigil/internal/models"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks an agent configuration and fills derivable defaults
// in place.
func Validate(cfg *Agent) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}
	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	switch cfg.Camera.Driver {
	case "synthetic":
	case "static":
		if cfg.Camera.ImagePath == "" {
			return fmt.Errorf("camera.image_path is required for the static driver")
		}
	case "snapshot":
		if cfg.Camera.SnapshotURL == "" {
			return fmt.Errorf("camera.snapshot_url is required for the snapshot driver")
		}
	default:
		return fmt.Errorf("camera.driver must be one of synthetic, static, snapshot, got %q", cfg.Camera.Driver)
	}
	if cfg.Camera.Width <= 0 {
		cfg.Camera.Width = 640
	}
	if cfg.Camera.Height <= 0 {
		cfg.Camera.Height = 480
	}
	if cfg.Camera.JPEGQuality < 1 || cfg.Camera.JPEGQuality > 100 {
		return fmt.Errorf("camera.jpeg_quality must be in 1..100, got %d", cfg.Camera.JPEGQuality)
	}
	if cfg.Camera.CaptureTimeoutS < 1 || cfg.Camera.CaptureTimeoutS > 10 {
		return fmt.Errorf("camera.capture_timeout_s must be in 1..10, got %d", cfg.Camera.CaptureTimeoutS)
	}

	if cfg.Detection.BaseURL == "" {
		return fmt.Errorf("detection.base_url is required")
	}
	if !models.Model(cfg.Detection.Model).Valid() {
		return fmt.Errorf("detection.model must be one of %v, got %q", models.Models(), cfg.Detection.Model)
	}
	if cfg.Detection.TimeoutS <= 0 {
		cfg.Detection.TimeoutS = 30
	}
	if cfg.Detection.ConfidenceThreshold < 0.1 || cfg.Detection.ConfidenceThreshold > 0.95 {
		return fmt.Errorf("detection.confidence_threshold must be in 0.1..0.95, got %g", cfg.Detection.ConfidenceThreshold)
	}
	if cfg.Detection.WaitReadyTimeoutS <= 0 {
		cfg.Detection.WaitReadyTimeoutS = 60
	}

	if cfg.Monitor.IntervalMS < 1000 || cfg.Monitor.IntervalMS > 10000 {
		return fmt.Errorf("monitor.interval_ms must be in 1000..10000, got %d", cfg.Monitor.IntervalMS)
	}

	switch cfg.Alert.Output {
	case "log":
	case "file":
		if cfg.Alert.FilePath == "" {
			return fmt.Errorf("alert.file_path is required for file output")
		}
	default:
		return fmt.Errorf("alert.output must be log or file, got %q", cfg.Alert.Output)
	}

	if cfg.Control.Addr == "" {
		cfg.Control.Addr = ":8090"
	}

	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topics.Events == "" {
			cfg.MQTT.Topics.Events = fmt.Sprintf("vigil/events/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS == nil {
			cfg.MQTT.QoS = map[string]byte{
				"alert":   1,
				"stopped": 1,
				"result":  0,
				"status":  0,
				"error":   0,
			}
		}
	}

	return nil
}
