package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Agent is the complete in-cab agent configuration.
type Agent struct {
	InstanceID       string          `yaml:"instance_id"`
	ShutdownTimeoutS int             `yaml:"shutdown_timeout_s"`
	Camera           CameraConfig    `yaml:"camera"`
	Detection        DetectionConfig `yaml:"detection"`
	Monitor          MonitorConfig   `yaml:"monitor"`
	Alert            AlertConfig     `yaml:"alert"`
	Control          ControlConfig   `yaml:"control"`
	MQTT             MQTTConfig      `yaml:"mqtt"`
}

// CameraConfig selects and tunes the frame source.
type CameraConfig struct {
	Driver          string `yaml:"driver"` // synthetic, static, snapshot
	SnapshotURL     string `yaml:"snapshot_url"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	ImagePath       string `yaml:"image_path"` // static driver payload
	Width           int    `yaml:"width"`
	Height          int    `yaml:"height"`
	JPEGQuality     int    `yaml:"jpeg_quality"`
	CaptureTimeoutS int    `yaml:"capture_timeout_s"`
}

// DetectionConfig points the agent at the inference service.
type DetectionConfig struct {
	BaseURL             string  `yaml:"base_url"`
	Model               string  `yaml:"model"`
	TimeoutS            int     `yaml:"timeout_s"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	DisableFallback     bool    `yaml:"disable_fallback"`
	WaitReady           bool    `yaml:"wait_ready"`
	WaitReadyTimeoutS   int     `yaml:"wait_ready_timeout_s"`
}

// MonitorConfig tunes the capture loop.
type MonitorConfig struct {
	IntervalMS int  `yaml:"interval_ms"`
	AutoStart  bool `yaml:"auto_start"`
}

// AlertConfig selects where synthesized tones go.
type AlertConfig struct {
	Output   string `yaml:"output"` // log, file
	FilePath string `yaml:"file_path"`
}

// ControlConfig is the local HTTP control plane.
type ControlConfig struct {
	Addr string `yaml:"addr"`
}

// MQTTConfig contains event emitter settings. An empty broker disables
// the emitter entirely.
type MQTTConfig struct {
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic templates.
type MQTTTopics struct {
	Events string `yaml:"events"`
}

func (c *Agent) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

func (c *CameraConfig) CaptureTimeout() time.Duration {
	return time.Duration(c.CaptureTimeoutS) * time.Second
}

func (d *DetectionConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutS) * time.Second
}

func (d *DetectionConfig) WaitReadyTimeout() time.Duration {
	return time.Duration(d.WaitReadyTimeoutS) * time.Second
}

func (m *MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalMS) * time.Millisecond
}

// DefaultAgent returns a configuration that runs standalone: synthetic
// camera, fallback classification, no broker.
func DefaultAgent() *Agent {
	return &Agent{
		InstanceID:       "vigil-dev",
		ShutdownTimeoutS: 5,
		Camera: CameraConfig{
			Driver:          "synthetic",
			Width:           640,
			Height:          480,
			JPEGQuality:     80,
			CaptureTimeoutS: 5,
		},
		Detection: DetectionConfig{
			BaseURL:             "http://localhost:5000",
			Model:               "yolo",
			TimeoutS:            30,
			ConfidenceThreshold: 0.7,
			WaitReadyTimeoutS:   60,
		},
		Monitor: MonitorConfig{
			IntervalMS: 2000,
		},
		Alert: AlertConfig{
			Output: "log",
		},
		Control: ControlConfig{
			Addr: ":8090",
		},
	}
}

// LoadAgent reads and parses a YAML configuration file. Values not set
// in the file keep their defaults.
func LoadAgent(path string) (*Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultAgent()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
