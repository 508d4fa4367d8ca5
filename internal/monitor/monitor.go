package monitor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/roadcare/vigil/internal/alert"
	"github.com/roadcare/vigil/internal/camera"
	"github.com/roadcare/vigil/internal/config"
	"github.com/roadcare/vigil/internal/detect"
	"github.com/roadcare/vigil/internal/emitter"
	"github.com/roadcare/vigil/internal/events"
	"github.com/roadcare/vigil/internal/models"
)

// Monitor owns the agent's full monitoring pipeline: frame source,
// detection client, streak tracker, alert player and the optional MQTT
// emitter. It wires them together at construction and tears them down
// in reverse order on shutdown.
type Monitor struct {
	cfg    *config.Agent
	logger *zap.SugaredLogger

	bus        *events.Bus
	stats      *Stats
	source     *camera.Source
	client     *detect.Client
	player     *alert.Player
	tracker    *Tracker
	controller *Controller
	emitter    *emitter.MQTTEmitter
	alertFile  *os.File

	mu        sync.Mutex
	isRunning bool
	started   time.Time
	disposers []func()
}

func New(cfg *config.Agent, logger *zap.SugaredLogger) (*Monitor, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	m := &Monitor{
		cfg:    cfg,
		logger: logger,
		bus:    events.NewBus(logger),
		stats:  NewStats(),
	}

	driver, err := buildDriver(cfg.Camera)
	if err != nil {
		return nil, err
	}
	m.source = camera.NewSource(driver, camera.Config{
		Width:          cfg.Camera.Width,
		Height:         cfg.Camera.Height,
		JPEGQuality:    cfg.Camera.JPEGQuality,
		CaptureTimeout: cfg.Camera.CaptureTimeout(),
	}, logger)

	m.client = detect.NewClient(detect.Config{
		BaseURL:  cfg.Detection.BaseURL,
		Timeout:  cfg.Detection.Timeout(),
		Fallback: !cfg.Detection.DisableFallback,
	}, logger)

	sink, err := m.buildSink(cfg.Alert)
	if err != nil {
		return nil, err
	}
	m.player, err = alert.NewPlayer(sink, nil, logger)
	if err != nil {
		m.closeAlertFile()
		return nil, err
	}

	m.tracker = NewTracker(m.player, m.bus, m.stats, nil, logger)
	m.controller = NewController(m.source, m.client, m.tracker, m.bus, m.stats, nil, logger, models.Model(cfg.Detection.Model))

	if cfg.MQTT.Broker != "" {
		m.emitter = emitter.NewMQTTEmitter(cfg.MQTT, cfg.InstanceID, logger)
	}

	return m, nil
}

func buildDriver(cfg config.CameraConfig) (camera.Driver, error) {
	switch cfg.Driver {
	case "synthetic":
		return camera.NewSyntheticDriver(cfg.Width, cfg.Height), nil
	case "static":
		payload, err := os.ReadFile(cfg.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read camera image: %w", err)
		}
		return camera.NewStaticDriver(cfg.ImagePath, payload), nil
	case "snapshot":
		return camera.NewSnapshotDriver(cfg.SnapshotURL, cfg.Username, cfg.Password), nil
	default:
		return nil, fmt.Errorf("unknown camera driver %q", cfg.Driver)
	}
}

func (m *Monitor) buildSink(cfg config.AlertConfig) (alert.Sink, error) {
	if cfg.Output == "file" {
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open alert file: %w", err)
		}
		m.alertFile = f
		return alert.NewWriterSink(f), nil
	}
	return alert.NewLogSink(m.logger), nil
}

func (m *Monitor) closeAlertFile() {
	if m.alertFile != nil {
		m.alertFile.Close()
		m.alertFile = nil
	}
}

// Run starts the monitor and blocks until ctx is cancelled. The caller
// is expected to follow with Shutdown.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return fmt.Errorf("monitor already running")
	}
	m.isRunning = true
	m.started = time.Now()
	m.mu.Unlock()

	m.logger.Infow("vigil agent starting", "instance", m.cfg.InstanceID)

	// Camera status changes ride the bus so observers see permission
	// and claim transitions.
	m.addDisposer(m.source.OnStatus(func(st camera.Status) {
		m.bus.Publish(events.Status, st)
	}))

	// Ending the collaborator session is best effort; a stop must never
	// wait on the network.
	m.addDisposer(m.bus.Subscribe(events.Stopped, func(env events.Envelope) {
		stopped, ok := env.Payload.(events.StoppedEvent)
		if !ok || stopped.SessionID == "" {
			return
		}
		go m.endSession(stopped.SessionID)
	}))

	if m.emitter != nil {
		if err := m.emitter.Connect(); err != nil {
			m.logger.Warnw("broker unavailable, events stay local until it returns", "error", err)
		}
		m.addDisposer(m.emitter.Attach(m.bus))
	}

	if m.cfg.Detection.WaitReady {
		err := m.client.WaitForReady(ctx, m.cfg.Detection.WaitReadyTimeout())
		if err != nil && m.cfg.Detection.DisableFallback {
			return fmt.Errorf("inference service not ready: %w", err)
		}
		if err != nil {
			m.logger.Warnw("inference service not ready, relying on fallback", "error", err)
		}
	}

	if m.cfg.Monitor.AutoStart {
		if err := m.StartMonitoring(ctx, 0); err != nil {
			m.logger.Errorw("auto-start failed, agent stays idle", "error", err)
		}
	}

	<-ctx.Done()
	return nil
}

// Shutdown stops capture, drains in-flight work and releases the
// camera and broker. Bounded by ctx.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.isRunning = false
	started := m.started
	disposers := m.disposers
	m.disposers = nil
	m.mu.Unlock()

	m.logger.Infow("shutting down")

	var errs error

	m.controller.stopWithReason(events.ReasonShutdown)
	if err := m.controller.Wait(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("capture chains still in flight: %w", err))
	}

	m.player.Close()

	if err := m.source.Release(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("camera release: %w", err))
	}

	for _, dispose := range disposers {
		dispose()
	}

	if m.emitter != nil {
		if err := m.emitter.Disconnect(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("mqtt disconnect: %w", err))
		}
	}

	m.closeAlertFile()

	m.logger.Infow("shutdown complete", "uptime", time.Since(started).Round(time.Second))
	return errs
}

// StartMonitoring opens a collaborator session and starts the capture
// loop. A collaborator that cannot be reached degrades to a locally
// generated session id.
func (m *Monitor) StartMonitoring(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = m.cfg.Monitor.Interval()
	}

	if m.controller.State() == StateCapturing {
		m.logger.Debugw("start ignored, already capturing")
		return nil
	}

	settings := map[string]any{
		"frameInterval":       interval.Milliseconds(),
		"model":               m.cfg.Detection.Model,
		"confidenceThreshold": m.cfg.Detection.ConfidenceThreshold,
	}
	remote := true
	sessionID, err := m.client.StartSession(ctx, settings)
	if err != nil {
		remote = false
		sessionID = models.NewSessionID(time.Now())
		m.logger.Warnw("collaborator session unavailable, using local id", "session", sessionID, "error", err)
	}

	if err := m.controller.Start(ctx, interval, sessionID); err != nil {
		if remote {
			go m.endSession(sessionID)
		}
		return err
	}
	return nil
}

// StopMonitoring halts the capture loop and silences alerts.
func (m *Monitor) StopMonitoring() {
	m.controller.Stop()
}

// AnalyzeSingle runs one on-demand capture and classification.
func (m *Monitor) AnalyzeSingle(ctx context.Context, model models.Model) (models.DetectionResult, error) {
	return m.controller.AnalyzeSingle(ctx, model)
}

// DismissAlert silences the active continuous alert.
func (m *Monitor) DismissAlert() {
	m.tracker.Dismiss()
}

// Bus exposes the event stream for the control plane.
func (m *Monitor) Bus() *events.Bus {
	return m.bus
}

// CollaboratorHealth asks the inference service how it is doing.
func (m *Monitor) CollaboratorHealth(ctx context.Context) (*models.HealthResponse, error) {
	return m.client.Health(ctx)
}

// CollaboratorModels lists the inference service's models.
func (m *Monitor) CollaboratorModels(ctx context.Context) (*models.ModelsResponse, error) {
	return m.client.Models(ctx)
}

// StatusReport is the agent's full state for the control plane.
type StatusReport struct {
	Instance   string         `json:"instance"`
	State      string         `json:"state"`
	SessionID  string         `json:"sessionId,omitempty"`
	IntervalMS int64          `json:"intervalMs,omitempty"`
	Model      string         `json:"model"`
	UptimeS    float64        `json:"uptimeS"`
	Camera     camera.Status  `json:"camera"`
	Streaks    StreakSnapshot `json:"streaks"`
	Stats      Snapshot       `json:"stats"`
	Emitter    *emitter.Stats `json:"emitter,omitempty"`
}

func (m *Monitor) Status() StatusReport {
	m.mu.Lock()
	started := m.started
	running := m.isRunning
	m.mu.Unlock()

	report := StatusReport{
		Instance:  m.cfg.InstanceID,
		State:     m.controller.State().String(),
		SessionID: m.controller.Session(),
		Model:     m.cfg.Detection.Model,
		Camera:    m.source.Status(),
		Streaks:   m.tracker.Snapshot(),
		Stats:     m.stats.Snapshot(),
	}
	if interval := m.controller.Interval(); interval > 0 {
		report.IntervalMS = interval.Milliseconds()
	}
	if running {
		report.UptimeS = time.Since(started).Seconds()
	}
	if m.emitter != nil {
		stats := m.emitter.Stats()
		report.Emitter = &stats
	}
	return report
}

func (m *Monitor) addDisposer(fn func()) {
	m.mu.Lock()
	m.disposers = append(m.disposers, fn)
	m.mu.Unlock()
}

func (m *Monitor) endSession(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp, err := m.client.EndSession(ctx, sessionID)
	if err != nil {
		m.logger.Debugw("collaborator session not ended", "session", sessionID, "error", err)
		return
	}
	m.logger.Infow("collaborator session ended", "session", sessionID, "summary", resp.SessionData)
}
