package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/roadcare/vigil/internal/camera"
	"github.com/roadcare/vigil/internal/detect"
	"github.com/roadcare/vigil/internal/events"
	"github.com/roadcare/vigil/internal/models"
)

// State is the controller's capture state.
type State int32

const (
	StateIdle State = iota
	StateCapturing
)

func (s State) String() string {
	if s == StateCapturing {
		return "capturing"
	}
	return "idle"
}

// DefaultInterval is used when a start request does not carry one.
const DefaultInterval = 2 * time.Second

// FrameSource is the camera surface the controller captures from.
// *camera.Source satisfies it.
type FrameSource interface {
	RequestPermission(ctx context.Context) error
	CaptureFrame(ctx context.Context) (*models.DetectionFrame, error)
	Release() error
	Status() camera.Status
}

var _ FrameSource = (*camera.Source)(nil)

// Detector is the inference surface. *detect.Client satisfies it.
type Detector interface {
	Detect(ctx context.Context, frame *models.DetectionFrame, model models.Model, sessionID string) (models.DetectionResult, error)
}

var _ Detector = (*detect.Client)(nil)

// Controller runs the periodic capture loop. It is Idle until Start
// succeeds and Capturing until Stop; every tick captures a frame, sends
// it for classification and feeds the result to the tracker. A tick
// that lands while the previous chain is still in flight is skipped,
// never queued.
type Controller struct {
	source  FrameSource
	client  Detector
	tracker *Tracker
	bus     *events.Bus
	stats   *Stats
	clk     clock.Clock
	logger  *zap.SugaredLogger
	model   models.Model

	mu        sync.Mutex
	state     State
	stopCh    chan struct{}
	sessionID string
	interval  time.Duration

	runID atomic.Int64
	busy  atomic.Bool
	wg    sync.WaitGroup
}

func NewController(source FrameSource, client Detector, tracker *Tracker, bus *events.Bus, stats *Stats, clk clock.Clock, logger *zap.SugaredLogger, model models.Model) *Controller {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if !model.Valid() {
		model = models.DefaultModel
	}
	c := &Controller{
		source:  source,
		client:  client,
		tracker: tracker,
		bus:     bus,
		stats:   stats,
		clk:     clk,
		logger:  logger,
		model:   model,
	}
	tracker.SetAutoStop(func() { c.stopWithReason(events.ReasonWatchdog) })
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Start moves the controller to Capturing and schedules the tick loop.
// Starting while already Capturing is a no-op; a camera that cannot be
// claimed fails the start and leaves the controller Idle.
func (c *Controller) Start(ctx context.Context, interval time.Duration, sessionID string) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	c.mu.Lock()
	if c.state == StateCapturing {
		c.mu.Unlock()
		c.logger.Debugw("start ignored, already capturing")
		return nil
	}
	c.mu.Unlock()

	if err := c.source.RequestPermission(ctx); err != nil {
		c.logger.Errorw("camera unavailable", "error", err)
		return err
	}

	c.mu.Lock()
	if c.state == StateCapturing {
		c.mu.Unlock()
		return nil
	}
	c.state = StateCapturing
	c.sessionID = sessionID
	c.interval = interval
	c.runID.Add(1)
	runID := c.runID.Load()
	stopCh := make(chan struct{})
	c.stopCh = stopCh
	ticker := c.clk.Ticker(interval)
	c.mu.Unlock()

	c.tracker.Reset()
	c.wg.Add(1)
	go c.run(ctx, ticker, stopCh, runID)

	c.logger.Infow("capture started", "interval", interval, "session", sessionID, "model", c.model)
	return nil
}

// Stop moves the controller back to Idle. Safe to call at any time,
// from any goroutine, including while ticks are in flight.
func (c *Controller) Stop() {
	c.stopWithReason(events.ReasonManual)
}

func (c *Controller) stopWithReason(reason string) {
	c.mu.Lock()
	if c.state != StateCapturing {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	close(c.stopCh)
	c.stopCh = nil
	sessionID := c.sessionID
	c.sessionID = ""
	c.runID.Add(1)
	c.mu.Unlock()

	c.tracker.Reset()
	if c.bus != nil {
		c.bus.Publish(events.Stopped, events.StoppedEvent{Reason: reason, SessionID: sessionID})
	}
	c.logger.Infow("capture stopped", "reason", reason, "session", sessionID)
}

// Close stops the loop and waits for in-flight chains to drain.
func (c *Controller) Close() {
	c.stopWithReason(events.ReasonShutdown)
	c.wg.Wait()
}

// Wait blocks until in-flight chains drain or ctx expires.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) run(ctx context.Context, ticker *clock.Ticker, stopCh chan struct{}, runID int64) {
	defer c.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			go c.stopWithReason(events.ReasonShutdown)
			return
		case <-ticker.C:
			c.tick(ctx, runID)
		}
	}
}

func (c *Controller) tick(ctx context.Context, runID int64) {
	if !c.busy.CompareAndSwap(false, true) {
		c.stats.RecordSkippedTick()
		c.logger.Debugw("tick skipped, previous chain still in flight")
		return
	}
	c.wg.Add(1)
	go c.chain(ctx, runID)
}

// chain runs one capture-classify-track pass. Failures are reported as
// error events and never stop the loop. A chain that outlives its run,
// because Stop won the race, still publishes its result but no longer
// feeds the tracker.
func (c *Controller) chain(ctx context.Context, runID int64) {
	defer c.wg.Done()
	defer c.busy.Store(false)

	frame, err := c.source.CaptureFrame(ctx)
	if err != nil {
		c.stats.RecordCaptureError()
		c.publishError("capture", err)
		c.logger.Warnw("frame capture failed", "error", err)
		return
	}
	c.stats.RecordFrame()

	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()

	result, err := c.client.Detect(ctx, frame, c.model, sessionID)
	if err != nil {
		c.stats.RecordDetectError()
		c.publishError("detect", err)
		c.logger.Warnw("classification failed", "error", err)
		return
	}

	c.stats.RecordResult(result)
	if c.bus != nil {
		c.bus.Publish(events.Result, result)
	}
	if c.runID.Load() == runID {
		c.tracker.Track(result)
	}
}

// AnalyzeSingle captures and classifies one frame on demand. It never
// changes the capture state and its result never counts toward streaks.
func (c *Controller) AnalyzeSingle(ctx context.Context, model models.Model) (models.DetectionResult, error) {
	if !model.Valid() {
		model = c.model
	}
	frame, err := c.source.CaptureFrame(ctx)
	if err != nil {
		c.stats.RecordCaptureError()
		c.publishError("capture", err)
		return models.DetectionResult{}, err
	}
	c.stats.RecordFrame()

	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()

	result, err := c.client.Detect(ctx, frame, model, sessionID)
	if err != nil {
		c.stats.RecordDetectError()
		c.publishError("detect", err)
		return models.DetectionResult{}, err
	}

	c.stats.RecordResult(result)
	if c.bus != nil {
		c.bus.Publish(events.Result, result)
	}
	return result, nil
}

func (c *Controller) publishError(stage string, err error) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.Error, events.ErrorEvent{Stage: stage, Message: err.Error()})
}
