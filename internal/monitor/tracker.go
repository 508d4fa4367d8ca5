package monitor

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/roadcare/vigil/internal/alert"
	"github.com/roadcare/vigil/internal/events"
	"github.com/roadcare/vigil/internal/models"
)

const (
	drowsyThreshold     = 3
	distractedThreshold = 3
	violationThreshold  = 3
	unknownThreshold    = 5

	// How long the tracker waits after an unknown escalation before it
	// gives up on seeing the driver again and stops the capture loop.
	watchdogDelay = 10 * time.Second
)

// Annunciator is the audio surface the tracker escalates through.
// *alert.Player satisfies it.
type Annunciator interface {
	PlayContinuous(category models.Status)
	PlayOnce(category models.Status)
	StopContinuous()
}

var _ Annunciator = (*alert.Player)(nil)

// Tracker turns the stream of per-frame classifications into alerts.
// Consecutive results of the same status grow that status's streak;
// any status change resets every streak. Crossing a threshold plays
// the category's tone and consumes the streak.
type Tracker struct {
	player Annunciator
	bus    *events.Bus
	stats  *Stats
	clk    clock.Clock
	logger *zap.SugaredLogger

	mu            sync.Mutex
	counts        map[models.Status]int
	last          models.Status
	haveLast      bool
	watchdog      *clock.Timer
	alertActive   bool
	alertCategory models.Status
	onAutoStop    func()
}

func NewTracker(player Annunciator, bus *events.Bus, stats *Stats, clk clock.Clock, logger *zap.SugaredLogger) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Tracker{
		player: player,
		bus:    bus,
		stats:  stats,
		clk:    clk,
		logger: logger,
		counts: make(map[models.Status]int),
	}
}

// SetAutoStop registers the callback invoked when the unknown watchdog
// fires. The callback runs outside the tracker's lock and may call back
// into the tracker.
func (t *Tracker) SetAutoStop(fn func()) {
	t.mu.Lock()
	t.onAutoStop = fn
	t.mu.Unlock()
}

type trackerActions struct {
	silence     bool
	silencedCat models.Status
	continuous  bool
	once        bool
	category    models.Status
	streak      int
}

// Track folds one classification into the streak state and carries out
// whatever the threshold table demands for it.
func (t *Tracker) Track(result models.DetectionResult) {
	status := result.Status
	var act trackerActions

	t.mu.Lock()
	if !t.haveLast || status != t.last {
		prev := t.last
		t.counts = make(map[models.Status]int)
		if status != models.StatusSafe {
			t.counts[status] = 1
		}
		if t.haveLast && prev == models.StatusUnknown && status != models.StatusUnknown {
			t.cancelWatchdogLocked()
		}
		t.last = status
		t.haveLast = true
	} else if status != models.StatusSafe {
		t.counts[status]++
	}

	if status == models.StatusSafe {
		t.cancelWatchdogLocked()
		if t.alertActive {
			act.silence = true
			act.silencedCat = t.alertCategory
			t.alertActive = false
			t.alertCategory = ""
		}
		t.mu.Unlock()
		t.player.StopContinuous()
		if act.silence {
			t.publishAlert(act.silencedCat, events.KindSilenced, 0)
		}
		return
	}

	switch status {
	case models.StatusDrowsy:
		if t.counts[status] >= drowsyThreshold {
			act.continuous = true
			act.category = status
			act.streak = t.counts[status]
			t.counts[models.StatusDrowsy] = 0
			t.counts[models.StatusUnknown] = 0
			t.alertActive = true
			t.alertCategory = status
		}
	case models.StatusDistracted:
		if t.counts[status] >= distractedThreshold {
			act.once = true
			act.category = status
			act.streak = t.counts[status]
			t.counts[models.StatusDistracted] = 0
			t.counts[models.StatusUnknown] = 0
		}
	case models.StatusSafetyViolation:
		if t.counts[status] >= violationThreshold {
			act.once = true
			act.category = status
			act.streak = t.counts[status]
			t.counts[models.StatusSafetyViolation] = 0
			t.counts[models.StatusUnknown] = 0
		}
	case models.StatusUnknown:
		if t.counts[status] >= unknownThreshold {
			act.continuous = true
			act.category = status
			act.streak = t.counts[status]
			t.counts[models.StatusUnknown] = 0
			t.alertActive = true
			t.alertCategory = status
			t.armWatchdogLocked()
		}
	}
	t.mu.Unlock()

	switch {
	case act.continuous:
		t.player.PlayContinuous(act.category)
		t.stats.RecordAlert()
		t.publishAlert(act.category, events.KindContinuous, act.streak)
		t.logger.Warnw("alert escalated", "category", act.category, "streak", act.streak)
	case act.once:
		t.player.PlayOnce(act.category)
		t.stats.RecordAlert()
		t.publishAlert(act.category, events.KindOnce, act.streak)
		t.logger.Warnw("alert tone", "category", act.category, "streak", act.streak)
	}
}

// Dismiss silences the active continuous alert without touching the
// streak counters. The unknown watchdog goes with it.
func (t *Tracker) Dismiss() {
	t.mu.Lock()
	t.cancelWatchdogLocked()
	active := t.alertActive
	cat := t.alertCategory
	t.alertActive = false
	t.alertCategory = ""
	t.mu.Unlock()

	t.player.StopContinuous()
	if active {
		t.publishAlert(cat, events.KindSilenced, 0)
		t.logger.Infow("alert dismissed", "category", cat)
	}
}

// Reset clears all streaks, cancels the watchdog and silences any
// continuous alert. Called on every session start and stop.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.counts = make(map[models.Status]int)
	t.last = ""
	t.haveLast = false
	t.cancelWatchdogLocked()
	active := t.alertActive
	cat := t.alertCategory
	t.alertActive = false
	t.alertCategory = ""
	t.mu.Unlock()

	t.player.StopContinuous()
	if active {
		t.publishAlert(cat, events.KindSilenced, 0)
	}
}

// StreakSnapshot is the JSON view of the tracker state.
type StreakSnapshot struct {
	Counts        map[string]int `json:"counts"`
	Last          string         `json:"last,omitempty"`
	WatchdogArmed bool           `json:"watchdogArmed"`
	AlertActive   bool           `json:"alertActive"`
	AlertCategory string         `json:"alertCategory,omitempty"`
}

func (t *Tracker) Snapshot() StreakSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := StreakSnapshot{
		Counts:        make(map[string]int, len(models.Statuses())),
		WatchdogArmed: t.watchdog != nil,
		AlertActive:   t.alertActive,
		AlertCategory: string(t.alertCategory),
	}
	if t.haveLast {
		snap.Last = string(t.last)
	}
	for _, status := range models.Statuses() {
		if status == models.StatusSafe {
			continue
		}
		snap.Counts[string(status)] = t.counts[status]
	}
	return snap
}

// armWatchdogLocked starts the auto-stop countdown unless one is
// already running. Re-escalation never extends an armed deadline.
func (t *Tracker) armWatchdogLocked() {
	if t.watchdog != nil {
		return
	}
	t.watchdog = t.clk.AfterFunc(watchdogDelay, t.watchdogFired)
}

func (t *Tracker) cancelWatchdogLocked() {
	if t.watchdog == nil {
		return
	}
	t.watchdog.Stop()
	t.watchdog = nil
}

func (t *Tracker) watchdogFired() {
	t.mu.Lock()
	t.watchdog = nil
	fn := t.onAutoStop
	t.mu.Unlock()

	t.logger.Warnw("no driver visible, stopping capture", "after", watchdogDelay)
	if fn != nil {
		fn()
	}
}

func (t *Tracker) publishAlert(category models.Status, kind string, streak int) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(events.Alert, events.AlertEvent{
		Category: string(category),
		Kind:     kind,
		Streak:   streak,
	})
}
