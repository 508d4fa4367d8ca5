package alert

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/roadcare/vigil/internal/models"
)

// loopInterval is the repeat period of a continuous alert.
const loopInterval = 2 * time.Second

// Player renders alert tones through a sink. At most one continuous alert is
// active at a time; starting a new one stops the previous. Single-shot tones
// never touch the continuous state.
type Player struct {
	sink   Sink
	clk    clock.Clock
	logger *zap.SugaredLogger

	continuous map[models.Status]Clip
	once       map[models.Status]Clip

	mu     sync.Mutex
	active models.Status
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewPlayer(sink Sink, clk clock.Clock, logger *zap.SugaredLogger) (*Player, error) {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	p := &Player{
		sink:       sink,
		clk:        clk,
		logger:     logger,
		continuous: make(map[models.Status]Clip, len(tonePatterns)),
		once:       make(map[models.Status]Clip, len(tonePatterns)),
	}
	for category := range tonePatterns {
		clip, err := renderClip(category, KindContinuous, 1.0)
		if err != nil {
			return nil, err
		}
		p.continuous[category] = clip

		soft, err := renderClip(category, KindOnce, onceGain)
		if err != nil {
			return nil, err
		}
		p.once[category] = soft
	}
	return p, nil
}

// PlayContinuous starts the looping alert for a category: one play
// immediately, then one every repeat interval until stopped. Starting the
// category already active is a no-op; a different category replaces the
// running loop.
func (p *Player) PlayContinuous(category models.Status) {
	clip, ok := p.continuous[category]
	if !ok {
		p.logger.Warnw("no continuous pattern for category", "category", category)
		return
	}

	p.mu.Lock()
	if p.stopCh != nil && p.active == category {
		p.mu.Unlock()
		return
	}
	p.stopContinuousLocked()

	stopCh := make(chan struct{})
	p.stopCh = stopCh
	p.active = category
	ticker := p.clk.Ticker(loopInterval)
	p.wg.Add(1)
	p.mu.Unlock()

	p.logger.Infow("continuous alert started", "category", category)
	go p.loop(clip, ticker, stopCh)
}

func (p *Player) loop(clip Clip, ticker *clock.Ticker, stopCh chan struct{}) {
	defer p.wg.Done()
	defer ticker.Stop()

	p.play(clip)
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.play(clip)
		}
	}
}

// PlayOnce plays a category's softer single-shot tone.
func (p *Player) PlayOnce(category models.Status) {
	clip, ok := p.once[category]
	if !ok {
		p.logger.Warnw("no tone pattern for category", "category", category)
		return
	}
	p.play(clip)
}

// StopContinuous cancels any running alert loop. Idempotent.
func (p *Player) StopContinuous() {
	p.mu.Lock()
	stopped := p.stopContinuousLocked()
	p.mu.Unlock()
	if stopped {
		p.logger.Infow("continuous alert stopped")
	}
}

func (p *Player) stopContinuousLocked() bool {
	if p.stopCh == nil {
		return false
	}
	close(p.stopCh)
	p.stopCh = nil
	p.active = ""
	return true
}

// Active reports the looping category, if any.
func (p *Player) Active() (models.Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active, p.stopCh != nil
}

// Close stops playback and waits for the loop goroutine to exit.
func (p *Player) Close() error {
	p.StopContinuous()
	p.wg.Wait()
	return nil
}

func (p *Player) play(clip Clip) {
	if err := p.sink.Play(clip); err != nil {
		p.logger.Warnw("alert playback failed",
			"category", clip.Category,
			"kind", clip.Kind,
			"error", err,
		)
	}
}
