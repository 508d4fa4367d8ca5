package alert

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/roadcare/vigil/internal/models"
)

type chanSink struct {
	ch chan Clip
}

func newChanSink() *chanSink {
	return &chanSink{ch: make(chan Clip, 32)}
}

func (s *chanSink) Play(clip Clip) error {
	s.ch <- clip
	return nil
}

func (s *chanSink) recv(t *testing.T) Clip {
	t.Helper()
	select {
	case c := <-s.ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no clip played")
		return Clip{}
	}
}

func (s *chanSink) expectNone(t *testing.T) {
	t.Helper()
	select {
	case c := <-s.ch:
		t.Fatalf("unexpected play: %s/%s", c.Category, c.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestPlayer(t *testing.T) (*Player, *chanSink, *clock.Mock) {
	t.Helper()
	sink := newChanSink()
	mock := clock.NewMock()
	p, err := NewPlayer(sink, mock, nil)
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p, sink, mock
}

func TestContinuousLoopRepeats(t *testing.T) {
	p, sink, mock := newTestPlayer(t)

	p.PlayContinuous(models.StatusDrowsy)
	first := sink.recv(t)
	if first.Category != models.StatusDrowsy || first.Kind != KindContinuous {
		t.Fatalf("first clip = %s/%s", first.Category, first.Kind)
	}

	mock.Add(loopInterval)
	second := sink.recv(t)
	if second.Category != models.StatusDrowsy {
		t.Fatalf("second clip = %s", second.Category)
	}

	mock.Add(loopInterval)
	sink.recv(t)

	p.StopContinuous()
	mock.Add(3 * loopInterval)
	sink.expectNone(t)
}

func TestContinuousExclusive(t *testing.T) {
	p, sink, mock := newTestPlayer(t)

	p.PlayContinuous(models.StatusDrowsy)
	sink.recv(t)

	p.PlayContinuous(models.StatusUnknown)
	replacement := sink.recv(t)
	if replacement.Category != models.StatusUnknown {
		t.Fatalf("replacement clip = %s", replacement.Category)
	}

	if active, ok := p.Active(); !ok || active != models.StatusUnknown {
		t.Errorf("active = %s/%v, want unknown", active, ok)
	}

	mock.Add(loopInterval)
	next := sink.recv(t)
	if next.Category != models.StatusUnknown {
		t.Fatalf("loop still playing %s after replacement", next.Category)
	}
}

func TestSameCategoryDoesNotRestart(t *testing.T) {
	p, sink, _ := newTestPlayer(t)

	p.PlayContinuous(models.StatusDrowsy)
	sink.recv(t)

	p.PlayContinuous(models.StatusDrowsy)
	sink.expectNone(t)
}

func TestPlayOnceIndependentOfLoop(t *testing.T) {
	p, sink, _ := newTestPlayer(t)

	p.PlayContinuous(models.StatusDrowsy)
	sink.recv(t)

	p.PlayOnce(models.StatusDistracted)
	one := sink.recv(t)
	if one.Kind != KindOnce || one.Category != models.StatusDistracted {
		t.Fatalf("once clip = %s/%s", one.Category, one.Kind)
	}

	if active, ok := p.Active(); !ok || active != models.StatusDrowsy {
		t.Errorf("continuous state disturbed: %s/%v", active, ok)
	}
}

func TestStopContinuousIdempotent(t *testing.T) {
	p, sink, mock := newTestPlayer(t)

	p.StopContinuous()
	p.StopContinuous()

	p.PlayContinuous(models.StatusUnknown)
	sink.recv(t)
	p.StopContinuous()
	p.StopContinuous()

	mock.Add(2 * loopInterval)
	sink.expectNone(t)

	if _, ok := p.Active(); ok {
		t.Error("still active after stop")
	}
}

func TestCloseStopsLoop(t *testing.T) {
	sink := newChanSink()
	mock := clock.NewMock()
	p, err := NewPlayer(sink, mock, nil)
	if err != nil {
		t.Fatalf("new player: %v", err)
	}

	p.PlayContinuous(models.StatusDrowsy)
	sink.recv(t)

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	mock.Add(2 * loopInterval)
	sink.expectNone(t)
}

func TestPlayUnknownCategorySafe(t *testing.T) {
	p, sink, _ := newTestPlayer(t)

	// Safe has no tone; both calls must be harmless no-ops.
	p.PlayContinuous(models.StatusSafe)
	p.PlayOnce(models.StatusSafe)
	sink.expectNone(t)
}
