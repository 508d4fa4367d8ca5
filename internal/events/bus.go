package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Name identifies one event stream on the bus.
type Name string

const (
	// Result carries a models.DetectionResult for every completed tick.
	Result Name = "result"
	// Status carries a camera status snapshot after every mutation.
	Status Name = "status"
	// Alert carries an AlertEvent when the escalator starts or stops audio.
	Alert Name = "alert"
	// Error carries an ErrorEvent when a tick stage fails.
	Error Name = "error"
	// Stopped carries a StoppedEvent when monitoring ends.
	Stopped Name = "stopped"
)

// AlertEvent reports an escalation action.
type AlertEvent struct {
	Category string `json:"category"`
	Kind     string `json:"kind"`
	Streak   int    `json:"streak,omitempty"`
}

// Alert kinds.
const (
	KindContinuous = "continuous"
	KindOnce       = "once"
	KindSilenced   = "silenced"
)

// ErrorEvent reports a failed stage of the capture chain.
type ErrorEvent struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// StoppedEvent reports why monitoring ended.
type StoppedEvent struct {
	Reason    string `json:"reason"`
	SessionID string `json:"sessionId,omitempty"`
}

// Stop reasons.
const (
	ReasonManual   = "manual"
	ReasonWatchdog = "watchdog"
	ReasonShutdown = "shutdown"
)

// Envelope is what subscribers receive.
type Envelope struct {
	Name    Name
	At      time.Time
	Payload any
}

// Handler consumes one envelope. Handlers run on the publisher's goroutine
// and must not block.
type Handler func(Envelope)

type subscription struct {
	id int
	fn Handler
}

// Bus is an in-process event fan-out. Subscribers for a name are invoked in
// subscription order. All methods are safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Name][]subscription
	all    []subscription
	logger *zap.SugaredLogger
}

func NewBus(logger *zap.SugaredLogger) *Bus {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Bus{
		subs:   make(map[Name][]subscription),
		logger: logger,
	}
}

// Subscribe registers fn for one event name and returns its disposer. The
// disposer is idempotent.
func (b *Bus) Subscribe(name Name, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs[name] = remove(b.subs[name], id)
	}
}

// SubscribeAll registers fn for every event name. Used by the websocket hub
// and the telemetry emitter.
func (b *Bus) SubscribeAll(fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = remove(b.all, id)
	}
}

// Publish delivers payload to every subscriber of name, then to the catch-all
// subscribers. Handlers registered or disposed during delivery take effect on
// the next publish.
func (b *Bus) Publish(name Name, payload any) {
	env := Envelope{Name: name, At: time.Now(), Payload: payload}

	b.mu.RLock()
	named := make([]subscription, len(b.subs[name]))
	copy(named, b.subs[name])
	catchAll := make([]subscription, len(b.all))
	copy(catchAll, b.all)
	b.mu.RUnlock()

	for _, s := range named {
		b.deliver(s, env)
	}
	for _, s := range catchAll {
		b.deliver(s, env)
	}
}

func (b *Bus) deliver(s subscription, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorw("event handler panicked", "event", env.Name, "panic", r)
		}
	}()
	s.fn(env)
}

func remove(subs []subscription, id int) []subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}
