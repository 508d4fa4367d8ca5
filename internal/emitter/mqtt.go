package emitter

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/roadcare/vigil/internal/config"
	"github.com/roadcare/vigil/internal/events"
)

// MQTTEmitter forwards monitoring events to an MQTT broker so a fleet
// backend can watch many cabs. Alerts and stops ride QoS 1, the rest
// QoS 0.
type MQTTEmitter struct {
	cfg        config.MQTTConfig
	instanceID string
	logger     *zap.SugaredLogger
	Client     mqtt.Client

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
	connected bool
}

func NewMQTTEmitter(cfg config.MQTTConfig, instanceID string, logger *zap.SugaredLogger) *MQTTEmitter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &MQTTEmitter{
		cfg:        cfg,
		instanceID: instanceID,
		logger:     logger,
		published:  make(map[string]uint64),
	}
}

// Connect establishes the broker connection and keeps retrying in the
// background after transient drops.
func (e *MQTTEmitter) Connect() error {
	broker := e.cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = fmt.Sprintf("tcp://%s", broker)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(e.instanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		e.logger.Infow("mqtt connection established", "broker", e.cfg.Broker, "client_id", e.instanceID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		e.logger.Warnw("mqtt connection lost, will auto-reconnect", "error", err, "broker", e.cfg.Broker)
	}

	e.Client = mqtt.NewClient(opts)

	e.logger.Infow("connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.Client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()

	return nil
}

// Attach subscribes the emitter to every bus event. The returned
// disposer detaches it again.
func (e *MQTTEmitter) Attach(bus *events.Bus) func() {
	return bus.SubscribeAll(func(env events.Envelope) {
		if err := e.Publish(env); err != nil {
			e.logger.Debugw("event not published", "event", env.Name, "error", err)
		}
	})
}

// Publish sends one event envelope to its per-type topic.
func (e *MQTTEmitter) Publish(env events.Envelope) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	topic := fmt.Sprintf("%s/%s", e.cfg.Topics.Events, env.Name)
	qos := e.getQoS(string(env.Name))

	payload, err := json.Marshal(env)
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	token := e.Client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	e.logger.Debugw("event published", "topic", topic, "qos", qos, "size", len(payload))

	return nil
}

// Disconnect closes the broker connection.
func (e *MQTTEmitter) Disconnect() error {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250)
		e.logger.Infow("mqtt disconnected")
	}

	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()

	return nil
}

// Stats contains emitter statistics.
type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}

	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

func (e *MQTTEmitter) getQoS(eventName string) byte {
	if qos, ok := e.cfg.QoS[eventName]; ok {
		return qos
	}
	return 0
}
