package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/dishwasher/internal/config"
	"github.com/sweeney/dishwasher/internal/event"
	"github.com/sweeney/dishwasher/internal/logging"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the connection is down are kept in a backlog and replayed on
// reconnect. Command topic messages are decoded and passed to the handler
// registered with OnCommand.
type RealPublisher struct {
	client paho.Client
	prefix string
	log    *logging.Logger

	mu        sync.Mutex
	connected bool
	everUp    bool
	backlog   *backlog
	onCommand CommandHandler
}

// NewRealPublisher creates a publisher connected to the configured broker.
func NewRealPublisher(cfg config.MQTTConfig, log *logging.Logger) (*RealPublisher, error) {
	if log == nil {
		log = logging.Discard()
	}
	p := &RealPublisher{
		prefix: cfg.TopicPrefix,
		log:    log.With("component", "mqtt"),
	}
	p.backlog = newBacklog(cfg.BufferSize, p.log)

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(Topic(p.prefix, TopicSystem), string(will), 1, true).
		SetOnConnectHandler(func(_ paho.Client) { p.handleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.handleDisconnect(err) })

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.client.Disconnect(0)
		return nil, fmt.Errorf("connect to broker %s: timeout after %v", cfg.Broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	// The connect handler runs asynchronously and may not have fired yet.
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()

	return p, nil
}

// OnCommand registers the handler for the command topic.
func (p *RealPublisher) OnCommand(h CommandHandler) error {
	p.mu.Lock()
	p.onCommand = h
	p.mu.Unlock()
	return p.subscribe()
}

func (p *RealPublisher) subscribe() error {
	p.mu.Lock()
	h := p.onCommand
	p.mu.Unlock()
	if h == nil {
		return nil
	}

	topic := Topic(p.prefix, TopicCommand)
	token := p.client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		ev, err := ParseCommand(msg.Payload())
		if err != nil {
			p.log.Warn("ignoring command", "topic", msg.Topic(), "error", err)
			return
		}
		p.log.Info("command received", "event", ev.String())
		h(ev)
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (p *RealPublisher) handleConnect() {
	p.mu.Lock()
	p.connected = true
	reconnect := p.everUp
	p.everUp = true
	pending := p.backlog.drain()
	p.mu.Unlock()

	if reconnect {
		p.log.Info("mqtt reconnected", "replaying", len(pending))
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		p.client.Publish(Topic(p.prefix, TopicSystem), 1, false, payload)
		go func() {
			if err := p.subscribe(); err != nil {
				p.log.Warn("restore command subscription", "error", err)
			}
		}()
	}
	for _, m := range pending {
		p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

func (p *RealPublisher) handleDisconnect(err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.log.Warn("mqtt connection lost", "error", err)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Publish sends a controller event to the events topic.
func (p *RealPublisher) Publish(at time.Time, ev event.Event) error {
	payload, err := FormatPayload(at, ev)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(pendingMsg{
		topic:   Topic(p.prefix, TopicEvents),
		payload: payload,
		key:     periodicKey(ev),
	})
}

// PublishSystem sends a system lifecycle event to the system topic.
func (p *RealPublisher) PublishSystem(ev SystemEvent) error {
	payload, err := FormatSystemPayload(ev)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) so lifecycle events are not lost
	m := pendingMsg{
		topic:    Topic(p.prefix, TopicSystem),
		payload:  payload,
		qos:      1,
		retained: ev.Retained,
	}
	if ev.Event == "HEARTBEAT" {
		m.key = ev.Event
	}
	return p.send(m)
}

func (p *RealPublisher) send(m pendingMsg) error {
	p.mu.Lock()
	if !p.connected {
		p.backlog.push(m)
		p.mu.Unlock()
		return ErrNotConnected
	}
	p.mu.Unlock()

	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}
