package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/roboat-helm/internal/fsm"
)

// Config holds broker connection settings.
type Config struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	BufferSize     int           `yaml:"buffer_size"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// DefaultConfig returns the standard broker settings.
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://192.168.1.200:1883",
		ClientID:       "roboat-helm",
		TopicPrefix:    DefaultTopicPrefix,
		BufferSize:     512,
		PublishTimeout: 2 * time.Second,
	}
}

// client is the subset of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an MQTT broker. While the connection is down
// messages are held in an offline queue and replayed, oldest first, on reconnect.
type RealPublisher struct {
	client  client
	topics  Topics
	timeout time.Duration

	mu     sync.Mutex
	buffer *offlineQueue
}

// NewRealPublisher starts connecting to the broker in the background and
// returns immediately; the connection is retried until it succeeds.
func NewRealPublisher(cfg Config) *RealPublisher {
	p := &RealPublisher{
		topics:  Topics{Prefix: cfg.TopicPrefix},
		timeout: cfg.PublishTimeout,
		buffer:  newOfflineQueue(cfg.BufferSize),
	}

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
		SetWill(p.topics.System(), string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) {
			log.Printf("mqtt: connected to %s", cfg.Broker)
			p.replay()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	c := paho.NewClient(opts)
	p.client = c
	c.Connect()
	return p
}

func newPublisherWithClient(c client, cfg Config) *RealPublisher {
	return &RealPublisher{
		client:  c,
		topics:  Topics{Prefix: cfg.TopicPrefix},
		timeout: cfg.PublishTimeout,
		buffer:  newOfflineQueue(cfg.BufferSize),
	}
}

// PublishTransition sends a state change to <prefix>/<machine>/state.
func (p *RealPublisher) PublishTransition(ts time.Time, tr fsm.Transition) error {
	payload, err := FormatTransitionPayload(ts, tr)
	if err != nil {
		return fmt.Errorf("format transition payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.State(tr.Machine), payload: payload, qos: 1})
}

// PublishLine sends a log line to <prefix>/<machine>/log.
func (p *RealPublisher) PublishLine(ts time.Time, machine, line string) error {
	payload, err := FormatLinePayload(ts, machine, line)
	if err != nil {
		return fmt.Errorf("format line payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.Log(machine), payload: payload})
}

// PublishSystem sends a lifecycle event to <prefix>/system.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.System(), payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buffer.push(msg)
		p.mu.Unlock()
		return nil
	}

	p.mu.Lock()
	pending := p.buffer.len()
	p.mu.Unlock()
	if pending > 0 {
		p.replay()
	}
	return p.send(msg)
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// replay flushes messages buffered while disconnected.
func (p *RealPublisher) replay() {
	p.mu.Lock()
	msgs, dropped := p.buffer.drain()
	p.mu.Unlock()
	if len(msgs) == 0 {
		return
	}

	log.Printf("mqtt: replaying %d buffered messages (%d dropped while offline)", len(msgs), dropped)
	for _, msg := range msgs {
		if err := p.send(msg); err != nil {
			log.Printf("mqtt: replay: %v", err)
		}
	}
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}
