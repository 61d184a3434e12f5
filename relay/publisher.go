package relay

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kwv/reskin/scene"
)

// Publisher mirrors session events to the broker.
//
//	<prefix>/<session>/events  every event, not retained
//	<prefix>/<session>/ar      AR gate state, retained
type Publisher struct {
	client mqtt.Client
	prefix string
	qos    byte

	mu    sync.RWMutex
	gates map[string]bool
}

// gatePayload is the retained AR gate message.
type gatePayload struct {
	Session   string `json:"session"`
	Enabled   bool   `json:"enabled"`
	Timestamp int64  `json:"timestamp"`
}

// NewPublisher creates a publisher. A nil client disables publishing.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{client: client, prefix: prefix, gates: make(map[string]bool)}
}

// PublishEvent sends ev to the session's events topic. Gate events are also
// published retained to the AR topic.
func (p *Publisher) PublishEvent(sessionID string, ev scene.Event) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := p.publish(p.topic(sessionID, "events"), false, payload); err != nil {
		return err
	}
	if ev.Type == scene.EventARGate && ev.Enabled != nil {
		return p.PublishGate(sessionID, *ev.Enabled)
	}
	return nil
}

// PublishGate publishes the retained AR gate state for a session.
func (p *Publisher) PublishGate(sessionID string, enabled bool) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	payload, err := json.Marshal(gatePayload{Session: sessionID, Enabled: enabled, Timestamp: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("marshaling gate: %w", err)
	}
	if err := p.publish(p.topic(sessionID, "ar"), true, payload); err != nil {
		return err
	}
	p.mu.Lock()
	p.gates[sessionID] = enabled
	p.mu.Unlock()
	log.Printf("[MQTT] session %s AR gate: %v", sessionID, enabled)
	return nil
}

// ClearSession removes the retained gate of a closed session.
func (p *Publisher) ClearSession(sessionID string) error {
	p.mu.Lock()
	delete(p.gates, sessionID)
	p.mu.Unlock()
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	return p.publish(p.topic(sessionID, "ar"), true, []byte{})
}

// Gate returns the last published gate state of a session.
func (p *Publisher) Gate(sessionID string) (enabled, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	enabled, ok = p.gates[sessionID]
	return enabled, ok
}

func (p *Publisher) topic(sessionID, leaf string) string {
	return fmt.Sprintf("%s/%s/%s", p.prefix, sessionID, leaf)
}

func (p *Publisher) publish(topic string, retain bool, payload []byte) error {
	token := p.client.Publish(topic, p.qos, retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}
