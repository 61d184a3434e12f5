package relay

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultPrefix is the topic root when none is configured.
const DefaultPrefix = "reskin"

// Config holds the broker settings. Environment variables take precedence
// over the values loaded from the service config file.
type Config struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"clientId"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
}

// Resolve applies the MQTT_* environment overrides and defaults.
func (c Config) Resolve() Config {
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.Broker = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		c.ClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("MQTT_PUBLISH_PREFIX"); v != "" {
		c.Prefix = v
	}
	if c.ClientID == "" {
		c.ClientID = "reskin"
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	c.Prefix = strings.TrimSuffix(c.Prefix, "/")
	return c
}

// Command is a remote instruction for one session, received on
// <prefix>/<session>/assign. Any combination of fields may be set; they are
// applied in the order item, assignment, variant.
type Command struct {
	Item    string `json:"item,omitempty"`
	Slot    string `json:"slot,omitempty"`
	Preset  string `json:"preset,omitempty"`
	Variant string `json:"variant,omitempty"`
}

// CommandHandler is called for every command message. err is set when the
// payload could not be decoded.
type CommandHandler func(sessionID string, cmd Command, err error)

// Client manages the broker connection and the command subscription.
type Client struct {
	client      mqtt.Client
	config      Config
	handler     CommandHandler
	isConnected bool
	mu          sync.RWMutex
}

// InitMQTT connects to the configured broker in the background. Without a
// broker MQTT is disabled and InitMQTT returns nil, nil.
func InitMQTT(config Config, handler CommandHandler) (*Client, error) {
	config = config.Resolve()
	if config.Broker == "" {
		log.Println("[MQTT] disabled: MQTT_BROKER not set")
		return nil, nil
	}
	if handler == nil {
		return nil, fmt.Errorf("MQTT enabled but no command handler provided")
	}

	c := &Client{config: config, handler: handler}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.client = mqtt.NewClient(opts)
	go c.connectWithRetry()
	return c, nil
}

func (c *Client) connectWithRetry() {
	retryDelay := time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Printf("[MQTT] connecting to %s...", c.config.Broker)
		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] connected")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] connection timeout")
		}

		log.Printf("[MQTT] retrying in %v", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// CommandTopic is the subscription filter for session commands.
func (c *Client) CommandTopic() string {
	return c.config.Prefix + "/+/assign"
}

func (c *Client) onConnect(client mqtt.Client) {
	c.setConnected(true)
	topic := c.CommandTopic()
	token := client.Subscribe(topic, 1, c.handleCommand)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("[MQTT] subscribe %s: %v", topic, token.Error())
		return
	}
	log.Printf("[MQTT] subscribed to %s", topic)
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	log.Printf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *Client) onReconnecting(mqtt.Client, *mqtt.ClientOptions) {
	log.Println("[MQTT] reconnecting...")
}

func (c *Client) handleCommand(_ mqtt.Client, msg mqtt.Message) {
	sessionID, ok := sessionFromTopic(c.config.Prefix, msg.Topic())
	if !ok {
		log.Printf("[MQTT] ignoring message on %s", msg.Topic())
		return
	}
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		log.Printf("[MQTT] bad command for session %s: %v", sessionID, err)
		c.handler(sessionID, Command{}, fmt.Errorf("decoding command: %w", err))
		return
	}
	c.handler(sessionID, cmd, nil)
}

// sessionFromTopic extracts the session id from <prefix>/<session>/assign.
func sessionFromTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/assign")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *Client) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect closes the broker connection.
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] disconnecting")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// Prefix returns the resolved topic root.
func (c *Client) Prefix() string {
	return c.config.Prefix
}

// GetClient returns the underlying client for publishing.
func (c *Client) GetClient() mqtt.Client {
	return c.client
}

func newClientWithMock(client mqtt.Client, config Config, handler CommandHandler) *Client {
	return &Client{client: client, config: config.Resolve(), handler: handler}
}
