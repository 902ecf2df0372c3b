// mqtt.go - MQTT broker connection and command publishing
// Devices that cannot hold a WebSocket talk to the backend through a broker:
// 1. Each device announces itself on <prefix>/<deviceId>/status (online/offline)
// 2. Commands are published to <prefix>/<deviceId>/command with QoS 1
// 3. Anything the device reports arrives on <prefix>/<deviceId>/events

package mqtt // Declares the package name

import ( // Import required packages
	"fmt"
	"log/slog"
	"strings"
	"time"

	"rollingdoor-backend/config" // Broker settings

	paho "github.com/eclipse/paho.mqtt.golang" // Eclipse Paho MQTT client
)

const (
	qosAtLeastOnce = 1
	connectTimeout = 10 * time.Second
)

// Topic suffixes under <prefix>/<deviceId>/
const (
	topicStatus  = "status"
	topicCommand = "command"
	topicEvents  = "events"
)

// Publisher sends one message to a topic. It is implemented by the paho
// client and replaced in tests.
type Publisher interface {
	Publish(topic, payload string) error
	Connected() bool
}

// Client is a connected paho client that publishes with a bounded wait.
type Client struct {
	paho    paho.Client
	broker  string
	timeout time.Duration
}

// NewClient prepares a client for the broker described by cfg. onConnect runs
// after every successful (re)connect, so subscriptions placed there survive
// reconnects.
func NewClient(cfg config.MQTTConfig, publishTimeout time.Duration, onConnect func(paho.Client)) *Client {
	opts := paho.NewClientOptions() // Create MQTT client options
	opts.AddBroker(cfg.Broker)      // Set broker address
	opts.SetClientID(cfg.ClientID)  // Set client ID
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(func(c paho.Client) {
		slog.Info("Connected to MQTT broker", "component", "mqtt", "broker", cfg.Broker)
		if onConnect != nil {
			onConnect(c)
		}
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		slog.Warn("MQTT connection lost", "component", "mqtt", "error", err)
	})
	return &Client{paho: paho.NewClient(opts), broker: cfg.Broker, timeout: publishTimeout}
}

// Connect dials the broker and waits for the session to be established.
func (c *Client) Connect() error {
	token := c.paho.Connect() // Connect to broker
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connect to %s: timed out after %s", c.broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", c.broker, err)
	}
	return nil
}

// Publish sends payload at QoS 1 and waits for the broker to acknowledge it.
func (c *Client) Publish(topic, payload string) error {
	token := c.paho.Publish(topic, qosAtLeastOnce, false, payload)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("publish to %s: timed out", topic)
	}
	return token.Error()
}

func (c *Client) Connected() bool {
	return c.paho.IsConnectionOpen()
}

// Disconnect waits up to quiesce for in-flight work before closing.
func (c *Client) Disconnect(quiesce time.Duration) {
	c.paho.Disconnect(uint(quiesce / time.Millisecond))
}

func deviceTopic(prefix, deviceID, kind string) string {
	return prefix + "/" + deviceID + "/" + kind
}

// parseTopic splits <prefix>/<deviceId>/<kind>.
func parseTopic(prefix, topic string) (deviceID, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, prefix+"/")
	if !found {
		return "", "", false
	}
	deviceID, kind, found = strings.Cut(rest, "/")
	if !found || deviceID == "" || kind == "" || strings.Contains(kind, "/") {
		return "", "", false
	}
	return deviceID, kind, true
}
