package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"rollingdoor-backend/config"
	"rollingdoor-backend/session"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Inbound receives device lifecycle events. The coordinator implements it.
type Inbound interface {
	OnConnect(ctx context.Context, deviceID string, conn session.Conn) error
	OnDisconnect(deviceID string, conn session.Conn)
	OnMessage(deviceID, text string)
}

// Bridge turns broker traffic into device sessions. A device that publishes
// "online" gets a session whose writes become publishes on its command topic.
type Bridge struct {
	cfg     config.MQTTConfig
	timeout time.Duration
	inbound Inbound
	log     *slog.Logger

	mu    sync.Mutex
	conns map[string]*deviceConn
}

func NewBridge(cfg config.MQTTConfig, publishTimeout time.Duration, inbound Inbound) *Bridge {
	return &Bridge{
		cfg:     cfg,
		timeout: publishTimeout,
		inbound: inbound,
		log:     slog.With("component", "mqtt"),
		conns:   make(map[string]*deviceConn),
	}
}

// Run connects to the broker and serves until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	paho.ERROR = slog.NewLogLogger(b.log.Handler(), slog.LevelError)

	var client *Client
	client = NewClient(b.cfg, b.timeout, func(c paho.Client) {
		b.subscribe(ctx, c, client)
	})
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Disconnect(250 * time.Millisecond)

	<-ctx.Done()
	b.dropAll()
	return nil
}

func (b *Bridge) subscribe(ctx context.Context, c paho.Client, pub Publisher) {
	handler := func(_ paho.Client, m paho.Message) {
		b.dispatch(ctx, pub, m.Topic(), m.Payload())
	}
	for _, kind := range []string{topicStatus, topicEvents} {
		filter := deviceTopic(b.cfg.TopicPrefix, "+", kind)
		token := c.Subscribe(filter, qosAtLeastOnce, handler)
		if !token.WaitTimeout(connectTimeout) {
			b.log.Error("Subscribe timed out", "topic", filter)
		} else if err := token.Error(); err != nil {
			b.log.Error("Subscribe failed", "topic", filter, "error", err)
		}
	}
}

// dispatch routes one inbound message by topic suffix.
func (b *Bridge) dispatch(ctx context.Context, pub Publisher, topic string, payload []byte) {
	deviceID, kind, ok := parseTopic(b.cfg.TopicPrefix, topic)
	if !ok {
		b.log.Debug("Ignoring message on unexpected topic", "topic", topic)
		return
	}
	switch kind {
	case topicStatus:
		b.handleStatus(ctx, pub, deviceID, strings.ToLower(strings.TrimSpace(string(payload))))
	case topicEvents:
		b.inbound.OnMessage(deviceID, string(payload))
	}
}

func (b *Bridge) handleStatus(ctx context.Context, pub Publisher, deviceID, status string) {
	switch status {
	case "online":
		conn := &deviceConn{pub: pub, topic: deviceTopic(b.cfg.TopicPrefix, deviceID, topicCommand)}
		if err := b.inbound.OnConnect(ctx, deviceID, conn); err != nil {
			b.log.Warn("Rejected MQTT device", "device_id", deviceID, "error", err)
			return
		}
		b.mu.Lock()
		b.conns[deviceID] = conn
		b.mu.Unlock()
	case "offline":
		b.mu.Lock()
		conn := b.conns[deviceID]
		delete(b.conns, deviceID)
		b.mu.Unlock()
		if conn != nil {
			b.inbound.OnDisconnect(deviceID, conn)
			_ = conn.Close()
		}
	default:
		b.log.Debug("Unknown device status", "device_id", deviceID, "status", status)
	}
}

// dropAll ends every MQTT-backed session, used on shutdown.
func (b *Bridge) dropAll() {
	b.mu.Lock()
	conns := b.conns
	b.conns = make(map[string]*deviceConn)
	b.mu.Unlock()

	for id, conn := range conns {
		b.inbound.OnDisconnect(id, conn)
		_ = conn.Close()
	}
}

// deviceConn is a session.Conn whose writes are publishes on the device's
// command topic.
type deviceConn struct {
	pub    Publisher
	topic  string
	closed atomic.Bool
}

func (c *deviceConn) WriteText(payload string) error {
	if c.closed.Load() {
		return session.ErrClosed
	}
	if err := c.pub.Publish(c.topic, payload); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}

func (c *deviceConn) Writable() bool {
	return !c.closed.Load() && c.pub.Connected()
}

func (c *deviceConn) Close() error {
	c.closed.Store(true)
	return nil
}
