// Package mqtt wraps the pub/sub transport behind a small Channel interface
// so the agent and the authorization service never see the broker client
// directly, and tests can run against an in-memory fake.
package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

var ErrPublishTimeout = errors.New("publish timed out")

// Handler receives inbound payloads for a subscribed topic.
type Handler func(topic string, payload []byte)

// Channel is the transport seen by the rest of the system: at-least-once
// delivery on named topics, no ordering guarantee across topics. Treated as
// an untrusted, lossy wire.
type Channel interface {
	Publish(topic string, qos byte, payload []byte) error
	Subscribe(topic string, qos byte, h Handler) error
	Close()
}

type subscription struct {
	qos     byte
	handler Handler
}

// Client is the paho-backed Channel. It reconnects automatically and
// replays its subscriptions on every (re)connect, since the broker may have
// dropped session state while we were away.
type Client struct {
	client paho.Client
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]subscription

	opTimeout time.Duration
}

// NewClient connects to the broker and returns a ready Channel. clientID
// must be stable per device so the broker can tell sessions apart.
func NewClient(brokerURL, clientID string, logger *slog.Logger) (*Client, error) {
	c := &Client{
		logger:    logger,
		subs:      make(map[string]subscription),
		opTimeout: 10 * time.Second,
	}

	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second).
		SetKeepAlive(60 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		})

	c.client = paho.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(c.opTimeout) {
		return nil, fmt.Errorf("connect to %s: %w", brokerURL, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", brokerURL, err)
	}

	return c, nil
}

func (c *Client) onConnect(client paho.Client) {
	c.logger.Info("mqtt connected")

	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, sub := range c.subs {
		if err := c.subscribe(topic, sub); err != nil {
			c.logger.Error("mqtt resubscribe failed", "topic", topic, "error", err)
		}
	}
}

// Publish sends a payload and waits for broker acknowledgement up to the
// operation timeout. A timeout is returned as an error; the caller's own
// retry or timeout policy decides what happens next.
func (c *Client) Publish(topic string, qos byte, payload []byte) error {
	token := c.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(c.opTimeout) {
		return fmt.Errorf("publish to %s: %w", topic, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers a handler and remembers the subscription so it
// survives reconnects.
func (c *Client) Subscribe(topic string, qos byte, h Handler) error {
	sub := subscription{qos: qos, handler: h}

	c.mu.Lock()
	c.subs[topic] = sub
	c.mu.Unlock()

	return c.subscribe(topic, sub)
}

func (c *Client) subscribe(topic string, sub subscription) error {
	token := c.client.Subscribe(topic, sub.qos, func(_ paho.Client, msg paho.Message) {
		sub.handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(c.opTimeout) {
		return fmt.Errorf("subscribe to %s: %w", topic, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight messages a short
// grace period to drain.
func (c *Client) Close() {
	c.client.Disconnect(250)
}
