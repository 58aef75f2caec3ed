package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-things/internal/infrastructure/config"
)

// Client is one broker session shared by the binding and the MQTT protocol
// client. Subscriptions are remembered and replayed after every reconnect.
// All methods are safe for concurrent use.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	mu           sync.RWMutex
	subs         map[string]subscription
	logger       Logger
	onConnect    func()
	onDisconnect func(err error)

	up atomic.Bool

	published     atomic.Uint64
	received      atomic.Uint64
	handlerErrors atomic.Uint64
	reconnects    atomic.Uint64
}

// Logger is satisfied by logging.Logger and *slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Stats counts traffic through the session since Connect.
type Stats struct {
	Published     uint64 `json:"messages_published"`
	Received      uint64 `json:"messages_received"`
	HandlerErrors uint64 `json:"handler_errors"`
	Reconnects    uint64 `json:"reconnects"`
}

// Connect opens a session to the configured broker and announces the
// runtime as online on the system status topic. The broker publishes the
// offline will if the session later drops without Close.
//
// The wait for the CONNACK is bounded by ctx and a 10 second ceiling.
func Connect(ctx context.Context, cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		topics: NewTopics(cfg.TopicPrefix),
		subs:   make(map[string]subscription),
	}

	opts := clientOptions(cfg, c.topics)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.sessionUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.sessionLost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.reconnects.Add(1)
		if l := c.log(); l != nil {
			l.Warn("MQTT reconnecting", "client_id", cfg.Broker.ClientID)
		}
	})

	c.paho = pahomqtt.NewClient(opts)
	if err := await(ctx, c.paho.Connect(), defaultConnectTimeout); err != nil {
		// Stops the background connect retry.
		c.paho.Disconnect(0)
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, brokerURL(cfg), err)
	}

	// The OnConnect handler runs asynchronously; mark the session up here
	// so IsConnected is true as soon as Connect returns.
	c.up.Store(true)
	return c, nil
}

// await waits for token, ctx or limit, whichever comes first.
func await(ctx context.Context, token pahomqtt.Token, limit time.Duration) error {
	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, limit)
	}
}

func (c *Client) sessionUp() {
	c.up.Store(true)

	c.mu.RLock()
	for topic, sub := range c.subs {
		// Completion is not awaited; a failed replay shows up as a
		// missing subscription on the broker and is retried next reconnect.
		c.paho.Subscribe(topic, sub.qos, c.dispatch(sub.handler))
	}
	callback := c.onConnect
	c.mu.RUnlock()

	c.paho.Publish(c.topics.SystemStatus(), c.QoS(), true, statusPayload(StatusOnline, c.cfg.Broker.ClientID, ""))

	if callback != nil {
		callback()
	}
}

func (c *Client) sessionLost(err error) {
	c.up.Store(false)

	c.mu.RLock()
	callback := c.onDisconnect
	c.mu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// Close publishes a graceful offline status and disconnects. Calling Close
// on a closed or never connected client is a no-op.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}

	if c.up.Swap(false) && c.paho.IsConnected() {
		token := c.paho.Publish(c.topics.SystemStatus(), c.QoS(), true,
			statusPayload(StatusOffline, c.cfg.Broker.ClientID, ReasonShutdown))
		//nolint:errcheck // best effort; the will covers a lost offline status
		await(context.Background(), token, defaultPublishTimeout)
	}

	c.paho.Disconnect(disconnectQuiesceMillis)
	return nil
}

// HealthCheck reports ErrNotConnected while the session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the session is currently up.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.up.Load() && c.paho.IsConnected()
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// ClientID returns the MQTT client identifier of this session.
func (c *Client) ClientID() string {
	return c.cfg.Broker.ClientID
}

// QoS returns the configured default QoS level.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS) //nolint:gosec // validated to 0..2 by config
}

// Stats returns the traffic counters.
func (c *Client) Stats() Stats {
	return Stats{
		Published:     c.published.Load(),
		Received:      c.received.Load(),
		HandlerErrors: c.handlerErrors.Load(),
		Reconnects:    c.reconnects.Load(),
	}
}

// SetOnConnect sets a callback run after the initial connect and after
// every reconnect. nil clears it.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback run when the session is lost. nil clears it.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the logger for handler failures. Without one they are
// only counted.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}
