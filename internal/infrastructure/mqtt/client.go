package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/coldtag-core/internal/infrastructure/config"
)

// Client is the broker link of the ingestion service.
//
// It holds no subscription state. The broker forgets subscriptions when a
// clean session drops, so whoever subscribed must subscribe again from the
// SetOnConnect callback. On every (re)connect the client publishes a retained
// online status; the broker publishes the LWT when the link dies.
//
// All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	connected atomic.Bool

	mu           sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is the subset of logging.Logger the client writes to.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives one message.
//
// paho delivers messages in order on a single goroutine, so a handler that
// blocks delays every subscription. A returned error is logged.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and waits up to the connect timeout for the
// first CONNACK. Later drops are retried in the background; see
// buildClientOptions for the cadence.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{cfg: cfg}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connectionUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.connectionDown(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT reconnecting", "broker", cfg.Broker.Host)
		}
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		// ConnectRetry keeps dialling in the background until told to stop.
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w after %v", ErrConnectionFailed, ErrTimeout, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs on its own goroutine and may not have
	// fired yet.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) connectionUp() {
	c.connected.Store(true)
	c.publishStatus(buildOnlinePayload(c.cfg.Broker.ClientID), false)

	c.mu.RLock()
	callback := c.onConnect
	c.mu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) connectionDown(err error) {
	c.connected.Store(false)

	c.mu.RLock()
	callback := c.onDisconnect
	c.mu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// publishStatus writes the retained status message. With wait set it blocks
// until the broker acknowledges or the publish timeout passes.
func (c *Client) publishStatus(payload string, wait bool) {
	token := c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
	if !wait {
		return
	}
	if !token.WaitTimeout(defaultAckTimeout) || token.Error() != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT status publish failed", "error", token.Error())
		}
	}
}

// Close publishes a graceful offline status, distinct from the LWT, then
// disconnects after the quiesce period.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.isConnected() {
		c.publishStatus(buildOfflinePayload(c.cfg.Broker.ClientID), true)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.isConnected() {
		return ErrNotConnected
	}
	return nil
}

// isConnected reports the last known connection state.
func (c *Client) isConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

// SetOnConnect sets the callback run after every successful (re)connect.
// It runs on a paho goroutine and may block.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets the callback run when the link drops unexpectedly.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the logger for handler failures and reconnects.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}
