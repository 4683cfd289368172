package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mqtt-interface/internal/infrastructure/config"
)

// Client adapts paho.mqtt.golang to the shape the interface facade drives.
//
// Each operation returns (ok, err): err when the call could not be carried
// out (invalid input, not connected, no acknowledgment in time), and
// ok=false with a nil error when the broker answered but refused it.
//
// Thread Safety:
//   - All methods are safe for concurrent use, but the facade calls
//     Subscribe, Unsubscribe and Publish from its single command worker.
//   - OnConnect, OnConnectionLost and OnMessage callbacks run on paho's
//     goroutines. Messages are delivered one at a time, in arrival order.
type Client struct {
	cfg      config.MQTTConfig
	clientID string
	client   pahomqtt.Client

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	onConnect        func()
	onConnectionLost func(err error)
	onMessage        func(Message)
	callbackMu       sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// New creates a client for the broker in cfg. It does not connect.
func New(cfg config.MQTTConfig) *Client {
	return &Client{
		cfg:      cfg,
		clientID: clientID(cfg),
	}
}

// ClientID returns the identifier presented to the broker.
func (c *Client) ClientID() string {
	return c.clientID
}

// Broker returns the broker URL.
func (c *Client) Broker() string {
	return brokerURL(c.cfg)
}

// Connect opens the connection to the broker and waits up to timeout
// (defaultConnectTimeout if zero or less) for the CONNACK.
//
// Callbacks must be installed before Connect. After the first successful
// connection paho reconnects on its own; OnConnect fires for each handshake.
//
// Returns:
//   - error: wraps ErrConnectionFailed if the broker is unreachable or
//     refuses the connection
func (c *Client) Connect(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	c.connMu.Lock()
	if c.client != nil {
		c.connMu.Unlock()
		return ErrAlreadyConnected
	}
	opts := buildClientOptions(c.cfg, c.clientID)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})
	opts.SetDefaultPublishHandler(c.deliver)
	c.client = pahomqtt.NewClient(opts)
	c.connMu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(timeout) {
		c.release()
		return fmt.Errorf("%w: %s: timeout after %v", ErrConnectionFailed, c.Broker(), timeout)
	}
	if err := token.Error(); err != nil {
		c.release()
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, c.Broker(), err)
	}

	// The OnConnect handler runs asynchronously and may not have run yet.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return nil
}

// handleConnect is called by paho for every completed handshake.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleConnectionLost is called by paho when the connection drops.
func (c *Client) handleConnectionLost(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "broker", c.Broker(), "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onConnectionLost
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// Disconnect closes the connection, waiting briefly for in-flight work.
// No messages are delivered after it returns. Safe on a client that never
// connected; Connect may be called again afterwards.
func (c *Client) Disconnect() {
	c.release()
}

// release detaches the paho client so a later Connect starts afresh.
func (c *Client) release() {
	c.connMu.Lock()
	client := c.client
	c.client = nil
	c.connected = false
	c.connMu.Unlock()

	if client == nil {
		return
	}
	client.Disconnect(defaultDisconnectQuiesce)
}

// HealthCheck verifies the MQTT connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetOnConnect sets a callback invoked after every successful handshake,
// the first one included.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnConnectionLost sets a callback invoked when the connection drops.
func (c *Client) SetOnConnectionLost(callback func(err error)) {
	c.callbackMu.Lock()
	c.onConnectionLost = callback
	c.callbackMu.Unlock()
}

// SetOnMessage sets the callback receiving every inbound message.
func (c *Client) SetOnMessage(callback func(Message)) {
	c.callbackMu.Lock()
	c.onMessage = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// deliver is the paho message handler for every subscription.
//
// A panicking OnMessage callback is recovered and logged so that it cannot
// take down paho's delivery goroutine.
func (c *Client) deliver(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("MQTT message handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}
	}()

	c.callbackMu.RLock()
	callback := c.onMessage
	c.callbackMu.RUnlock()
	if callback == nil {
		return
	}

	callback(Message{
		Topic:    msg.Topic(),
		Payload:  msg.Payload(),
		QoS:      msg.Qos(),
		Retained: msg.Retained(),
	})
}

// connectedClient returns the paho client, or ErrNotConnected.
func (c *Client) connectedClient() (pahomqtt.Client, error) {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	if c.client == nil || !c.connected || !c.client.IsConnected() {
		return nil, ErrNotConnected
	}
	return c.client, nil
}
