package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// subackFailure is the SUBACK return code for a refused subscription.
const subackFailure = 0x80

// Subscribe asks the broker for messages matching filter.
//
// Filters may contain MQTT wildcards:
//   - + (single-level): "sensors/+/temperature"
//   - # (multi-level): "sensors/#"
//
// Matching messages are passed to the OnMessage callback.
//
// Parameters:
//   - filter: The topic filter to subscribe to
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//
// Returns:
//   - bool: false if the broker refused the subscription
//   - error: nil on success or refusal, or wrapped error describing the failure
func (c *Client) Subscribe(filter string, qos byte) (bool, error) {
	if err := ValidateFilter(filter); err != nil {
		return false, err
	}
	if qos > maxQoS {
		return false, ErrInvalidQoS
	}

	client, err := c.connectedClient()
	if err != nil {
		return false, err
	}

	// No per-filter handler: paho would call it once per matching
	// subscription. Everything arrives once through the default handler.
	token := client.Subscribe(filter, qos, nil)
	if !token.WaitTimeout(defaultOperationTimeout) {
		return false, fmt.Errorf("%w: %s: %w after %v", ErrSubscribeFailed, filter, ErrTimeout, defaultOperationTimeout)
	}
	if err := token.Error(); err != nil {
		c.refused("subscribe", filter, err)
		return false, nil
	}
	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		if code, found := st.Result()[filter]; found && code == subackFailure {
			c.refused("subscribe", filter, fmt.Errorf("SUBACK return code 0x%02x", code))
			return false, nil
		}
	}

	return true, nil
}

// Unsubscribe removes the subscription for filter.
//
// Messages already in flight may still be delivered.
//
// Parameters:
//   - filter: The exact filter that was subscribed to
//
// Returns:
//   - bool: false if the broker did not accept the request
//   - error: nil on success or refusal, or wrapped error describing the failure
func (c *Client) Unsubscribe(filter string) (bool, error) {
	if err := ValidateFilter(filter); err != nil {
		return false, err
	}

	client, err := c.connectedClient()
	if err != nil {
		return false, err
	}

	token := client.Unsubscribe(filter)
	if !token.WaitTimeout(defaultOperationTimeout) {
		return false, fmt.Errorf("%w: %s: %w after %v", ErrUnsubscribeFailed, filter, ErrTimeout, defaultOperationTimeout)
	}
	if err := token.Error(); err != nil {
		c.refused("unsubscribe", filter, err)
		return false, nil
	}

	return true, nil
}

func (c *Client) refused(op, topic string, err error) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT broker refused operation",
			"operation", op,
			"topic", topic,
			"error", err,
		)
	}
}
