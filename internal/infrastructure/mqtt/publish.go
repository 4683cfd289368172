package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends a message to the specified MQTT topic.
//
// Parameters:
//   - topic: The topic to publish to (no wildcards)
//   - payload: The message payload (max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// QoS 0 completes once the message is written to the connection; QoS 1 and 2
// wait for the broker's acknowledgment.
//
// Returns:
//   - bool: false if the client could not complete the publish exchange
//   - error: nil on success or refusal, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) (bool, error) {
	if err := ValidateTopic(topic); err != nil {
		return false, err
	}
	if qos > maxQoS {
		return false, ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return false, fmt.Errorf("%w: %d exceeds maximum %d bytes", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	}

	client, err := c.connectedClient()
	if err != nil {
		return false, err
	}

	token := client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultOperationTimeout) {
		return false, fmt.Errorf("%w: %s: %w after %v", ErrPublishFailed, topic, ErrTimeout, defaultOperationTimeout)
	}
	if err := token.Error(); err != nil {
		c.refused("publish", topic, err)
		return false, nil
	}

	return true, nil
}
