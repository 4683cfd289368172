package mqtt

// Message is an inbound message as delivered by the broker.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// String returns the payload as text.
func (m Message) String() string {
	return string(m.Payload)
}
