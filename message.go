package mq

// Message is a decoded application-level MQTT message, handed to a
// subscription's handler once delivery is safe to complete: immediately for
// QoS 0/1, and only after the PUBREL leg for QoS 2.
type Message struct {
	Topic     string
	Payload   []byte
	QoS       QoS
	Retained  bool
	Duplicate bool

	// Wildcards holds the concrete text each "+" or trailing "#" in the
	// matching subscription's filter captured, in filter order.
	Wildcards []string
}
