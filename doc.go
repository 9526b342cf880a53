// Package mq is an MQTT 3.1/3.1.1 client engine.
//
// It maintains a long-lived, single-broker session over a byte-oriented
// transport supplied by the caller, encodes and decodes MQTT control
// packets (internal/packets), drives the QoS 0/1/2 handshakes for inbound
// and outbound messages, matches inbound publications against subscribed
// topic filters (topic), and persists in-flight protocol state through a
// pluggable Repository (repository), defaulting to an in-memory store.
//
// The engine is single-threaded and cooperative: one goroutine owns a
// Client for its entire lifetime, calling Connect once and then Loop
// repeatedly (or in one long-running call) until Interrupt is called or a
// fatal error terminates the loop. Publish, Subscribe, Unsubscribe, and
// Disconnect are ordinary synchronous methods on that same goroutine; none
// of them spawn background work. Callers who need to drive the engine from
// multiple goroutines can wrap a Client in a SyncClient.
//
// Establishing the underlying connection (TCP, TLS, WebSocket framing) is
// outside this package's scope; see the transport package for a minimal
// Transport interface and a couple of dialing helpers.
//
//	conn, err := transport.DialTCP("broker.example.com:1883", 10*time.Second)
//	client, err := mq.NewClient(mq.WithClientID("sensor-1"))
//	err = client.Connect(conn, &settings)
//	err = client.Subscribe("sensors/+/temperature", mq.AtLeastOnce, handler)
//	err = client.Loop(mq.LoopOptions{})
package mq
