package mq

import (
	"sync"

	"github.com/wireloop/mq/transport"
)

// SyncClient wraps a Client with a mutex so Publish/Subscribe/Unsubscribe
// can be called from goroutines other than the one running Loop. This is
// not part of the core engine's contract (the engine itself is never
// thread-safe); it exists because the obvious way to use this package from
// a larger concurrent program is to run Loop on its own goroutine and call
// the API from others.
type SyncClient struct {
	mu sync.Mutex
	c  *Client
}

// NewSyncClient wraps c.
func NewSyncClient(c *Client) *SyncClient {
	return &SyncClient{c: c}
}

func (s *SyncClient) Connect(conn transport.Transport, settings *ConnectionSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Connect(conn, settings)
}

func (s *SyncClient) Publish(topic string, payload []byte, qos QoS, retain bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Publish(topic, payload, qos, retain)
}

func (s *SyncClient) Subscribe(filter string, qos QoS, handler MessageHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Subscribe(filter, qos, handler)
}

func (s *SyncClient) Unsubscribe(filter string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Unsubscribe(filter)
}

func (s *SyncClient) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Disconnect()
}

func (s *SyncClient) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Stats()
}

func (s *SyncClient) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Interrupt()
}

// Loop holds the lock for the wrapped Client's entire event loop duration.
// This is the simplest correct strategy: Publish/Subscribe calls from other
// goroutines block until Loop returns. Run Loop with a bounded LoopOptions
// (WaitLimit or ExitWhenQueuesEmpty) if callers need periodic access.
func (s *SyncClient) Loop(opts LoopOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Loop(opts)
}
