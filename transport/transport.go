// Package transport supplies the byte-duplex connection the engine reads
// and writes control packets over, plus small helpers for establishing one.
// Transport setup itself (TCP, TLS, proxies, WebSocket framing) is outside
// the engine's scope; callers provide a Transport however they see fit.
package transport

import (
	"crypto/tls"
	"net"
	"time"
)

// Transport is the minimal connection contract the engine needs. A plain
// net.Conn already satisfies it.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// DialTCP opens a plain TCP connection to addr (host:port).
func DialTCP(addr string, timeout time.Duration) (Transport, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// DialTLS opens a TLS connection to addr. cfg may be nil to use defaults.
func DialTLS(addr string, cfg *tls.Config, timeout time.Duration) (Transport, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Counting wraps a Transport and tracks cumulative bytes moved across it,
// the basis for Client.Stats(). Grounded on the counting reader/writer
// pattern used to track client byte counters.
type Counting struct {
	Transport
	sent     uint64
	received uint64
}

// NewCounting wraps t.
func NewCounting(t Transport) *Counting {
	return &Counting{Transport: t}
}

func (c *Counting) Read(p []byte) (int, error) {
	n, err := c.Transport.Read(p)
	c.received += uint64(n)
	return n, err
}

func (c *Counting) Write(p []byte) (int, error) {
	n, err := c.Transport.Write(p)
	c.sent += uint64(n)
	return n, err
}

// BytesSent returns the cumulative bytes written through this wrapper.
func (c *Counting) BytesSent() uint64 { return c.sent }

// BytesReceived returns the cumulative bytes read through this wrapper.
func (c *Counting) BytesReceived() uint64 { return c.received }
