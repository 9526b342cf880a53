package mq

import (
	"time"

	"github.com/wireloop/mq/internal/packets"
)

const (
	idleSleep    = 100 * time.Millisecond
	resendTick   = 1 * time.Second
	readChunk    = 4096
)

// LoopOptions controls how Loop decides to exit on its own.
type LoopOptions struct {
	// ExitWhenQueuesEmpty, if true, exits once every pending map is empty
	// and no subscriptions remain.
	ExitWhenQueuesEmpty bool
	// WaitLimit, if non-zero, additionally permits exit once elapsed
	// without any pending maps being checked, provided no subscriptions
	// remain.
	WaitLimit time.Duration
}

// Loop runs the single-threaded cooperative event loop until Interrupt is
// called, a fatal error occurs, or the exit policy in opts is satisfied. It
// owns the session for its entire duration; no other goroutine may touch c
// concurrently.
func (c *Client) Loop(opts LoopOptions) error {
	if c.state != stateConnected {
		return newErr(KindNotConnected, CodeNotConnected, "loop called while not connected")
	}
	start := time.Now()
	readBuf := make([]byte, readChunk)

	for {
		// 1. interrupt check
		if c.interrupted {
			c.interrupted = false
			return nil
		}

		// 2. loop hooks
		elapsed := time.Since(start)
		for _, h := range c.loopHooks {
			hook := h
			c.invokeCallback("loop-hook", func() { hook.fn(c, elapsed) })
		}

		// 3. non-blocking read
		gotBytes, err := c.pollTransport(readBuf)
		if err != nil {
			c.state = stateDisconnected
			return err
		}

		// 4. repeatedly try_parse and dispatch
		if err := c.drainReceiveBuffer(); err != nil {
			c.state = stateDisconnected
			return err
		}

		// 5. idle sleep
		if !gotBytes {
			time.Sleep(idleSleep)
		}

		// 6. resend pass, once per second
		now := time.Now()
		if now.Sub(c.lastResend) >= resendTick {
			c.lastResend = now
			if err := c.resendPending(now); err != nil {
				c.state = stateDisconnected
				return err
			}
		}

		// 7. keep-alive
		if now.Sub(c.lastActivity) >= c.settings.KeepAlive {
			if err := c.send(&packets.PingreqPacket{}); err != nil {
				c.state = stateDisconnected
				return err
			}
			c.lastActivity = now
		}

		// 8. exit-when-idle policy
		if c.shouldExit(opts, start) {
			return nil
		}
	}
}

func (c *Client) pollTransport(buf []byte) (bool, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	n, err := c.conn.Read(buf)
	if n > 0 {
		c.recvBuf = append(c.recvBuf, buf[:n]...)
	}
	if err != nil {
		if isTimeout(err) {
			return n > 0, nil
		}
		return n > 0, wrapErr(KindDataTransfer, CodeRXFailure, "reading from transport", err)
	}
	return n > 0, nil
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	t, ok := err.(timeouter)
	return ok && t.Timeout()
}

func (c *Client) drainReceiveBuffer() error {
	for {
		pkt, consumed, _, err := packets.TryParse(c.recvBuf)
		if err != nil {
			return wrapErr(KindProtocolViolation, CodeConnectionFailed, "malformed control packet", err)
		}
		if pkt == nil {
			return nil
		}
		c.recvBuf = c.recvBuf[consumed:]
		if err := c.dispatch(pkt); err != nil {
			return err
		}
	}
}

func (c *Client) resendPending(now time.Time) error {
	for _, p := range c.repo.PendingPublishesOlderThan(c.settings.ResendTimeout, now) {
		// Once PUBREC has been seen for a QoS 2 publish, the outstanding
		// leg is PUBREL, not the original PUBLISH; resend that instead.
		if p.Acked {
			if err := c.send(&packets.PubrelPacket{PacketID: p.PacketID}); err != nil {
				return err
			}
		} else {
			pkt := &packets.PublishPacket{
				Dup: true, QoS: p.QoS, Retain: p.Retain, Topic: p.Topic, PacketID: p.PacketID, Payload: p.Payload,
			}
			if err := c.send(pkt); err != nil {
				return err
			}
		}
		p.Sent = now
		p.Attempts++
	}
	for id, filters := range c.repo.PendingUnsubscribesOlderThan(c.settings.ResendTimeout, now) {
		pkt := &packets.UnsubscribePacket{PacketID: id, Filters: filters}
		if err := c.send(pkt); err != nil {
			return err
		}
		c.repo.AddPendingUnsubscribe(id, filters, now)
	}
	return nil
}

func (c *Client) shouldExit(opts LoopOptions, start time.Time) bool {
	noSubscriptions := c.repo.CountSubscriptions() == 0
	if opts.ExitWhenQueuesEmpty {
		queuesEmpty := c.repo.CountPendingPublishes() == 0 &&
			c.repo.CountPendingUnsubscribes() == 0 &&
			c.repo.CountPendingConfirmations() == 0
		if queuesEmpty && noSubscriptions {
			return true
		}
	}
	if opts.WaitLimit > 0 && time.Since(start) >= opts.WaitLimit && noSubscriptions {
		return true
	}
	return false
}
