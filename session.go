package mq

import (
	"time"

	"github.com/wireloop/mq/internal/packets"
	"github.com/wireloop/mq/logging"
	"github.com/wireloop/mq/repository"
)

// writeNow encodes pkt and writes it straight to the transport, bypassing
// the outbox. Used only during the CONNECT/CONNACK handshake, before the
// event loop (and therefore any re-entrancy risk) exists.
func (c *Client) writeNow(pkt packets.Packet) error {
	buf := packets.GetBuffer()
	defer packets.PutBuffer(buf)
	if _, err := pkt.WriteTo(buf); err != nil {
		return wrapErr(KindDataTransfer, CodeTXFailure, "encoding packet", err)
	}
	if _, err := c.conn.Write(buf.Bytes()); err != nil {
		return wrapErr(KindDataTransfer, CodeTXFailure, "writing packet", err)
	}
	c.packetsSent.Add(1)
	return nil
}

// send encodes pkt and enqueues its bytes on the outbox. If no callback is
// currently being dispatched the outbox is flushed immediately, so ordinary
// (non-reentrant) calls still go out synchronously and in call order; a
// call made from inside a dispatched callback is deferred until dispatch
// unwinds, so a subscription handler can safely call Publish/Subscribe on
// the same client without writing to the transport mid-parse.
func (c *Client) send(pkt packets.Packet) error {
	buf := packets.GetBuffer()
	if _, err := pkt.WriteTo(buf); err != nil {
		packets.PutBuffer(buf)
		return wrapErr(KindDataTransfer, CodeTXFailure, "encoding packet", err)
	}
	raw := append([]byte(nil), buf.Bytes()...)
	packets.PutBuffer(buf)
	c.outbox = append(c.outbox, raw)
	if c.callbackDepth == 0 {
		return c.flushOutbox()
	}
	return nil
}

func (c *Client) flushOutbox() error {
	for len(c.outbox) > 0 {
		raw := c.outbox[0]
		c.outbox = c.outbox[1:]
		if _, err := c.conn.Write(raw); err != nil {
			return wrapErr(KindDataTransfer, CodeTXFailure, "writing packet", err)
		}
		c.packetsSent.Add(1)
	}
	return nil
}

// invokeCallback runs fn with panic recovery, logging at error level on
// panic so a misbehaving handler cannot bring down the event loop, and
// defers outbox flushing until the outermost callback returns so a
// handler that publishes does not interleave its write with mid-parse state.
func (c *Client) invokeCallback(name string, fn func()) {
	c.callbackDepth++
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("callback panicked", logging.Fields{"callback": name, "panic": r})
		}
		c.callbackDepth--
		if c.callbackDepth == 0 {
			if err := c.flushOutbox(); err != nil {
				c.logger.Error("flushing outbox after callback", logging.Fields{"error": err.Error()})
			}
		}
	}()
	fn()
}

// Publish emits a PUBLISH. For qos > 0 a packet identifier is allocated and
// a PendingPublish recorded so the event loop can retransmit it until
// acknowledged.
func (c *Client) Publish(topicName string, payload []byte, qos QoS, retain bool) error {
	if c.state != stateConnected {
		return newErr(KindNotConnected, CodeNotConnected, "publish called while not connected")
	}
	if !qos.valid() {
		return newErr(KindConfigurationInvalid, CodeConnectionFailed, "invalid QoS")
	}

	pkt := &packets.PublishPacket{Topic: topicName, Payload: payload, QoS: uint8(qos), Retain: retain}
	var id uint16
	if qos > AtMostOnce {
		var ok bool
		id, ok = c.repo.NewPacketID()
		if !ok {
			return newErr(KindRepository, CodeConnectionFailed, "no free packet identifiers")
		}
		pkt.PacketID = id
	}

	if err := c.send(pkt); err != nil {
		if qos > AtMostOnce {
			c.repo.Release(id)
		}
		return err
	}

	if qos > AtMostOnce {
		c.repo.AddPendingPublish(&repository.PendingPublish{
			PacketID: id,
			Topic:    topicName,
			Payload:  payload,
			QoS:      uint8(qos),
			Retain:   retain,
			Sent:     time.Now(),
			Attempts: 1,
		})
	}

	for _, h := range c.publishHooks {
		hook := h
		c.invokeCallback("publish-hook", func() { hook.fn(c, topicName, payload, id, qos, retain) })
	}
	return nil
}

// Subscribe compiles filter, registers handler, and emits SUBSCRIBE. handler
// is invoked for every inbound message matching filter once delivery is safe.
func (c *Client) Subscribe(filter string, qos QoS, handler MessageHandler) error {
	if c.state != stateConnected {
		return newErr(KindNotConnected, CodeNotConnected, "subscribe called while not connected")
	}
	if !qos.valid() {
		return newErr(KindConfigurationInvalid, CodeConnectionFailed, "invalid QoS")
	}
	compiled, err := compileFilter(filter)
	if err != nil {
		return wrapErr(KindConfigurationInvalid, CodeConnectionFailed, "invalid topic filter", err)
	}

	id, ok := c.repo.NewPacketID()
	if !ok {
		return newErr(KindRepository, CodeConnectionFailed, "no free packet identifiers")
	}

	sub := &repository.Subscription{Filter: compiled, QoS: uint8(qos), PacketID: id}
	c.repo.AddSubscription(sub)
	c.subscriptionHandlers[filter] = handler

	pkt := &packets.SubscribePacket{PacketID: id, Topics: []packets.SubscribeTopic{{Filter: filter, QoS: uint8(qos)}}}
	if err := c.send(pkt); err != nil {
		c.repo.RemoveSubscriptionByFilter(filter)
		delete(c.subscriptionHandlers, filter)
		c.repo.Release(id)
		return err
	}
	return nil
}

// Unsubscribe requires that filter is currently subscribed, then emits
// UNSUBSCRIBE. The subscription is removed only once UNSUBACK confirms it.
func (c *Client) Unsubscribe(filter string) error {
	if c.state != stateConnected {
		return newErr(KindNotConnected, CodeNotConnected, "unsubscribe called while not connected")
	}
	if _, ok := c.subscriptionHandlers[filter]; !ok {
		return newErr(KindTopicNotSubscribed, CodeConnectionFailed, "not subscribed to "+filter)
	}

	id, ok := c.repo.NewPacketID()
	if !ok {
		return newErr(KindRepository, CodeConnectionFailed, "no free packet identifiers")
	}
	c.repo.AddPendingUnsubscribe(id, []string{filter}, time.Now())

	pkt := &packets.UnsubscribePacket{PacketID: id, Filters: []string{filter}}
	if err := c.send(pkt); err != nil {
		c.repo.RemovePendingUnsubscribe(id)
		c.repo.Release(id)
		return err
	}
	return nil
}

// Disconnect emits DISCONNECT, closes the transport, and returns the session
// to Disconnected.
func (c *Client) Disconnect() error {
	if c.state != stateConnected {
		return newErr(KindNotConnected, CodeNotConnected, "disconnect called while not connected")
	}
	c.state = stateClosing
	sendErr := c.send(&packets.DisconnectPacket{})
	closeErr := c.conn.Close()
	c.state = stateDisconnected
	if sendErr != nil {
		return sendErr
	}
	if closeErr != nil {
		return wrapErr(KindDataTransfer, CodeSocketError, "closing transport", closeErr)
	}
	return nil
}

// dispatch routes one decoded packet to its state-machine handler. Protocol
// violations return a non-nil error, which the event loop treats as fatal.
func (c *Client) dispatch(pkt packets.Packet) error {
	c.packetsReceived.Add(1)
	c.lastActivity = time.Now()

	switch p := pkt.(type) {
	case *packets.PublishPacket:
		return c.handlePublish(p)
	case *packets.PubackPacket:
		return c.handlePuback(p)
	case *packets.PubrecPacket:
		return c.handlePubrec(p)
	case *packets.PubrelPacket:
		return c.handlePubrel(p)
	case *packets.PubcompPacket:
		return c.handlePubcomp(p)
	case *packets.SubackPacket:
		return c.handleSuback(p)
	case *packets.UnsubackPacket:
		return c.handleUnsuback(p)
	case *packets.PingreqPacket:
		return c.send(&packets.PingrespPacket{})
	case *packets.PingrespPacket:
		return nil // last-activity already bumped above
	case *packets.ConnackPacket:
		return newErr(KindProtocolViolation, CodeUnexpectedConnack, "unexpected CONNACK after connect")
	default:
		return newErr(KindProtocolViolation, CodeConnectionFailed, "unexpected control packet on an established session")
	}
}

func (c *Client) handlePublish(p *packets.PublishPacket) error {
	if p.QoS > 0 && p.PacketID == 0 {
		// Incomplete QoS>0 PUBLISH: silently discarded, broker retransmits.
		return nil
	}

	switch p.QoS {
	case 0:
		c.deliver(p.Topic, p.Payload, QoS(p.QoS), p.Retain, p.Dup)
	case 1:
		if err := c.send(&packets.PubackPacket{PacketID: p.PacketID}); err != nil {
			return err
		}
		c.deliver(p.Topic, p.Payload, QoS(p.QoS), p.Retain, p.Dup)
	case 2:
		if _, exists := c.repo.GetPendingConfirmation(p.PacketID); !exists {
			c.repo.AddPendingConfirmation(&repository.PendingConfirmation{
				PacketID: p.PacketID, Topic: p.Topic, Payload: p.Payload, Retain: p.Retain,
			})
		}
		if err := c.send(&packets.PubrecPacket{PacketID: p.PacketID}); err != nil {
			return err
		}
	default:
		return newErr(KindProtocolViolation, CodeConnectionFailed, "invalid PUBLISH QoS")
	}
	return nil
}

func (c *Client) deliver(topicName string, payload []byte, qos QoS, retain, dup bool) {
	for _, h := range c.messageHooks {
		hook := h
		c.invokeCallback("message-hook", func() { hook.fn(c, topicName, payload, qos, retain) })
	}

	matched := c.repo.SubscriptionsMatchingTopic(topicName)
	if len(matched) == 0 {
		if c.defaultHandler != nil {
			c.invokeCallback("default-handler", func() {
				c.defaultHandler(c, Message{Topic: topicName, Payload: payload, QoS: qos, Retained: retain, Duplicate: dup})
			})
		}
		return
	}
	for _, sub := range matched {
		handler, ok := c.subscriptionHandlers[sub.Filter.String()]
		if !ok || handler == nil {
			continue
		}
		wildcards := sub.Filter.MatchedWildcards(topicName)
		h := handler
		msg := Message{Topic: topicName, Payload: payload, QoS: qos, Retained: retain, Duplicate: dup, Wildcards: wildcards}
		c.invokeCallback("message-handler", func() { h(c, msg) })
	}
}

func (c *Client) handlePuback(p *packets.PubackPacket) error {
	if _, ok := c.repo.GetPendingPublish(p.PacketID); !ok {
		c.warnUnexpected(CodeUnexpectedPubackOrUnsuback, "PUBACK for unknown packet id", p.PacketID)
		return nil
	}
	c.repo.RemovePendingPublish(p.PacketID)
	c.repo.Release(p.PacketID)
	return nil
}

func (c *Client) handlePubrec(p *packets.PubrecPacket) error {
	if _, ok := c.repo.GetPendingPublish(p.PacketID); !ok {
		c.warnUnexpected(CodeUnexpectedPubrec, "PUBREC for unknown packet id", p.PacketID)
		return nil
	}
	c.repo.MarkPublishAcked(p.PacketID)
	// PUBREL is emitted immediately; it is not deferred to the resend timer.
	return c.send(&packets.PubrelPacket{PacketID: p.PacketID})
}

func (c *Client) handlePubrel(p *packets.PubrelPacket) error {
	confirmation, ok := c.repo.GetPendingConfirmation(p.PacketID)
	if !ok {
		c.warnUnexpected(CodeUnexpectedPubrel, "PUBREL for unknown packet id", p.PacketID)
		return c.send(&packets.PubcompPacket{PacketID: p.PacketID})
	}
	c.deliver(confirmation.Topic, confirmation.Payload, ExactlyOnce, confirmation.Retain, false)
	c.repo.RemovePendingConfirmation(p.PacketID)
	return c.send(&packets.PubcompPacket{PacketID: p.PacketID})
}

func (c *Client) handlePubcomp(p *packets.PubcompPacket) error {
	if _, ok := c.repo.GetPendingPublish(p.PacketID); !ok {
		c.warnUnexpected(CodeUnexpectedPubcomp, "PUBCOMP for unknown packet id", p.PacketID)
		return nil
	}
	c.repo.RemovePendingPublish(p.PacketID)
	c.repo.Release(p.PacketID)
	return nil
}

func (c *Client) handleSuback(p *packets.SubackPacket) error {
	sub, ok := c.repo.SubscriptionByPacketID(p.PacketID)
	if !ok {
		c.warnUnexpected(CodeUnexpectedSuback, "SUBACK for unknown packet id", p.PacketID)
		return nil
	}
	if len(p.ReturnCodes) != 1 {
		return newErr(KindProtocolViolation, CodeUnexpectedSuback, "SUBACK return code count does not match the SUBSCRIBE")
	}
	sub.QoS = p.ReturnCodes[0] // 0x80 (SubackFailure) is preserved as-is
	c.repo.AcknowledgeSubscription(p.PacketID)
	c.repo.Release(p.PacketID)
	return nil
}

func (c *Client) handleUnsuback(p *packets.UnsubackPacket) error {
	filters, ok := c.repo.GetPendingUnsubscribe(p.PacketID)
	if !ok {
		c.warnUnexpected(CodeUnexpectedPubackOrUnsuback, "UNSUBACK for unknown packet id", p.PacketID)
		return nil
	}
	c.repo.RemovePendingUnsubscribe(p.PacketID)
	for _, f := range filters {
		c.repo.RemoveSubscriptionByFilter(f)
		delete(c.subscriptionHandlers, f)
	}
	c.repo.Release(p.PacketID)
	return nil
}

// warnUnexpected reports a recoverable UnexpectedAcknowledgement: logged at
// warning level, the session continues.
func (c *Client) warnUnexpected(code Code, msg string, packetID uint16) {
	c.logger.Warning(msg, logging.Fields{"packet_id": packetID, "code": int(code)})
}
