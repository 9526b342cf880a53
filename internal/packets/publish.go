package packets

import (
	"bytes"
	"fmt"
	"io"
)

// PublishPacket represents an MQTT PUBLISH control packet.
type PublishPacket struct {
	Dup      bool
	QoS      uint8
	Retain   bool
	Topic    string
	PacketID uint16 // only meaningful when QoS > 0
	Payload  []byte
}

func (p *PublishPacket) Type() uint8 { return PUBLISH }

func (p *PublishPacket) WriteTo(w io.Writer) (int64, error) {
	var body bytes.Buffer
	body.Write(encodeString(p.Topic))
	if p.QoS > 0 {
		body.WriteByte(byte(p.PacketID >> 8))
		body.WriteByte(byte(p.PacketID))
	}
	body.Write(p.Payload)

	var flags byte = 0
	if p.Dup {
		flags |= 0x08
	}
	flags |= (p.QoS & 0x03) << 1
	if p.Retain {
		flags |= 0x01
	}

	header := &FixedHeader{PacketType: PUBLISH, Flags: flags, RemainingLength: body.Len()}
	n1, err := header.WriteTo(w)
	if err != nil {
		return n1, err
	}
	n2, err := w.Write(body.Bytes())
	return n1 + int64(n2), err
}

// DecodePublish decodes a PUBLISH variable header + payload given the flags
// nibble from the fixed header.
func DecodePublish(buf []byte, flags uint8) (*PublishPacket, error) {
	topic, n, err := decodeString(buf)
	if err != nil {
		return nil, fmt.Errorf("publish: topic: %w", err)
	}
	buf = buf[n:]

	pkt := &PublishPacket{
		Dup:    flags&0x08 != 0,
		QoS:    (flags >> 1) & 0x03,
		Retain: flags&0x01 != 0,
		Topic:  topic,
	}
	if pkt.QoS > 2 {
		return nil, fmt.Errorf("publish: invalid QoS %d", pkt.QoS)
	}
	if pkt.QoS > 0 {
		if len(buf) < 2 {
			return nil, fmt.Errorf("publish: buffer too short for packet id")
		}
		pkt.PacketID = uint16(buf[0])<<8 | uint16(buf[1])
		buf = buf[2:]
	}
	pkt.Payload = append([]byte(nil), buf...)
	return pkt, nil
}
