package packets

import "io"

// PubrelPacket is step two of the QoS 2 handshake, sent in response to PUBREC.
// Per the MQTT spec its fixed header flags are fixed at 0x02.
type PubrelPacket struct {
	PacketID uint16
}

func (p *PubrelPacket) Type() uint8 { return PUBREL }

func (p *PubrelPacket) WriteTo(w io.Writer) (int64, error) {
	return writeIDOnlyPacket(w, PUBREL, 0x02, p.PacketID)
}

// DecodePubrel decodes a PUBREL variable header.
func DecodePubrel(buf []byte) (*PubrelPacket, error) {
	id, err := decodeIDOnlyPacket(buf, "pubrel")
	if err != nil {
		return nil, err
	}
	return &PubrelPacket{PacketID: id}, nil
}
