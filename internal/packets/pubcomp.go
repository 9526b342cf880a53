package packets

import "io"

// PubcompPacket is the final step of the QoS 2 handshake, sent in response to
// PUBREL. Its shape is identical to PubackPacket/PubrecPacket/PubrelPacket: a
// fixed header plus a two-byte packet identifier and nothing else.
type PubcompPacket struct {
	PacketID uint16
}

func (p *PubcompPacket) Type() uint8 { return PUBCOMP }

func (p *PubcompPacket) WriteTo(w io.Writer) (int64, error) {
	return writeIDOnlyPacket(w, PUBCOMP, 0, p.PacketID)
}

// DecodePubcomp decodes a PUBCOMP variable header.
func DecodePubcomp(buf []byte) (*PubcompPacket, error) {
	id, err := decodeIDOnlyPacket(buf, "pubcomp")
	if err != nil {
		return nil, err
	}
	return &PubcompPacket{PacketID: id}, nil
}
