package packets

import "io"

// PingreqPacket keeps the connection alive. It has no variable header or payload.
type PingreqPacket struct{}

func (p *PingreqPacket) Type() uint8 { return PINGREQ }

func (p *PingreqPacket) WriteTo(w io.Writer) (int64, error) {
	return (&FixedHeader{PacketType: PINGREQ, RemainingLength: 0}).WriteTo(w)
}

// DecodePingreq decodes a PINGREQ; there is nothing to decode.
func DecodePingreq([]byte) (*PingreqPacket, error) {
	return &PingreqPacket{}, nil
}
