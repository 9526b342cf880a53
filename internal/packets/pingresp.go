package packets

import "io"

// PingrespPacket answers a PINGREQ. It has no variable header or payload.
type PingrespPacket struct{}

func (p *PingrespPacket) Type() uint8 { return PINGRESP }

func (p *PingrespPacket) WriteTo(w io.Writer) (int64, error) {
	return (&FixedHeader{PacketType: PINGRESP, RemainingLength: 0}).WriteTo(w)
}

// DecodePingresp decodes a PINGRESP; there is nothing to decode.
func DecodePingresp([]byte) (*PingrespPacket, error) {
	return &PingrespPacket{}, nil
}
