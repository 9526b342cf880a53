package packets

import "io"

// DisconnectPacket tells the broker the client is disconnecting cleanly. It
// has no variable header or payload in 3.1.1.
type DisconnectPacket struct{}

func (p *DisconnectPacket) Type() uint8 { return DISCONNECT }

func (p *DisconnectPacket) WriteTo(w io.Writer) (int64, error) {
	return (&FixedHeader{PacketType: DISCONNECT, RemainingLength: 0}).WriteTo(w)
}

// DecodeDisconnect decodes a DISCONNECT; there is nothing to decode.
func DecodeDisconnect([]byte) (*DisconnectPacket, error) {
	return &DisconnectPacket{}, nil
}
