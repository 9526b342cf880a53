package packets

import "io"

// UnsubackPacket acknowledges an UNSUBSCRIBE. 3.1.1 carries no per-filter
// status, just the packet identifier being confirmed.
type UnsubackPacket struct {
	PacketID uint16
}

func (p *UnsubackPacket) Type() uint8 { return UNSUBACK }

func (p *UnsubackPacket) WriteTo(w io.Writer) (int64, error) {
	return writeIDOnlyPacket(w, UNSUBACK, 0, p.PacketID)
}

// DecodeUnsuback decodes an UNSUBACK variable header.
func DecodeUnsuback(buf []byte) (*UnsubackPacket, error) {
	id, err := decodeIDOnlyPacket(buf, "unsuback")
	if err != nil {
		return nil, err
	}
	return &UnsubackPacket{PacketID: id}, nil
}
