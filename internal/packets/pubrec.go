package packets

import "io"

// PubrecPacket is step one of the QoS 2 handshake, sent in response to PUBLISH.
type PubrecPacket struct {
	PacketID uint16
}

func (p *PubrecPacket) Type() uint8 { return PUBREC }

func (p *PubrecPacket) WriteTo(w io.Writer) (int64, error) {
	return writeIDOnlyPacket(w, PUBREC, 0, p.PacketID)
}

// DecodePubrec decodes a PUBREC variable header.
func DecodePubrec(buf []byte) (*PubrecPacket, error) {
	id, err := decodeIDOnlyPacket(buf, "pubrec")
	if err != nil {
		return nil, err
	}
	return &PubrecPacket{PacketID: id}, nil
}
