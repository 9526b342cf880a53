package packets

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, pkt Packet) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := pkt.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestConnectRoundTrip(t *testing.T) {
	in := &ConnectPacket{
		Version: V311, CleanSession: true, KeepAlive: 10, ClientID: "test-client",
	}
	raw := roundTrip(t, in)

	pkt, consumed, required, err := TryParse(raw)
	require.NoError(t, err)
	require.Equal(t, 0, required)
	require.Equal(t, len(raw), consumed)

	out, ok := pkt.(*ConnectPacket)
	require.True(t, ok)
	require.Equal(t, in.ClientID, out.ClientID)
	require.Equal(t, in.KeepAlive, out.KeepAlive)
	require.Equal(t, in.CleanSession, out.CleanSession)
}

func TestPublishRoundTrip(t *testing.T) {
	in := &PublishPacket{QoS: 1, Topic: "a/b", PacketID: 42, Payload: []byte("hello")}
	raw := roundTrip(t, in)

	pkt, consumed, required, err := TryParse(raw)
	require.NoError(t, err)
	require.Equal(t, 0, required)
	require.Equal(t, len(raw), consumed)

	out, ok := pkt.(*PublishPacket)
	require.True(t, ok)
	require.Equal(t, in.Topic, out.Topic)
	require.Equal(t, in.PacketID, out.PacketID)
	require.Equal(t, in.Payload, out.Payload)
}

func TestSubscribeRoundTrip(t *testing.T) {
	in := &SubscribePacket{PacketID: 7, Topics: []SubscribeTopic{{Filter: "foo/bar/+", QoS: 1}}}
	raw := roundTrip(t, in)
	out, err := DecodeSubscribe(raw[2:])
	require.NoError(t, err)
	require.Equal(t, in.PacketID, out.PacketID)
	require.Equal(t, in.Topics, out.Topics)
}

func TestRemainingLengthRoundTrip(t *testing.T) {
	for _, l := range []int{0, 1, 127, 128, 16383, 16384, 2097151, 2097152, MaxRemainingLength} {
		enc := encodeVarInt(l)
		require.LessOrEqual(t, len(enc), 4)
		got, n, err := decodeVarIntBuf(enc)
		require.NoError(t, err)
		require.Equal(t, l, got)
		require.Equal(t, len(enc), n)
	}
}

func TestTryParseMonotone(t *testing.T) {
	in := &PublishPacket{QoS: 0, Topic: "t", Payload: []byte("payload")}
	raw := roundTrip(t, in)

	for cut := 0; cut < len(raw); cut++ {
		_, consumed, required, err := TryParse(raw[:cut])
		require.NoError(t, err)
		require.Equal(t, 0, consumed)
		require.Greater(t, required, 0)
	}
	pkt, consumed, required, err := TryParse(raw)
	require.NoError(t, err)
	require.NotNil(t, pkt)
	require.Equal(t, 0, required)
	require.Equal(t, len(raw), consumed)
}

func TestMinimalConnectBytes(t *testing.T) {
	// Minimal MQTT 3.1 CONNECT: no will, no credentials, clean session.
	pkt := &ConnectPacket{Version: V31, CleanSession: true, KeepAlive: 10, ClientID: "test-client"}
	raw := roundTrip(t, pkt)

	require.Equal(t, byte(0x10), raw[0])
	require.Equal(t, byte(0x19), raw[1])
}

func TestQoS2HandshakeBytes(t *testing.T) {
	pub := &PublishPacket{QoS: 2, Topic: "t", PacketID: 0x10, Payload: []byte("p")}
	raw := roundTrip(t, pub)
	require.Equal(t, byte(0x34), raw[0]) // PUBLISH (0x30) | qos=2<<1

	pubrec := &PubrecPacket{PacketID: 0x10}
	require.Equal(t, []byte{0x50, 0x02, 0x00, 0x10}, roundTrip(t, pubrec))

	pubrel := &PubrelPacket{PacketID: 0x10}
	require.Equal(t, []byte{0x62, 0x02, 0x00, 0x10}, roundTrip(t, pubrel))

	pubcomp := &PubcompPacket{PacketID: 0x10}
	require.Equal(t, []byte{0x70, 0x02, 0x00, 0x10}, roundTrip(t, pubcomp))
}

func TestResendSetsDuplicateFlag(t *testing.T) {
	first := &PublishPacket{QoS: 1, Topic: "t", PacketID: 7, Payload: []byte("x")}
	raw := roundTrip(t, first)
	require.Equal(t, byte(0x32), raw[0])

	dup := &PublishPacket{Dup: true, QoS: 1, Topic: "t", PacketID: 7, Payload: []byte("x")}
	raw = roundTrip(t, dup)
	require.Equal(t, byte(0x3a), raw[0])
}
