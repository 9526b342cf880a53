package mq

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wireloop/mq/internal/packets"
)

// newPipe returns two connected net.Conns, each already satisfying
// transport.Transport, for driving a Client against a hand-written broker
// goroutine without a real socket.
func newPipe() (net.Conn, net.Conn) {
	return net.Pipe()
}

func TestConnectHandshakeMinimal(t *testing.T) {
	clientConn, brokerConn := newPipe()
	defer clientConn.Close()
	defer brokerConn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 256)
		n, err := brokerConn.Read(buf)
		require.NoError(t, err)
		pkt, consumed, _, err := packets.TryParse(buf[:n])
		require.NoError(t, err)
		require.Equal(t, n, consumed)
		connect, ok := pkt.(*packets.ConnectPacket)
		require.True(t, ok)
		require.Equal(t, "test-client", connect.ClientID)
		require.True(t, connect.CleanSession)

		ack := &packets.ConnackPacket{ReturnCode: packets.ConnAccepted}
		_, err = ack.WriteTo(brokerConn)
		require.NoError(t, err)
	}()

	c, err := NewClient(WithClientID("test-client"), WithCleanSession(true))
	require.NoError(t, err)

	settings := DefaultConnectionSettings()
	settings.ConnectTimeout = 2 * time.Second
	err = c.Connect(clientConn, &settings)
	require.NoError(t, err)

	<-done
}

func TestConnectRejectedBadCredentials(t *testing.T) {
	clientConn, brokerConn := newPipe()
	defer clientConn.Close()
	defer brokerConn.Close()

	go func() {
		buf := make([]byte, 256)
		n, _ := brokerConn.Read(buf)
		_, consumed, _, _ := packets.TryParse(buf[:n])
		_ = consumed
		ack := &packets.ConnackPacket{ReturnCode: packets.ConnRefusedBadUsernameOrPassword}
		_, _ = ack.WriteTo(brokerConn)
	}()

	c, err := NewClient(WithClientID("test-client"))
	require.NoError(t, err)

	settings := DefaultConnectionSettings()
	settings.ConnectTimeout = 2 * time.Second
	err = c.Connect(clientConn, &settings)
	require.Error(t, err)

	var mqErr *Error
	require.ErrorAs(t, err, &mqErr)
	require.Equal(t, CodeBadCredentials, mqErr.Code)
}

// qos2Fixture connects a Client over a loopback TCP connection and hands back
// both ends so a test can drive the broker side by hand without running Loop
// (which, with zero LoopOptions, runs until interrupted). Unlike net.Pipe, TCP
// buffers writes, so the client's synchronous sends complete even while the
// test is not reading the broker end.
func qos2Fixture(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, _ := ln.Accept()
		accepted <- conn
	}()
	clientConn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	brokerConn := <-accepted
	ln.Close()
	require.NotNil(t, brokerConn)
	t.Cleanup(func() { clientConn.Close(); brokerConn.Close() })

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 256)
		n, err := brokerConn.Read(buf)
		require.NoError(t, err)
		_, _, _, err = packets.TryParse(buf[:n])
		require.NoError(t, err)
		ack := &packets.ConnackPacket{ReturnCode: packets.ConnAccepted}
		_, err = ack.WriteTo(brokerConn)
		require.NoError(t, err)
	}()

	c, err := NewClient(WithClientID("qos2-client"))
	require.NoError(t, err)
	settings := DefaultConnectionSettings()
	settings.ConnectTimeout = 2 * time.Second
	require.NoError(t, c.Connect(clientConn, &settings))
	<-done
	return c, brokerConn
}

func readOne(t *testing.T, conn net.Conn) packets.Packet {
	t.Helper()
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	pkt, consumed, _, err := packets.TryParse(buf[:n])
	require.NoError(t, err)
	require.Equal(t, n, consumed)
	return pkt
}

// TestQoS2InboundHandshake drives PUBLISH(QoS2)->PUBREC->PUBREL->PUBCOMP
// directly through dispatch (bypassing Loop/transport polling) and checks the
// duplicate-PUBLISH case delivers exactly once.
func TestQoS2InboundHandshake(t *testing.T) {
	c, _ := qos2Fixture(t)

	var delivered []Message
	c.defaultHandler = func(_ *Client, m Message) { delivered = append(delivered, m) }

	pub := &packets.PublishPacket{QoS: 2, Topic: "sensors/temp", PacketID: 5, Payload: []byte("21.5")}
	require.NoError(t, c.dispatch(pub))
	require.NoError(t, c.dispatch(pub)) // duplicate PUBLISH before PUBREL must not re-add
	require.Equal(t, 1, c.repo.CountPendingConfirmations())

	rel := &packets.PubrelPacket{PacketID: 5}
	require.NoError(t, c.dispatch(rel))

	require.Len(t, delivered, 1)
	require.Equal(t, "sensors/temp", delivered[0].Topic)
	require.Equal(t, 0, c.repo.CountPendingConfirmations())
}

func TestSubscribeWildcardDelivery(t *testing.T) {
	c, broker := qos2Fixture(t)

	var received Message
	err := c.Subscribe("sport/+/player1/#", AtMostOnce, func(_ *Client, m Message) { received = m })
	require.NoError(t, err)

	sub := readOne(t, broker)
	subPkt, ok := sub.(*packets.SubscribePacket)
	require.True(t, ok)
	require.Len(t, subPkt.Topics, 1)
	require.Equal(t, "sport/+/player1/#", subPkt.Topics[0].Filter)

	// The SUBACK is dispatched directly rather than round-tripped through the
	// pipe: nothing drains the client's read side outside of Loop, and these
	// tests exercise dispatch in isolation rather than the full event loop.
	require.NoError(t, c.dispatch(&packets.SubackPacket{PacketID: subPkt.PacketID, ReturnCodes: []uint8{0}}))

	pub := &packets.PublishPacket{QoS: 0, Topic: "sport/tennis/player1/ranking/2024"}
	require.NoError(t, c.dispatch(pub))
	require.Equal(t, "sport/tennis/player1/ranking/2024", received.Topic)
	require.Equal(t, []string{"tennis", "ranking/2024"}, received.Wildcards)
}

func TestPubackForUnknownIDIsRecoverable(t *testing.T) {
	c, _ := qos2Fixture(t)
	err := c.dispatch(&packets.PubackPacket{PacketID: 999})
	require.NoError(t, err)
	require.Equal(t, stateConnected, c.state)
}

func TestQoS1ResendSetsDuplicateFlag(t *testing.T) {
	c, broker := qos2Fixture(t)

	require.NoError(t, c.Publish("a/b", []byte("x"), AtLeastOnce, false))
	first := readOne(t, broker)
	firstPub, ok := first.(*packets.PublishPacket)
	require.True(t, ok)
	require.False(t, firstPub.Dup)

	c.settings.ResendTimeout = 0
	require.NoError(t, c.resendPending(time.Now().Add(time.Hour)))

	second := readOne(t, broker)
	secondPub, ok := second.(*packets.PublishPacket)
	require.True(t, ok)
	require.True(t, secondPub.Dup)
	require.Equal(t, firstPub.PacketID, secondPub.PacketID)
}
