// Package mq implements an MQTT 3.1/3.1.1 client engine: codec, repository,
// subscription matching, session state machine, and a single-threaded
// cooperative event loop, driven by a caller-supplied transport.
package mq

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/wireloop/mq/internal/packets"
	"github.com/wireloop/mq/logging"
	"github.com/wireloop/mq/repository"
	"github.com/wireloop/mq/topic"
	"github.com/wireloop/mq/transport"
)

type sessionState uint8

const (
	stateDisconnected sessionState = iota
	stateHandshaking
	stateConnected
	stateClosing
)

func (s sessionState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateHandshaking:
		return "handshaking"
	case stateConnected:
		return "connected"
	case stateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

type loopHook struct {
	handle uint64
	fn     func(c *Client, elapsed time.Duration)
}

type publishHook struct {
	handle uint64
	fn     func(c *Client, topic string, payload []byte, packetID uint16, qos QoS, retain bool)
}

type messageHook struct {
	handle uint64
	fn     func(c *Client, topic string, payload []byte, qos QoS, retained bool)
}

// MessageHandler is invoked when a Subscription's filter matches an inbound
// PUBLISH, after QoS handshaking has made delivery safe.
type MessageHandler func(*Client, Message)

// Client drives one MQTT session. It is not safe for concurrent use; see
// SyncClient for a mutex-guarded facade, and the package doc for the single
// cooperative event loop model this type implements.
type Client struct {
	protocolVersion ProtocolVersion
	clientID        string
	cleanSession    bool
	settings        ConnectionSettings

	repo   repository.Repository
	logger logging.Logger
	conn   *transport.Counting

	state        sessionState
	recvBuf      []byte
	lastActivity time.Time
	lastResend   time.Time
	interrupted  bool

	subscriptionHandlers map[string]MessageHandler // keyed by filter text

	loopHooks      []loopHook
	publishHooks   []publishHook
	messageHooks   []messageHook
	nextHookHandle uint64

	outbox         [][]byte
	callbackDepth  int

	startedAt time.Time

	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64

	defaultHandler MessageHandler
}

// HookHandle identifies a registered hook so it can be individually removed.
type HookHandle uint64

// Option configures a Client at construction time.
type Option func(*Client)

// WithClientID sets an explicit client identifier. Unset, NewClient
// generates a random 20-character hex identifier and implies clean session.
func WithClientID(id string) Option {
	return func(c *Client) { c.clientID = id }
}

// WithProtocolVersion selects MQTT 3.1 or 3.1.1. NewClient rejects any other value.
func WithProtocolVersion(v ProtocolVersion) Option {
	return func(c *Client) { c.protocolVersion = v }
}

// WithCleanSession overrides the clean-session flag sent in CONNECT.
func WithCleanSession(clean bool) Option {
	return func(c *Client) { c.cleanSession = clean }
}

// WithSettings supplies the ConnectionSettings used by Connect.
func WithSettings(s ConnectionSettings) Option {
	return func(c *Client) { c.settings = s }
}

// WithRepository overrides the default in-memory Repository.
func WithRepository(r repository.Repository) Option {
	return func(c *Client) { c.repo = r }
}

// WithLogger overrides the default no-op Logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithDefaultHandler registers a handler invoked for messages that match no
// active subscription filter. The message is still QoS-acknowledged per
// protocol even when no handler is configured.
func WithDefaultHandler(h MessageHandler) Option {
	return func(c *Client) { c.defaultHandler = h }
}

// NewClient constructs a Client that will speak to a transport supplied
// later via Connect. The protocol version is V3_1_1 unless WithProtocolVersion
// selects another; any value other than V3_1 or V3_1_1 is rejected.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		protocolVersion:      V3_1_1,
		repo:                 repository.NewMemory(),
		logger:               logging.Null{},
		subscriptionHandlers: make(map[string]MessageHandler),
		state:                stateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.protocolVersion != V3_1 && c.protocolVersion != V3_1_1 {
		return nil, newErr(KindConfigurationInvalid, CodeConnectionFailed, "unsupported protocol version")
	}
	if c.clientID == "" {
		c.clientID = randomClientID()
		c.cleanSession = true
	}
	return c, nil
}

// randomClientID derives a client identifier from a random UUID, stripped of
// hyphens and truncated to 20 characters.
func randomClientID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:20]
}

// Connect performs the CONNECT/CONNACK handshake over conn and moves the
// session to Connected on success. settings, if non-nil, replaces any
// settings supplied via WithSettings.
func (c *Client) Connect(conn transport.Transport, settings *ConnectionSettings) error {
	if c.state != stateDisconnected {
		return newErr(KindNotConnected, CodeNotConnected, "connect called outside the disconnected state")
	}
	if settings != nil {
		c.settings = *settings
	}
	if err := c.settings.Validate(); err != nil {
		return err
	}

	c.state = stateHandshaking
	c.conn = transport.NewCounting(conn)
	c.recvBuf = c.recvBuf[:0]
	c.startedAt = time.Now()

	if err := c.sendConnect(); err != nil {
		c.state = stateDisconnected
		return err
	}
	if err := c.awaitConnack(); err != nil {
		c.state = stateDisconnected
		return err
	}

	c.state = stateConnected
	c.lastActivity = time.Now()
	c.lastResend = time.Now()
	return nil
}

func (c *Client) sendConnect() error {
	pkt := &packets.ConnectPacket{
		Version:      packets.Protocol(c.protocolVersion),
		CleanSession: c.cleanSession,
		KeepAlive:    uint16(c.settings.KeepAlive / time.Second),
		ClientID:     c.clientID,
	}
	if w := c.settings.Will; w != nil {
		pkt.WillTopic = w.Topic
		pkt.WillMessage = w.Payload
		pkt.WillQoS = uint8(w.QoS)
		pkt.WillRetain = w.Retain
	}
	if c.settings.Username != "" {
		pkt.UsernameFlag = true
		pkt.Username = c.settings.Username
		if c.settings.Password != "" {
			pkt.PasswordFlag = true
			pkt.Password = []byte(c.settings.Password)
		}
	}
	return c.writeNow(pkt)
}

func (c *Client) awaitConnack() error {
	deadline := time.Now().Add(c.settings.ConnectTimeout)
	_ = c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	var buf []byte
	tmp := make([]byte, 256)
	for {
		n, err := c.conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			pkt, consumed, _, perr := packets.TryParse(buf)
			if perr != nil {
				return wrapErr(KindProtocolViolation, CodeConnectionFailed, "malformed CONNACK", perr)
			}
			if pkt != nil {
				ack, ok := pkt.(*packets.ConnackPacket)
				if !ok {
					return newErr(KindProtocolViolation, CodeUnexpectedConnack, "expected CONNACK first")
				}
				buf = buf[consumed:]
				c.recvBuf = append(c.recvBuf[:0], buf...)
				return c.handleConnackCode(ack.ReturnCode)
			}
		}
		if err != nil {
			return wrapErr(KindConnectingToBrokerFailed, CodeSocketError, "reading CONNACK", err)
		}
	}
}

func (c *Client) handleConnackCode(code uint8) error {
	switch code {
	case packets.ConnAccepted:
		return nil
	case packets.ConnRefusedUnacceptableProtocol:
		return newErr(KindConnectingToBrokerFailed, CodeUnsupportedProtocolVersion, "broker rejected protocol version")
	case packets.ConnRefusedIdentifierRejected:
		return newErr(KindConnectingToBrokerFailed, CodeIdentifierRejected, "broker rejected client identifier")
	case packets.ConnRefusedServerUnavailable:
		return newErr(KindConnectingToBrokerFailed, CodeBrokerUnavailable, "broker unavailable")
	case packets.ConnRefusedBadUsernameOrPassword:
		return newErr(KindConnectingToBrokerFailed, CodeBadCredentials, "broker rejected credentials")
	case packets.ConnRefusedNotAuthorized:
		return newErr(KindConnectingToBrokerFailed, CodeNotAuthorized, "not authorized")
	default:
		return newErr(KindProtocolViolation, CodeConnectionFailed, fmt.Sprintf("unrecognized CONNACK return code %d", code))
	}
}

// Interrupt requests that a running Loop exit at the top of its next
// iteration. It is the only cooperative cancellation channel.
func (c *Client) Interrupt() { c.interrupted = true }

// Stats reports cumulative counters. The byte counters cover the current
// transport and restart at each Connect; the packet counters cover the
// Client's whole lifetime.
type Stats struct {
	BytesSent       uint64
	BytesReceived   uint64
	PacketsSent     uint64
	PacketsReceived uint64
}

// Stats returns the current counters.
func (c *Client) Stats() Stats {
	s := Stats{PacketsSent: c.packetsSent.Load(), PacketsReceived: c.packetsReceived.Load()}
	if c.conn != nil {
		s.BytesSent = c.conn.BytesSent()
		s.BytesReceived = c.conn.BytesReceived()
	}
	return s
}

// SentBytes returns the cumulative bytes successfully written to the transport.
func (c *Client) SentBytes() uint64 {
	if c.conn == nil {
		return 0
	}
	return c.conn.BytesSent()
}

// ReceivedBytes returns the cumulative bytes successfully read from the transport.
func (c *Client) ReceivedBytes() uint64 {
	if c.conn == nil {
		return 0
	}
	return c.conn.BytesReceived()
}

// RegisterLoopHook adds a hook invoked once per loop iteration with the
// elapsed time since Loop started.
func (c *Client) RegisterLoopHook(fn func(c *Client, elapsed time.Duration)) HookHandle {
	c.nextHookHandle++
	h := c.nextHookHandle
	c.loopHooks = append(c.loopHooks, loopHook{handle: h, fn: fn})
	return HookHandle(h)
}

// RegisterPublishHook adds a hook invoked whenever this client emits a PUBLISH.
func (c *Client) RegisterPublishHook(fn func(c *Client, topic string, payload []byte, packetID uint16, qos QoS, retain bool)) HookHandle {
	c.nextHookHandle++
	h := c.nextHookHandle
	c.publishHooks = append(c.publishHooks, publishHook{handle: h, fn: fn})
	return HookHandle(h)
}

// RegisterMessageHook adds a hook invoked for every inbound message once
// delivery is safe to complete, before per-subscription handlers run.
func (c *Client) RegisterMessageHook(fn func(c *Client, topic string, payload []byte, qos QoS, retained bool)) HookHandle {
	c.nextHookHandle++
	h := c.nextHookHandle
	c.messageHooks = append(c.messageHooks, messageHook{handle: h, fn: fn})
	return HookHandle(h)
}

// UnregisterLoopHook removes the hook with the given handle, or all loop
// hooks if handle is 0.
func (c *Client) UnregisterLoopHook(handle HookHandle) {
	c.loopHooks = filterHooks(c.loopHooks, handle)
}

// UnregisterPublishHook removes the hook with the given handle, or all
// publish hooks if handle is 0.
func (c *Client) UnregisterPublishHook(handle HookHandle) {
	c.publishHooks = filterPublishHooks(c.publishHooks, handle)
}

// UnregisterMessageHook removes the hook with the given handle, or all
// message hooks if handle is 0.
func (c *Client) UnregisterMessageHook(handle HookHandle) {
	c.messageHooks = filterMessageHooks(c.messageHooks, handle)
}

func filterHooks(hooks []loopHook, handle HookHandle) []loopHook {
	if handle == 0 {
		return nil
	}
	out := hooks[:0]
	for _, h := range hooks {
		if h.handle != uint64(handle) {
			out = append(out, h)
		}
	}
	return out
}

func filterPublishHooks(hooks []publishHook, handle HookHandle) []publishHook {
	if handle == 0 {
		return nil
	}
	out := hooks[:0]
	for _, h := range hooks {
		if h.handle != uint64(handle) {
			out = append(out, h)
		}
	}
	return out
}

func filterMessageHooks(hooks []messageHook, handle HookHandle) []messageHook {
	if handle == 0 {
		return nil
	}
	out := hooks[:0]
	for _, h := range hooks {
		if h.handle != uint64(handle) {
			out = append(out, h)
		}
	}
	return out
}

// compileFilter is a small indirection so session.go can reuse it without an
// import cycle concern; kept here next to the other construction helpers.
func compileFilter(filter string) (*topic.Filter, error) {
	return topic.Compile(filter)
}
