// Package repository defines the storage contract the engine uses for
// packet identifiers, in-flight publishes and unsubscribes, pending QoS 2
// confirmations, and the subscription registry, plus a default in-memory
// implementation. Persisting this state across process restarts is outside
// this package's scope; callers who need that write their own Repository.
package repository

import (
	"time"

	"github.com/wireloop/mq/topic"
)

// PendingPublish is an outbound QoS 1/2 PUBLISH awaiting acknowledgement.
type PendingPublish struct {
	PacketID  uint16
	Topic     string
	Payload   []byte
	QoS       uint8
	Retain    bool
	Sent      time.Time
	// Attempts counts every transmission of this packet id, starting at 1
	// for the original send and incremented once per resend.
	Attempts int
	// Acked is set once a QoS 2 PUBLISH has had its PUBREC acknowledged and
	// is now only waiting on PUBCOMP for the PUBREL leg.
	Acked bool
}

// PendingConfirmation tracks an inbound QoS 2 PUBLISH for which this client
// has sent PUBREC and is waiting on the broker's PUBREL before it may safely
// deliver the message to subscribers and reply with PUBCOMP.
type PendingConfirmation struct {
	PacketID uint16
	Topic    string
	Payload  []byte
	Retain   bool
}

// PendingUnsubscribe is an in-flight UNSUBSCRIBE awaiting UNSUBACK.
type PendingUnsubscribe struct {
	PacketID uint16
	Filters  []string
	Sent     time.Time
}

// Subscription is a registered topic filter, with the packet identifier of
// its in-flight SUBSCRIBE (0 once acknowledged).
type Subscription struct {
	Filter        *topic.Filter
	QoS           uint8
	PacketID      uint16 // non-zero while the SUBSCRIBE is still in flight
	Acknowledged  bool
}

// Repository is the storage contract the event loop drives. Every method is
// called from the single goroutine that owns Client.Loop; implementations do
// not need to be safe for concurrent use, but they do need to be
// self-consistent across calls (e.g. a released packet ID must not be handed
// out again while it is still pending elsewhere in the repository).
type Repository interface {
	// NewPacketID allocates the lowest free identifier in [1, 65535]. It
	// returns ok=false when the 65535-entry space is exhausted.
	NewPacketID() (id uint16, ok bool)
	// Release returns id to the free pool. Releasing an id that was never
	// allocated, or is still referenced by a pending record, is a caller bug.
	Release(id uint16)

	AddPendingPublish(p *PendingPublish)
	GetPendingPublish(id uint16) (*PendingPublish, bool)
	RemovePendingPublish(id uint16)
	PendingPublishesOlderThan(age time.Duration, now time.Time) []*PendingPublish
	MarkPublishAcked(id uint16)
	CountPendingPublishes() int

	AddPendingConfirmation(c *PendingConfirmation)
	GetPendingConfirmation(id uint16) (*PendingConfirmation, bool)
	RemovePendingConfirmation(id uint16)
	CountPendingConfirmations() int

	AddPendingUnsubscribe(id uint16, filters []string, sent time.Time)
	GetPendingUnsubscribe(id uint16) ([]string, bool)
	RemovePendingUnsubscribe(id uint16)
	PendingUnsubscribesOlderThan(age time.Duration, now time.Time) map[uint16][]string
	CountPendingUnsubscribes() int

	AddSubscription(s *Subscription)
	RemoveSubscriptionByFilter(filter string)
	// AcknowledgeSubscription marks the subscription that was in flight under
	// id as confirmed and clears its association with that packet id.
	AcknowledgeSubscription(id uint16)
	SubscriptionByPacketID(id uint16) (*Subscription, bool)
	SubscriptionsMatchingTopic(topicName string) []*Subscription
	CountSubscriptions() int
	AllSubscriptions() []*Subscription
}
