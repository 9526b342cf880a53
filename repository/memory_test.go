package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wireloop/mq/topic"
)

func TestNewPacketIDDistinctAndInRange(t *testing.T) {
	m := NewMemory()
	seen := make(map[uint16]bool)
	for i := 0; i < 1000; i++ {
		id, ok := m.NewPacketID()
		require.True(t, ok)
		require.GreaterOrEqual(t, id, uint16(1))
		require.False(t, seen[id], "id %d allocated twice without release", id)
		seen[id] = true
	}
}

func TestReleaseAllowsReuse(t *testing.T) {
	m := NewMemory()
	id, ok := m.NewPacketID()
	require.True(t, ok)
	m.Release(id)
	id2, ok := m.NewPacketID()
	require.True(t, ok)
	require.Equal(t, id, id2)
}

func TestPendingConfirmationDuplicateIsCallerResponsibility(t *testing.T) {
	// The repository itself does not reject a second Add for the same id;
	// the session layer is responsible for checking GetPendingConfirmation
	// first (see Client.handlePublish), which is what makes redelivery
	// before PUBREL idempotent.
	m := NewMemory()
	m.AddPendingConfirmation(&PendingConfirmation{PacketID: 5, Topic: "t", Payload: []byte("a")})
	if _, exists := m.GetPendingConfirmation(5); !exists {
		t.Fatal("expected confirmation to exist")
	}
}

func TestRemovePendingIsIdempotent(t *testing.T) {
	m := NewMemory()
	m.RemovePendingPublish(1)
	m.RemovePendingPublish(1)
	m.RemovePendingUnsubscribe(1)
	m.RemovePendingConfirmation(1)
}

func TestPendingPublishesOlderThan(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.AddPendingPublish(&PendingPublish{PacketID: 1, Sent: now.Add(-2 * time.Second)})
	m.AddPendingPublish(&PendingPublish{PacketID: 2, Sent: now})

	old := m.PendingPublishesOlderThan(time.Second, now)
	require.Len(t, old, 1)
	require.Equal(t, uint16(1), old[0].PacketID)
}

func TestSubscriptionsMatchingTopicRequiresAcknowledged(t *testing.T) {
	m := NewMemory()
	f, err := topic.Compile("a/+")
	require.NoError(t, err)
	m.AddSubscription(&Subscription{Filter: f, PacketID: 9})

	require.Empty(t, m.SubscriptionsMatchingTopic("a/b"), "unacknowledged subscription must not match yet")

	m.AcknowledgeSubscription(9)
	require.Len(t, m.SubscriptionsMatchingTopic("a/b"), 1)
}
