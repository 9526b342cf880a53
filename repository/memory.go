package repository

import (
	"sort"
	"time"
)

// Memory is the default Repository: everything lives in process memory and
// is lost on restart. It is the only Repository implementation this module
// ships; callers who need durability across restarts implement Repository
// themselves.
type Memory struct {
	used map[uint16]struct{}

	publishes     map[uint16]*PendingPublish
	confirmations map[uint16]*PendingConfirmation
	unsubscribes  map[uint16]*PendingUnsubscribe
	subscriptions map[string]*Subscription // keyed by filter text
	byPacketID    map[uint16]*Subscription
}

// NewMemory returns an empty Memory repository.
func NewMemory() *Memory {
	return &Memory{
		used:          make(map[uint16]struct{}),
		publishes:     make(map[uint16]*PendingPublish),
		confirmations: make(map[uint16]*PendingConfirmation),
		unsubscribes:  make(map[uint16]*PendingUnsubscribe),
		subscriptions: make(map[string]*Subscription),
		byPacketID:    make(map[uint16]*Subscription),
	}
}

// NewPacketID always hands out the lowest free identifier, so one released
// by an earlier allocation becomes immediately available again.
func (m *Memory) NewPacketID() (uint16, bool) {
	if len(m.used) >= 65535 {
		return 0, false
	}
	for id := uint16(1); ; id++ {
		if _, taken := m.used[id]; !taken {
			m.used[id] = struct{}{}
			return id, true
		}
		if id == 65535 {
			return 0, false
		}
	}
}

func (m *Memory) Release(id uint16) {
	delete(m.used, id)
}

func (m *Memory) AddPendingPublish(p *PendingPublish) {
	m.publishes[p.PacketID] = p
}

func (m *Memory) GetPendingPublish(id uint16) (*PendingPublish, bool) {
	p, ok := m.publishes[id]
	return p, ok
}

func (m *Memory) RemovePendingPublish(id uint16) {
	delete(m.publishes, id)
}

func (m *Memory) MarkPublishAcked(id uint16) {
	if p, ok := m.publishes[id]; ok {
		p.Acked = true
	}
}

func (m *Memory) PendingPublishesOlderThan(age time.Duration, now time.Time) []*PendingPublish {
	var out []*PendingPublish
	for _, p := range m.publishes {
		if now.Sub(p.Sent) >= age {
			out = append(out, p)
		}
	}
	sortByPacketID(out)
	return out
}

func (m *Memory) CountPendingPublishes() int { return len(m.publishes) }

func (m *Memory) AddPendingConfirmation(c *PendingConfirmation) {
	m.confirmations[c.PacketID] = c
}

func (m *Memory) GetPendingConfirmation(id uint16) (*PendingConfirmation, bool) {
	c, ok := m.confirmations[id]
	return c, ok
}

func (m *Memory) RemovePendingConfirmation(id uint16) {
	delete(m.confirmations, id)
}

func (m *Memory) CountPendingConfirmations() int { return len(m.confirmations) }

func (m *Memory) AddPendingUnsubscribe(id uint16, filters []string, sent time.Time) {
	m.unsubscribes[id] = &PendingUnsubscribe{PacketID: id, Filters: filters, Sent: sent}
}

func (m *Memory) GetPendingUnsubscribe(id uint16) ([]string, bool) {
	u, ok := m.unsubscribes[id]
	if !ok {
		return nil, false
	}
	return u.Filters, true
}

func (m *Memory) RemovePendingUnsubscribe(id uint16) {
	delete(m.unsubscribes, id)
}

func (m *Memory) PendingUnsubscribesOlderThan(age time.Duration, now time.Time) map[uint16][]string {
	out := make(map[uint16][]string)
	for id, u := range m.unsubscribes {
		if now.Sub(u.Sent) >= age {
			out[id] = u.Filters
		}
	}
	return out
}

func (m *Memory) CountPendingUnsubscribes() int { return len(m.unsubscribes) }

func (m *Memory) AddSubscription(s *Subscription) {
	m.subscriptions[s.Filter.String()] = s
	if s.PacketID != 0 {
		m.byPacketID[s.PacketID] = s
	}
}

func (m *Memory) RemoveSubscriptionByFilter(filter string) {
	if s, ok := m.subscriptions[filter]; ok {
		delete(m.byPacketID, s.PacketID)
	}
	delete(m.subscriptions, filter)
}

func (m *Memory) AcknowledgeSubscription(id uint16) {
	if s, ok := m.byPacketID[id]; ok {
		s.Acknowledged = true
		s.PacketID = 0
		delete(m.byPacketID, id)
	}
}

func (m *Memory) SubscriptionByPacketID(id uint16) (*Subscription, bool) {
	s, ok := m.byPacketID[id]
	return s, ok
}

func (m *Memory) SubscriptionsMatchingTopic(topicName string) []*Subscription {
	var out []*Subscription
	for _, s := range m.subscriptions {
		if !s.Acknowledged {
			continue
		}
		if s.Filter.Matches(topicName) {
			out = append(out, s)
		}
	}
	return out
}

func (m *Memory) CountSubscriptions() int { return len(m.subscriptions) }

func (m *Memory) AllSubscriptions() []*Subscription {
	out := make([]*Subscription, 0, len(m.subscriptions))
	for _, s := range m.subscriptions {
		out = append(out, s)
	}
	return out
}

func sortByPacketID(p []*PendingPublish) {
	sort.Slice(p, func(i, j int) bool { return p[i].PacketID < p[j].PacketID })
}

var _ Repository = (*Memory)(nil)
