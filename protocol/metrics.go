package protocol

import "sync/atomic"

// MetricsSnapshot is a point-in-time copy of the protocol counters.
type MetricsSnapshot struct {
	RegisteredAgents   int64
	MessagesSent       int64
	MessagesDelivered  int64
	DeliveriesFailed   int64
	BroadcastsSent     int64
	ConversationsKnown int64
}

// Metrics tracks protocol activity with lock-free counters.
type Metrics struct {
	registeredAgents  atomic.Int64
	messagesSent      atomic.Int64
	messagesDelivered atomic.Int64
	deliveriesFailed  atomic.Int64
	broadcastsSent    atomic.Int64
}

func newMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) recordAgent(delta int) {
	m.registeredAgents.Add(int64(delta))
}

func (m *Metrics) recordSent() {
	m.messagesSent.Add(1)
}

func (m *Metrics) recordDelivered() {
	m.messagesDelivered.Add(1)
}

func (m *Metrics) recordFailed() {
	m.deliveriesFailed.Add(1)
}

func (m *Metrics) recordBroadcast() {
	m.broadcastsSent.Add(1)
}

func (m *Metrics) snapshot(conversations int64) MetricsSnapshot {
	return MetricsSnapshot{
		RegisteredAgents:   m.registeredAgents.Load(),
		MessagesSent:       m.messagesSent.Load(),
		MessagesDelivered:  m.messagesDelivered.Load(),
		DeliveriesFailed:   m.deliveriesFailed.Load(),
		BroadcastsSent:     m.broadcastsSent.Load(),
		ConversationsKnown: conversations,
	}
}
