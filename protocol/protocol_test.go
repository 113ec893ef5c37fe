package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adgentic/agentcomm/core"
)

func newTestProtocol(optFns ...func(o *Options)) *Protocol {
	return New(optFns...)
}

func send(t *testing.T, p *Protocol, sender, recipient string, msgType core.MessageType, content map[string]any, opts ...core.MessageOption) *core.Message {
	t.Helper()
	m, err := core.NewMessage(sender, recipient, msgType, content, opts...)
	require.NoError(t, err)
	id, err := p.Send(m)
	require.NoError(t, err)
	require.Equal(t, m.ID, id)
	return m
}

func TestProtocol_SendAndProcessDeliversOnce(t *testing.T) {
	p := newTestProtocol()
	b := &stubReceiver{id: "b"}
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))
	require.NoError(t, p.Register(b))

	m := send(t, p, "a", "b", core.TypePing, map[string]any{"n": 1})

	delivered, failures := p.Process(context.Background(), 0)
	assert.Equal(t, 1, delivered)
	assert.Empty(t, failures)
	require.Len(t, b.received, 1)
	assert.Equal(t, m.ID, b.received[0].ID)
	assert.Equal(t, 0, p.QueueLen())

	// second pass delivers nothing
	delivered, failures = p.Process(context.Background(), 0)
	assert.Equal(t, 0, delivered)
	assert.Empty(t, failures)
	assert.Len(t, b.received, 1)
}

func TestProtocol_PriorityDeliveryOrder(t *testing.T) {
	p := newTestProtocol()
	b := &stubReceiver{id: "b"}
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))
	require.NoError(t, p.Register(b))

	m1 := send(t, p, "a", "b", core.TypePing, nil, core.WithPriority(core.PriorityLow))
	m2 := send(t, p, "a", "b", core.TypePing, nil, core.WithPriority(core.PriorityUrgent))
	m3 := send(t, p, "a", "b", core.TypePing, nil, core.WithPriority(core.PriorityNormal))

	delivered, _ := p.Process(context.Background(), 0)
	require.Equal(t, 3, delivered)
	require.Len(t, b.received, 3)
	assert.Equal(t, m2.ID, b.received[0].ID)
	assert.Equal(t, m3.ID, b.received[1].ID)
	assert.Equal(t, m1.ID, b.received[2].ID)
}

func TestProtocol_SendToUnknownRecipientLeavesQueueUnchanged(t *testing.T) {
	p := newTestProtocol()
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))

	m, err := core.NewMessage("a", "ghost", core.TypePing, nil)
	require.NoError(t, err)

	_, err = p.Send(m)
	var unknown *core.UnknownAgentError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.AgentID)
	assert.Equal(t, 0, p.QueueLen())
	assert.Empty(t, p.History(m.ConversationID))
}

func TestProtocol_SendRejectsHandBuiltInvalidMessage(t *testing.T) {
	p := newTestProtocol()
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))
	require.NoError(t, p.Register(&stubReceiver{id: "b"}))

	// bypass NewMessage: exported fields allow constructing a message with a
	// priority outside the known bands
	rogue := &core.Message{
		ID:             core.NewID(),
		ConversationID: core.NewID(),
		SenderID:       "a",
		RecipientID:    "b",
		Type:           core.TypePing,
		Priority:       core.Priority(7),
	}

	_, err := p.Send(rogue)
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "priority", verr.Field)
	assert.Equal(t, 0, p.QueueLen())
	assert.Empty(t, p.History(rogue.ConversationID))

	missing := &core.Message{
		ID:          core.NewID(),
		RecipientID: "b",
		Type:        core.TypePing,
	}
	_, err = p.Send(missing)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "sender_id", verr.Field)
	assert.Equal(t, 0, p.QueueLen())
}

func TestProtocol_ConcurrentSendsKeepHistoryInDeliveryOrder(t *testing.T) {
	p := newTestProtocol()
	b := &stubReceiver{id: "b"}
	require.NoError(t, p.Register(b))

	const senders = 8
	const perSender = 50
	conversationID := core.NewID()

	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		sender := fmt.Sprintf("sender-%d", s)
		require.NoError(t, p.Register(&stubReceiver{id: sender}))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				m, err := core.NewMessage(sender, "b", core.TypePing, map[string]any{"n": i},
					core.WithConversation(conversationID))
				if err != nil {
					t.Error(err)
					return
				}
				if _, err := p.Send(m); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	delivered, failures := p.Process(context.Background(), 0)
	require.Empty(t, failures)
	require.Equal(t, senders*perSender, delivered)

	history := p.History(conversationID)
	require.Len(t, history, senders*perSender)
	// all messages share one priority band, so delivery order is queue commit
	// order and the index must agree with it
	for i, m := range b.received {
		assert.Equal(t, m.ID, history[i].ID)
	}
}

func TestProtocol_BroadcastCounterOnlyWhenQueued(t *testing.T) {
	p := newTestProtocol()
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))
	require.NoError(t, p.Register(&stubReceiver{id: "b"}))

	template, err := core.NewMessage("a", core.BroadcastRecipient, core.TypePing, nil)
	require.NoError(t, err)

	_, err = p.Broadcast(template, "ghost")
	require.Error(t, err)
	assert.Equal(t, int64(0), p.Metrics().BroadcastsSent)

	_, err = p.Broadcast(template, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Metrics().BroadcastsSent)
}

func TestProtocol_FailedHandlerDoesNotAbortBatch(t *testing.T) {
	p := newTestProtocol()
	bad := &stubReceiver{id: "bad", failWith: errors.New("boom")}
	good := &stubReceiver{id: "good"}
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))
	require.NoError(t, p.Register(bad))
	require.NoError(t, p.Register(good))

	failing := send(t, p, "a", "bad", core.TypePing, nil)
	send(t, p, "a", "good", core.TypePing, nil)

	delivered, failures := p.Process(context.Background(), 0)
	assert.Equal(t, 1, delivered)
	require.Len(t, failures, 1)
	assert.Equal(t, failing.ID, failures[0].MessageID)
	assert.Equal(t, "bad", failures[0].RecipientID)
	assert.Len(t, good.received, 1)
}

func TestProtocol_PanickingHandlerIsIsolated(t *testing.T) {
	p := newTestProtocol()
	volatile := &stubReceiver{id: "volatile", panics: true}
	calm := &stubReceiver{id: "calm"}
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))
	require.NoError(t, p.Register(volatile))
	require.NoError(t, p.Register(calm))

	send(t, p, "a", "volatile", core.TypePing, nil)
	send(t, p, "a", "calm", core.TypePing, nil)

	delivered, failures := p.Process(context.Background(), 0)
	assert.Equal(t, 1, delivered)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Error(), "panicked")
	assert.Len(t, calm.received, 1)
}

func TestProtocol_RecipientUnregisteredAfterSend(t *testing.T) {
	p := newTestProtocol()
	b := &stubReceiver{id: "b"}
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))
	require.NoError(t, p.Register(b))

	m := send(t, p, "a", "b", core.TypePing, nil)
	p.Unregister("b")

	delivered, failures := p.Process(context.Background(), 0)
	assert.Equal(t, 0, delivered)
	require.Len(t, failures, 1)
	assert.Equal(t, m.ID, failures[0].MessageID)

	var unknown *core.UnknownAgentError
	assert.ErrorAs(t, failures[0], &unknown)
	// not re-queued: at-most-once
	assert.Equal(t, 0, p.QueueLen())
	assert.Empty(t, b.received)
}

func TestProtocol_ProcessRespectsMaxCount(t *testing.T) {
	p := newTestProtocol()
	b := &stubReceiver{id: "b"}
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))
	require.NoError(t, p.Register(b))

	for i := 0; i < 5; i++ {
		send(t, p, "a", "b", core.TypePing, map[string]any{"n": i})
	}

	delivered, _ := p.Process(context.Background(), 2)
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 3, p.QueueLen())

	delivered, _ = p.Process(context.Background(), 0)
	assert.Equal(t, 3, delivered)
	assert.Equal(t, 0, p.QueueLen())
}

func TestProtocol_ProcessStopsOnCancelledContext(t *testing.T) {
	p := newTestProtocol()
	b := &stubReceiver{id: "b"}
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))
	require.NoError(t, p.Register(b))

	send(t, p, "a", "b", core.TypePing, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	delivered, failures := p.Process(ctx, 0)
	assert.Equal(t, 0, delivered)
	assert.Empty(t, failures)
	assert.Equal(t, 1, p.QueueLen())
}

func TestProtocol_HistoryChronologicalOrder(t *testing.T) {
	p := newTestProtocol()
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))
	require.NoError(t, p.Register(&stubReceiver{id: "b"}))

	first := send(t, p, "a", "b", core.TypePing, map[string]any{"n": 1})
	second := send(t, p, "b", "a", core.TypePing, map[string]any{"n": 2},
		core.WithConversation(first.ConversationID), core.WithReplyTo(first.ID))

	history := p.History(first.ConversationID)
	require.Len(t, history, 2)
	assert.Equal(t, first.ID, history[0].ID)
	assert.Equal(t, second.ID, history[1].ID)
	assert.Equal(t, first.ID, history[1].InReplyTo)

	assert.Empty(t, p.History("unknown-conversation"))
}

func TestProtocol_HistorySurvivesDelivery(t *testing.T) {
	p := newTestProtocol()
	b := &stubReceiver{id: "b"}
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))
	require.NoError(t, p.Register(b))

	m := send(t, p, "a", "b", core.TypePing, nil)
	p.Process(context.Background(), 0)

	history := p.History(m.ConversationID)
	require.Len(t, history, 1)
	assert.Equal(t, m.ID, history[0].ID)

	assert.True(t, p.Purge(m.ConversationID))
	assert.Empty(t, p.History(m.ConversationID))
}

func TestProtocol_BroadcastSharedConversation(t *testing.T) {
	p := newTestProtocol()
	b := &stubReceiver{id: "b"}
	c := &stubReceiver{id: "c"}
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))
	require.NoError(t, p.Register(b))
	require.NoError(t, p.Register(c))

	template, err := core.NewMessage("a", core.BroadcastRecipient, core.TypePerformanceReport,
		map[string]any{"ctr": 0.1})
	require.NoError(t, err)

	ids, err := p.Broadcast(template, "b", "c")
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])

	delivered, failures := p.Process(context.Background(), 0)
	assert.Equal(t, 2, delivered)
	assert.Empty(t, failures)

	require.Len(t, b.received, 1)
	require.Len(t, c.received, 1)
	// one conversational event: both copies share the template's conversation
	assert.Equal(t, template.ConversationID, b.received[0].ConversationID)
	assert.Equal(t, template.ConversationID, c.received[0].ConversationID)
	assert.Len(t, p.History(template.ConversationID), 2)
}

func TestProtocol_BroadcastDefaultsToAllButSender(t *testing.T) {
	p := newTestProtocol()
	b := &stubReceiver{id: "b"}
	c := &stubReceiver{id: "c"}
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))
	require.NoError(t, p.Register(b))
	require.NoError(t, p.Register(c))

	template, err := core.NewMessage("a", core.BroadcastRecipient, core.TypePing, nil)
	require.NoError(t, err)

	ids, err := p.Broadcast(template)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Equal(t, 2, p.QueueLen())
}

func TestProtocol_BroadcastCollectsUnknownRecipients(t *testing.T) {
	p := newTestProtocol()
	b := &stubReceiver{id: "b"}
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))
	require.NoError(t, p.Register(b))

	template, err := core.NewMessage("a", core.BroadcastRecipient, core.TypePing, nil)
	require.NoError(t, err)

	ids, err := p.Broadcast(template, "b", "ghost")
	require.Len(t, ids, 1)

	var unknown *core.UnknownAgentError
	assert.ErrorAs(t, err, &unknown)
	assert.Equal(t, 1, p.QueueLen())
}

func TestProtocol_DuplicateRegistrationKeepsOriginal(t *testing.T) {
	p := newTestProtocol()
	original := &stubReceiver{id: "a"}
	require.NoError(t, p.Register(original))

	err := p.Register(&stubReceiver{id: "a"})
	var dup *core.DuplicateAgentError
	require.ErrorAs(t, err, &dup)

	handle, err := p.Resolve("a")
	require.NoError(t, err)
	assert.Same(t, original, handle)

	m, err := core.NewMessage("x", "a", core.TypePing, nil)
	require.NoError(t, err)
	require.NoError(t, p.Register(&stubReceiver{id: "x"}))
	_, err = p.Send(m)
	require.NoError(t, err)

	delivered, _ := p.Process(context.Background(), 0)
	assert.Equal(t, 1, delivered)
	assert.Len(t, original.received, 1)
}

func TestProtocol_QueueCapacityEnforced(t *testing.T) {
	p := newTestProtocol(func(o *Options) {
		o.Config.QueueCapacity = 1
	})
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))
	require.NoError(t, p.Register(&stubReceiver{id: "b"}))

	send(t, p, "a", "b", core.TypePing, nil)

	m, err := core.NewMessage("a", "b", core.TypePing, nil)
	require.NoError(t, err)
	_, err = p.Send(m)
	assert.ErrorIs(t, err, core.ErrQueueFull)
	// rejected messages are not indexed either
	assert.Empty(t, p.History(m.ConversationID))
}

func TestProtocol_MetricsSnapshot(t *testing.T) {
	p := newTestProtocol()
	b := &stubReceiver{id: "b"}
	bad := &stubReceiver{id: "bad", failWith: errors.New("boom")}
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))
	require.NoError(t, p.Register(b))
	require.NoError(t, p.Register(bad))

	send(t, p, "a", "b", core.TypePing, nil)
	send(t, p, "a", "bad", core.TypePing, nil)
	p.Process(context.Background(), 0)
	p.Unregister("bad")

	snap := p.Metrics()
	assert.Equal(t, int64(2), snap.RegisteredAgents)
	assert.Equal(t, int64(2), snap.MessagesSent)
	assert.Equal(t, int64(1), snap.MessagesDelivered)
	assert.Equal(t, int64(1), snap.DeliveriesFailed)
	assert.Equal(t, int64(2), snap.ConversationsKnown)
}

func TestProtocol_EventSubscription(t *testing.T) {
	p := newTestProtocol()
	b := &stubReceiver{id: "b"}
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))
	require.NoError(t, p.Register(b))

	var order []string
	p.Subscribe(EventMessageDelivered, func(ev Event) {
		order = append(order, "first:"+ev.Message.ID)
	})
	unsubscribe := p.Subscribe(EventMessageDelivered, func(ev Event) {
		order = append(order, "second:"+ev.Message.ID)
	})

	m := send(t, p, "a", "b", core.TypePing, nil)
	p.Process(context.Background(), 0)

	require.Len(t, order, 2)
	assert.Equal(t, "first:"+m.ID, order[0])
	assert.Equal(t, "second:"+m.ID, order[1])

	unsubscribe()
	send(t, p, "a", "b", core.TypePing, nil)
	p.Process(context.Background(), 0)
	assert.Len(t, order, 3)
}

func TestProtocol_DeliveryFailedEvent(t *testing.T) {
	p := newTestProtocol()
	bad := &stubReceiver{id: "bad", failWith: errors.New("boom")}
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))
	require.NoError(t, p.Register(bad))

	var failed []Event
	p.Subscribe(EventDeliveryFailed, func(ev Event) { failed = append(failed, ev) })

	m := send(t, p, "a", "bad", core.TypePing, nil)
	p.Process(context.Background(), 0)

	require.Len(t, failed, 1)
	assert.Equal(t, m.ID, failed[0].Message.ID)
	assert.Error(t, failed[0].Err)
}

func TestProtocol_PeekQueue(t *testing.T) {
	p := newTestProtocol()
	require.NoError(t, p.Register(&stubReceiver{id: "a"}))
	require.NoError(t, p.Register(&stubReceiver{id: "b"}))

	_, ok := p.PeekQueue()
	assert.False(t, ok)

	send(t, p, "a", "b", core.TypePing, nil, core.WithPriority(core.PriorityLow))
	urgent := send(t, p, "a", "b", core.TypePing, nil, core.WithPriority(core.PriorityUrgent))

	next, ok := p.PeekQueue()
	require.True(t, ok)
	assert.Equal(t, urgent.ID, next.ID)
	assert.Equal(t, 2, p.QueueLen())
}
