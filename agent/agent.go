package agent

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/adgentic/agentcomm/core"
	"github.com/adgentic/agentcomm/logging"
	"github.com/adgentic/agentcomm/protocol"
)

// DefaultBufferSize bounds the received-but-unhandled buffer when no override
// is configured.
const DefaultBufferSize = 128

// Handler processes a delivered message of a registered type. A non-nil
// error marks the delivery as failed in the protocol's batch summary.
type Handler func(msg *core.Message) error

// Options configures an Agent.
type Options struct {
	// BufferSize bounds the unhandled-message buffer; when full the oldest
	// entry is evicted. Defaults to DefaultBufferSize.
	BufferSize int

	// Logger defaults to NoOp if nil.
	Logger logging.Logger
}

// Agent is the per-agent façade bound to one agent ID and a shared Protocol.
// Deliveries dispatch to a handler registered for the message type; messages
// with no matching handler land in a bounded buffer readable via Received.
// Agent implements core.Receiver and registers itself at construction.
type Agent struct {
	id       string
	protocol *protocol.Protocol
	logger   logging.Logger

	mu        sync.RWMutex
	handlers  map[core.MessageType]Handler
	unhandled *lru.Cache[uint64, *core.Message]
	recvSeq   uint64
}

// Interface compliance (compile-time assertion)
var _ core.Receiver = (*Agent)(nil)

// New constructs an Agent and registers it with the protocol. Construction
// fails if the ID is empty or already registered.
func New(id string, p *protocol.Protocol, optFns ...func(o *Options)) (*Agent, error) {
	if id == "" {
		return nil, fmt.Errorf("agent: id must not be empty")
	}
	if p == nil {
		return nil, fmt.Errorf("agent: protocol must not be nil")
	}
	opts := Options{
		BufferSize: DefaultBufferSize,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	buffer, err := lru.New[uint64, *core.Message](opts.BufferSize)
	if err != nil {
		return nil, fmt.Errorf("agent: create buffer: %w", err)
	}

	a := &Agent{
		id:        id,
		protocol:  p,
		logger:    opts.Logger,
		handlers:  make(map[core.MessageType]Handler),
		unhandled: buffer,
	}
	if err := p.Register(a); err != nil {
		return nil, err
	}
	return a, nil
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.id }

// Close unregisters the agent from the protocol. Messages still queued for
// it will fail at delivery time.
func (a *Agent) Close() {
	a.protocol.Unregister(a.id)
}

// Send builds a message from this agent to the recipient and commits it via
// the protocol, returning the assigned message ID. Priority, conversation and
// reply threading are set through core message options.
func (a *Agent) Send(recipientID string, msgType core.MessageType, content map[string]any, opts ...core.MessageOption) (string, error) {
	m, err := core.NewMessage(a.id, recipientID, msgType, content, opts...)
	if err != nil {
		return "", err
	}
	return a.protocol.Send(m)
}

// Reply sends a response threaded into the conversation of the given message,
// addressed to its sender.
func (a *Agent) Reply(to *core.Message, msgType core.MessageType, content map[string]any, opts ...core.MessageOption) (string, error) {
	base := []core.MessageOption{
		core.WithConversation(to.ConversationID),
		core.WithReplyTo(to.ID),
	}
	return a.Send(to.SenderID, msgType, content, append(base, opts...)...)
}

// Broadcast sends a copy of one message to each recipient (all other
// registered agents when none are named), sharing a single conversation ID.
func (a *Agent) Broadcast(msgType core.MessageType, content map[string]any, recipientIDs ...string) ([]string, error) {
	template, err := core.NewMessage(a.id, core.BroadcastRecipient, msgType, content)
	if err != nil {
		return nil, err
	}
	return a.protocol.Broadcast(template, recipientIDs...)
}

// RegisterHandler associates a handler with a message type. Only one handler
// per type: re-registration replaces the previous one and logs a warning.
func (a *Agent) RegisterHandler(msgType core.MessageType, h Handler) {
	a.mu.Lock()
	_, replaced := a.handlers[msgType]
	a.handlers[msgType] = h
	a.mu.Unlock()
	if replaced {
		a.logger.Warn("message handler replaced", "agent_id", a.id, "type", string(msgType))
	}
}

// UnregisterHandler removes the handler for a message type, if any.
// Subsequent deliveries of that type are buffered instead.
func (a *Agent) UnregisterHandler(msgType core.MessageType) {
	a.mu.Lock()
	delete(a.handlers, msgType)
	a.mu.Unlock()
}

// Receive implements core.Receiver; the protocol invokes it during queue
// processing. The handler registered for the message type runs synchronously
// and its error propagates as a delivery failure. Without a handler the
// message is buffered (oldest evicted at capacity) and the delivery succeeds.
func (a *Agent) Receive(msg *core.Message) error {
	a.mu.RLock()
	h, ok := a.handlers[msg.Type]
	a.mu.RUnlock()

	if ok {
		return h(msg)
	}

	a.mu.Lock()
	a.recvSeq++
	evicted := a.unhandled.Add(a.recvSeq, msg)
	a.mu.Unlock()

	if evicted {
		a.logger.Debug("unhandled buffer full, oldest message evicted", "agent_id", a.id)
	}
	a.logger.Debug("message buffered", "agent_id", a.id, "message_id", msg.ID, "type", string(msg.Type))
	return nil
}

// Filter narrows the result of Received.
type Filter func(*core.Message) bool

// FromSender keeps only messages sent by the given agent.
func FromSender(senderID string) Filter {
	return func(m *core.Message) bool { return m.SenderID == senderID }
}

// OfType keeps only messages of the given type.
func OfType(msgType core.MessageType) Filter {
	return func(m *core.Message) bool { return m.Type == msgType }
}

// Received returns buffered unhandled messages in delivery order, narrowed by
// the given filters. The buffer is not mutated.
func (a *Agent) Received(filters ...Filter) []*core.Message {
	a.mu.RLock()
	values := a.unhandled.Values()
	a.mu.RUnlock()

	out := make([]*core.Message, 0, len(values))
next:
	for _, m := range values {
		for _, keep := range filters {
			if !keep(m) {
				continue next
			}
		}
		out = append(out, m)
	}
	return out
}

// ClearReceived empties the unhandled buffer.
func (a *Agent) ClearReceived() {
	a.mu.Lock()
	a.unhandled.Purge()
	a.mu.Unlock()
}
