package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/adgentic/agentcomm/core"
	"github.com/adgentic/agentcomm/logging"
)

// Config defines tuning parameters for a Protocol instance.
type Config struct {
	// QueueCapacity bounds the number of pending messages. Zero means
	// unbounded. When the bound is reached, Send rejects the newest message
	// with ErrQueueFull.
	QueueCapacity int
}

// DefaultConfig provides safe defaults: an unbounded queue.
var DefaultConfig = Config{
	QueueCapacity: 0,
}

// Options configures a Protocol instance using the functional options pattern.
type Options struct {
	// Config contains operational parameters.
	Config Config

	// Logger provides structured logging. Defaults to NoOp if nil.
	Logger logging.Logger
}

// Protocol is the central coordinator for agent communication. It owns the
// agent registry, the pending-message queue and the conversation index, and
// exposes the send/process/query operations agents build on.
//
// Concurrency: Send and Register may be called concurrently from independent
// agent goroutines; each owned structure carries its own lock, and Send
// serializes its enqueue+index pair so conversation history order always
// matches queue commit order. Process is
// intended to be driven from a single coordinating goroutine. Delivery is a
// synchronous in-process invocation of the recipient's Receive; handlers must
// not block.
//
// Message lifecycle from the protocol's viewpoint:
//
//	CREATED → QUEUED → DELIVERED   (terminal success)
//	CREATED → REJECTED             (recipient unknown at send time)
//	QUEUED  → FAILED               (delivery failed; no automatic retry)
type Protocol struct {
	config   Config
	logger   logging.Logger
	registry *registry
	queue    *messageQueue
	index    *conversationIndex
	metrics  *Metrics
	emitter  *emitter

	// sendMu orders the enqueue+index pair so concurrent Sends commit to the
	// queue and the conversation index in the same order.
	sendMu sync.Mutex
}

// New creates a Protocol with optional overrides:
//
//	p := protocol.New(func(o *protocol.Options) {
//	    o.Config.QueueCapacity = 1024
//	    o.Logger = logging.NewLogger(logging.LogLevelInfo, "json", nil)
//	})
func New(optFns ...func(o *Options)) *Protocol {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Protocol{
		config:   opts.Config,
		logger:   opts.Logger,
		registry: newRegistry(),
		queue:    newMessageQueue(opts.Config.QueueCapacity),
		index:    newConversationIndex(),
		metrics:  newMetrics(),
		emitter:  newEmitter(),
	}
}

// Register adds an agent handle under its ID. Registering an ID that is
// already present fails with DuplicateAgentError; the original handle remains
// resolvable.
func (p *Protocol) Register(handle core.Receiver) error {
	if handle == nil {
		return fmt.Errorf("register: handle must not be nil")
	}
	id := handle.ID()
	if id == "" {
		return fmt.Errorf("register: agent id must not be empty")
	}
	if err := p.registry.register(id, handle); err != nil {
		return err
	}
	p.metrics.recordAgent(1)
	p.emitter.emit(Event{Kind: EventAgentRegistered, AgentID: id})
	p.logger.Debug("agent registered", "agent_id", id)
	return nil
}

// Unregister removes an agent. It is idempotent; unregistering an absent ID
// is a no-op. Messages already queued for the agent will fail at delivery
// time and be reported in the Process summary.
func (p *Protocol) Unregister(agentID string) {
	if !p.registry.unregister(agentID) {
		return
	}
	p.metrics.recordAgent(-1)
	p.emitter.emit(Event{Kind: EventAgentUnregistered, AgentID: agentID})
	p.logger.Debug("agent unregistered", "agent_id", agentID)
}

// Send commits a message into the system: it validates that the recipient is
// registered, enqueues the message and records it in the conversation index,
// returning the message ID. This is the only path by which a message enters
// the queue. An unknown recipient fails with UnknownAgentError and nothing is
// enqueued or indexed.
func (p *Protocol) Send(msg *core.Message) (string, error) {
	if msg == nil {
		return "", fmt.Errorf("send: message must not be nil")
	}
	// fields are exported, so a hand-built message can bypass NewMessage
	if err := msg.Validate(); err != nil {
		return "", err
	}
	if _, err := p.registry.resolve(msg.RecipientID); err != nil {
		return "", err
	}
	p.sendMu.Lock()
	seq, err := p.queue.enqueue(msg)
	if err != nil {
		p.sendMu.Unlock()
		return "", err
	}
	p.index.record(msg)
	p.sendMu.Unlock()
	p.metrics.recordSent()
	p.emitter.emit(Event{Kind: EventMessageSent, AgentID: msg.SenderID, Message: msg})
	p.logger.Debug("message queued",
		"message_id", msg.ID,
		"sender", msg.SenderID,
		"recipient", msg.RecipientID,
		"type", string(msg.Type),
		"priority", msg.Priority.String(),
		"seq", seq,
	)
	return msg.ID, nil
}

// Broadcast sends a copy of the template to each recipient as one
// conversational event: every copy shares the template's conversation ID, so
// replies from any recipient are visible in every recipient's history. When
// no recipients are given, all registered agents except the sender receive a
// copy. Unknown recipients and queue overflow are collected into the joined
// error; remaining recipients are still served. Returns the assigned message
// IDs in recipient order.
func (p *Protocol) Broadcast(template *core.Message, recipientIDs ...string) ([]string, error) {
	if template == nil {
		return nil, fmt.Errorf("broadcast: template must not be nil")
	}
	if len(recipientIDs) == 0 {
		for _, id := range p.registry.ids() {
			if id != template.SenderID {
				recipientIDs = append(recipientIDs, id)
			}
		}
	}

	var (
		ids  []string
		errs []error
	)
	for _, recipientID := range recipientIDs {
		clone := template.Clone()
		clone.ID = core.NewID()
		clone.RecipientID = recipientID
		id, err := p.Send(clone)
		if err != nil {
			errs = append(errs, fmt.Errorf("broadcast to %s: %w", recipientID, err))
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		p.metrics.recordBroadcast()
	}
	p.logger.Debug("broadcast sent",
		"sender", template.SenderID,
		"conversation_id", template.ConversationID,
		"recipients", len(recipientIDs),
		"queued", len(ids),
	)
	return ids, errors.Join(errs...)
}

// Process drains up to max pending messages (all of them when max <= 0),
// delivering each to its recipient's Receive in priority order. A failed
// delivery — recipient unregistered since send, handler error or handler
// panic — is isolated per message: it is reported in the returned summary and
// processing continues. Messages are never re-enqueued (at-most-once).
// Messages sent by handlers during the pass are drained in the same pass;
// pass a positive max to bound the drain when handlers can produce message
// cycles. Returns the count of successful deliveries and the per-message
// failures.
func (p *Protocol) Process(ctx context.Context, max int) (int, []*core.DeliveryError) {
	var (
		delivered int
		failures  []*core.DeliveryError
		processed int
	)
	for max <= 0 || processed < max {
		if ctx != nil && ctx.Err() != nil {
			break
		}
		entry, ok := p.queue.dequeue()
		if !ok {
			break
		}
		processed++
		if err := p.deliver(entry); err != nil {
			failures = append(failures, err)
			p.metrics.recordFailed()
			p.emitter.emit(Event{Kind: EventDeliveryFailed, AgentID: entry.msg.RecipientID, Message: entry.msg, Err: err})
			p.logger.Warn("delivery failed",
				"message_id", entry.msg.ID,
				"recipient", entry.msg.RecipientID,
				"attempt", entry.attempts,
				"error", err.Error(),
			)
			continue
		}
		delivered++
		p.metrics.recordDelivered()
		p.emitter.emit(Event{Kind: EventMessageDelivered, AgentID: entry.msg.RecipientID, Message: entry.msg})
	}
	return delivered, failures
}

func (p *Protocol) deliver(entry *queueEntry) *core.DeliveryError {
	msg := entry.msg
	handle, err := p.registry.resolve(msg.RecipientID)
	if err != nil {
		return &core.DeliveryError{MessageID: msg.ID, RecipientID: msg.RecipientID, Err: err}
	}
	if err := p.invoke(handle, msg); err != nil {
		return &core.DeliveryError{MessageID: msg.ID, RecipientID: msg.RecipientID, Err: err}
	}
	return nil
}

// invoke calls the recipient's Receive, converting a panic into an error so a
// single misbehaving handler cannot take down the queue drain.
func (p *Protocol) invoke(handle core.Receiver, msg *core.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handle.Receive(msg)
}

// History returns the messages of a conversation in send order. Unknown
// conversations yield an empty slice.
func (p *Protocol) History(conversationID string) []*core.Message {
	return p.index.history(conversationID)
}

// Purge drops the stored history of a conversation. Explicit retention
// cleanup only; it reports whether the conversation existed.
func (p *Protocol) Purge(conversationID string) bool {
	return p.index.purge(conversationID)
}

// QueueLen reports the number of pending messages.
func (p *Protocol) QueueLen() int {
	return p.queue.len()
}

// PeekQueue returns the next message Process would deliver, without removing
// it. ok is false when the queue is empty.
func (p *Protocol) PeekQueue() (*core.Message, bool) {
	entry, ok := p.queue.peek()
	if !ok {
		return nil, false
	}
	return entry.msg, true
}

// Resolve returns the registered handle for an agent ID, or
// UnknownAgentError when absent.
func (p *Protocol) Resolve(agentID string) (core.Receiver, error) {
	return p.registry.resolve(agentID)
}

// AgentIDs returns the registered agent IDs in sorted order.
func (p *Protocol) AgentIDs() []string {
	return p.registry.ids()
}

// Metrics returns a snapshot of the protocol counters.
func (p *Protocol) Metrics() MetricsSnapshot {
	return p.metrics.snapshot(int64(p.index.len()))
}

// Subscribe registers a callback for a protocol event kind. Callbacks run
// synchronously in subscription order. The returned function unsubscribes.
func (p *Protocol) Subscribe(kind EventKind, fn EventFunc) func() {
	return p.emitter.subscribe(kind, fn)
}
