package core

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// MessageType tags the semantic intent of a Message. The set is open: the
// protocol treats tags as opaque strings and imposes no schema on content.
// Constants below cover the workflows shipped with the platform; domain
// agents are free to introduce their own.
type MessageType string

const (
	TypeCampaignRequest   MessageType = "CAMPAIGN_REQUEST"
	TypeCampaignApproved  MessageType = "CAMPAIGN_APPROVED"
	TypeCreativeRequest   MessageType = "CREATIVE_REQUEST"
	TypeCreativeDelivery  MessageType = "CREATIVE_DELIVERY"
	TypeAudienceRequest   MessageType = "AUDIENCE_REQUEST"
	TypeMediaPlanRequest  MessageType = "MEDIA_PLAN_REQUEST"
	TypePerformanceReport MessageType = "PERFORMANCE_REPORT"
	TypePing              MessageType = "PING"
	TypeError             MessageType = "ERROR"
)

// BroadcastRecipient is the recipient marker used on broadcast templates.
// The protocol replaces it with a concrete recipient on each fan-out copy; it
// is never a valid direct delivery target.
const BroadcastRecipient = "*"

// Priority determines dequeue order. Higher values drain first; ties within a
// band are broken by insertion order (strict FIFO).
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// String returns the canonical upper-case name of the priority band.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityUrgent:
		return "URGENT"
	default:
		return "UNKNOWN"
	}
}

// ParsePriority maps a band name (as produced by String) back to a Priority.
// Unknown names fall back to PriorityNormal with ok=false.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "LOW":
		return PriorityLow, true
	case "NORMAL":
		return PriorityNormal, true
	case "HIGH":
		return PriorityHigh, true
	case "URGENT":
		return PriorityUrgent, true
	default:
		return PriorityNormal, false
	}
}

// Message is the unit of communication between agents. After construction it
// must be treated as immutable; operations that need a variant (replies,
// broadcast fan-out) produce a new Message. Delivery state is protocol-side
// bookkeeping and never appears on the value itself.
//
// Contract:
//   - ID is globally unique and never changes
//   - ConversationID never changes after first assignment
//   - CreatedAt is UTC and set exactly once
//   - InReplyTo, when set, references an earlier Message ID
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	SenderID       string         `json:"sender_id"`
	RecipientID    string         `json:"recipient_id"`
	Type           MessageType    `json:"message_type"`
	Content        map[string]any `json:"content,omitempty"`
	Priority       Priority       `json:"priority"`
	CreatedAt      time.Time      `json:"created_at"`
	InReplyTo      string         `json:"in_reply_to,omitempty"`
}

// MessageOption customizes optional Message fields at construction time.
type MessageOption func(*Message)

// WithPriority overrides the default NORMAL priority.
func WithPriority(p Priority) MessageOption {
	return func(m *Message) { m.Priority = p }
}

// WithConversation places the message in an existing conversation instead of
// starting a new one.
func WithConversation(conversationID string) MessageOption {
	return func(m *Message) { m.ConversationID = conversationID }
}

// WithReplyTo threads the message as a reply to an earlier message ID.
func WithReplyTo(messageID string) MessageOption {
	return func(m *Message) { m.InReplyTo = messageID }
}

// WithCreatedAt pins the creation timestamp; intended for deterministic tests
// and for replaying externally sourced messages.
func WithCreatedAt(t time.Time) MessageOption {
	return func(m *Message) { m.CreatedAt = t.UTC() }
}

// NewMessage constructs a validated Message. Sender, recipient and type are
// required; priority defaults to NORMAL and the timestamp to the current UTC
// time. A fresh conversation ID is generated unless WithConversation is given.
// Content is copied so later mutation of the caller's map cannot leak into the
// stored message.
func NewMessage(senderID, recipientID string, msgType MessageType, content map[string]any, opts ...MessageOption) (*Message, error) {
	m := &Message{
		ID:          NewID(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Type:        msgType,
		Content:     maps.Clone(content),
		Priority:    PriorityNormal,
		CreatedAt:   time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ConversationID == "" {
		m.ConversationID = NewID()
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the construction invariants: required identity fields and a
// priority within the known bands. NewMessage runs it automatically; the
// protocol re-runs it at the commit point since Message fields are exported
// and a hand-built value can bypass the constructor.
func (m *Message) Validate() error {
	switch {
	case m.SenderID == "":
		return &ValidationError{Field: "sender_id", Reason: "must not be empty"}
	case m.RecipientID == "":
		return &ValidationError{Field: "recipient_id", Reason: "must not be empty"}
	case m.Type == "":
		return &ValidationError{Field: "message_type", Reason: "must not be empty"}
	case m.Priority < PriorityLow || m.Priority > PriorityUrgent:
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown band %d", m.Priority)}
	}
	return nil
}

// Clone returns a copy safe for independent use. Content is cloned one level
// deep, which is sufficient because stored messages are never mutated.
func (m *Message) Clone() *Message {
	clone := *m
	clone.Content = maps.Clone(m.Content)
	return &clone
}

// Reply builds a new Message back to the sender, threaded into the same
// conversation with InReplyTo set. The reply inherits nothing else; priority
// defaults apply unless overridden via opts.
func (m *Message) Reply(msgType MessageType, content map[string]any, opts ...MessageOption) (*Message, error) {
	base := []MessageOption{
		WithConversation(m.ConversationID),
		WithReplyTo(m.ID),
	}
	return NewMessage(m.RecipientID, m.SenderID, msgType, content, append(base, opts...)...)
}

// String renders a compact single-line summary for logs.
func (m *Message) String() string {
	return fmt.Sprintf("Message{ID: %s, From: %s, To: %s, Type: %s, Priority: %s}",
		m.ID, m.SenderID, m.RecipientID, m.Type, m.Priority)
}

// NewID generates a unique identifier for messages and conversations.
func NewID() string { return uuid.NewString() }

// Receiver is the capability an agent exposes to accept deliveries. Receive is
// invoked synchronously during queue processing and must return quickly;
// agents needing long-running work should hand off internally. A non-nil
// error marks the delivery as failed (the message is not re-queued).
type Receiver interface {
	ID() string
	Receive(msg *Message) error
}
