package protocol

import (
	"sync"

	"github.com/adgentic/agentcomm/core"
)

// conversationIndex groups messages by conversation ID in send order. Since a
// message can only reference past IDs via in_reply_to, insertion order is
// both chronological and causal. Sequences are created lazily on the first
// message of a conversation and retained for audit until explicitly purged.
type conversationIndex struct {
	mu            sync.RWMutex
	conversations map[string][]*core.Message
}

func newConversationIndex() *conversationIndex {
	return &conversationIndex{conversations: make(map[string][]*core.Message)}
}

// record appends the message to its conversation sequence.
func (ci *conversationIndex) record(msg *core.Message) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.conversations[msg.ConversationID] = append(ci.conversations[msg.ConversationID], msg)
}

// history returns a copy of the ordered sequence for the conversation. An
// unknown conversation yields an empty slice, not an error. Messages are
// shared by pointer; they are immutable by contract.
func (ci *conversationIndex) history(conversationID string) []*core.Message {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	seq := ci.conversations[conversationID]
	out := make([]*core.Message, len(seq))
	copy(out, seq)
	return out
}

// purge removes the stored sequence; retention-policy cleanup only, never
// part of normal message flow. It reports whether the conversation existed.
func (ci *conversationIndex) purge(conversationID string) bool {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	if _, ok := ci.conversations[conversationID]; !ok {
		return false
	}
	delete(ci.conversations, conversationID)
	return true
}

// len returns the number of tracked conversations.
func (ci *conversationIndex) len() int {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	return len(ci.conversations)
}
