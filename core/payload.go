package core

import (
	"encoding/json"
	"fmt"
	"sync"
)

// PayloadDecoder converts the raw key/value content of a message into a typed
// payload for its message type.
type PayloadDecoder func(content map[string]any) (any, error)

// PayloadRegistry maps message type tags to payload decoders, giving callers
// typed access to content without closing the open tag set: types without a
// registered decoder simply pass through as raw maps.
type PayloadRegistry struct {
	mu       sync.RWMutex
	decoders map[MessageType]PayloadDecoder
}

// NewPayloadRegistry constructs an empty registry.
func NewPayloadRegistry() *PayloadRegistry {
	return &PayloadRegistry{decoders: make(map[MessageType]PayloadDecoder)}
}

// Register associates a decoder with a message type, replacing any previous
// decoder for that type.
func (r *PayloadRegistry) Register(msgType MessageType, dec PayloadDecoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[msgType] = dec
}

// Decode applies the registered decoder for the message's type. ok reports
// whether a decoder was registered; without one the raw content is returned
// unchanged.
func (r *PayloadRegistry) Decode(msg *Message) (payload any, ok bool, err error) {
	r.mu.RLock()
	dec, ok := r.decoders[msg.Type]
	r.mu.RUnlock()
	if !ok {
		return msg.Content, false, nil
	}
	payload, err = dec(msg.Content)
	if err != nil {
		return nil, true, fmt.Errorf("decode payload for %s: %w", msg.Type, err)
	}
	return payload, true, nil
}

// DecodeInto maps raw content onto a struct via JSON tags. It is the common
// building block for PayloadDecoder implementations:
//
//	registry.Register(TypeCampaignRequest, func(c map[string]any) (any, error) {
//	    return core.DecodeInto[CampaignRequest](c)
//	})
func DecodeInto[T any](content map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(content)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}
