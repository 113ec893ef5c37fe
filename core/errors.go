package core

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueEmpty signals a dequeue/peek against an empty queue. Callers of
	// the protocol never see it as a failure; it terminates a processing pass.
	ErrQueueEmpty = errors.New("message queue is empty")

	// ErrQueueFull is returned by send when a bounded queue is at capacity.
	// The newest message is rejected; already queued messages are untouched.
	ErrQueueFull = errors.New("message queue is full")
)

// ValidationError reports a malformed Message at construction time. It is a
// caller bug: surfaced immediately, never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid message: %s %s", e.Field, e.Reason)
}

// DuplicateAgentError reports a registration conflict. The original handle
// stays registered and resolvable.
type DuplicateAgentError struct {
	AgentID string
}

func (e *DuplicateAgentError) Error() string {
	return fmt.Sprintf("agent already registered: %s", e.AgentID)
}

// UnknownAgentError reports a recipient or queried agent that is not present
// in the registry.
type UnknownAgentError struct {
	AgentID string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("unknown agent: %s", e.AgentID)
}

// DeliveryError records a single failed delivery during a queue processing
// pass. Failures are isolated per message: they are reported in the batch
// summary and never abort the pass.
type DeliveryError struct {
	MessageID   string
	RecipientID string
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery of %s to %s failed: %v", e.MessageID, e.RecipientID, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *DeliveryError) Unwrap() error { return e.Err }
