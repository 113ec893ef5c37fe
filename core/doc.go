// Package core provides the foundational domain types used by the agentcomm
// communication layer. It defines:
//
//   - Message (immutable communication record with priority and threading)
//   - Priority (ordered delivery bands) and MessageType (open tag set)
//   - Receiver (the capability an agent exposes to accept deliveries)
//   - PayloadRegistry (optional typed decoding of message content)
//   - The error taxonomy shared by all protocol operations
//
// The package intentionally keeps implementation concerns (queuing, routing,
// agent behavior) out of scope so higher layers can depend on small, stable
// contracts.
package core
